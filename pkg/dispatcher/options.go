package dispatcher

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Dispatcher.
type Option interface {
	ApplyDispatcher(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyDispatcher(c *Config) { f(c) }

// Config holds dispatcher configuration.
type Config struct {
	Interval  time.Duration
	NodeID    string
	Ordering  Ordering
	ReadRetry *RetryConfig
	Logger    *slog.Logger
	Registry  *prometheus.Registry
}

// Interval sets the time between dispatch cycles.
func Interval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		if d > 0 {
			c.Interval = d
		}
	})
}

// NodeID sets the identifier of this dispatcher in logs and metrics.
func NodeID(id string) Option {
	return optionFunc(func(c *Config) {
		if id != "" {
			c.NodeID = id
		}
	})
}

// WithOrdering replaces the job ordering.
func WithOrdering(o Ordering) Option {
	return optionFunc(func(c *Config) {
		c.Ordering = o
	})
}

// HeavyJobTypes puts the given job types behind all other types.
func HeavyJobTypes(jobTypes ...string) Option {
	return optionFunc(func(c *Config) {
		tiers := make(map[string]int, len(jobTypes))
		for _, jt := range jobTypes {
			tiers[jt] = 1
		}
		c.Ordering.TypeTiers = tiers
	})
}

// WithReadRetry sets the retry configuration for reading dispatchable jobs.
func WithReadRetry(cfg RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.ReadRetry = &cfg
	})
}

// DisableRetry turns off retries of store reads.
func DisableRetry() Option {
	return optionFunc(func(c *Config) {
		c.ReadRetry = &RetryConfig{MaxAttempts: 1}
	})
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithMetrics registers the dispatcher metrics on reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return optionFunc(func(c *Config) {
		c.Registry = reg
	})
}
