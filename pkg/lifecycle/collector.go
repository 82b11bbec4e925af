package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jdziat/job-registry/pkg/schedule"
)

// JobRemover deletes finished jobs older than minAge and reports how many were removed.
type JobRemover interface {
	RemoveParentlessJobs(ctx context.Context, minAge time.Duration) (int64, error)
}

// Collector periodically removes finished job hierarchies.
type Collector struct {
	remover  JobRemover
	schedule schedule.Schedule
	minAge   time.Duration
	logger   *slog.Logger
}

// CollectorOption configures the Collector.
type CollectorOption interface {
	apply(*Collector)
}

type collectorOptionFunc func(*Collector)

func (f collectorOptionFunc) apply(c *Collector) { f(c) }

// WithCollectorLogger sets the logger used by the collector.
func WithCollectorLogger(l *slog.Logger) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	})
}

// NewCollector creates a collector removing jobs completed at least minAge ago,
// running on the given schedule.
func NewCollector(r JobRemover, sched schedule.Schedule, minAge time.Duration, opts ...CollectorOption) *Collector {
	c := &Collector{
		remover:  r,
		schedule: sched,
		minAge:   minAge,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// RunOnce performs a single collection.
func (c *Collector) RunOnce(ctx context.Context) (int64, error) {
	removed, err := c.remover.RemoveParentlessJobs(ctx, c.minAge)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		c.logger.Info("removed finished jobs", "count", removed, "min_age", c.minAge)
	} else {
		c.logger.Debug("no finished jobs to remove", "min_age", c.minAge)
	}
	return removed, nil
}

// Start runs collections on the schedule. Blocks until ctx is cancelled.
func (c *Collector) Start(ctx context.Context) error {
	last := time.Now()
	for {
		next := c.schedule.Next(last)
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		last = next
		if _, err := c.RunOnce(ctx); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				c.logger.Error("job collection failed", "error", err)
			}
		}
	}
}
