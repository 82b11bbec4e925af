package registry

import "log/slog"

// Options holds configuration for a Registry.
type Options struct {
	Logger                      *slog.Logger
	MaxAttemptsBeforeErrorState int
	// UpdateRetries is how many times UpdateJobFunc re-reads a job after a
	// version conflict before giving up.
	UpdateRetries int
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Logger:        slog.Default(),
		UpdateRetries: DefaultUpdateRetries,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// WithLogger sets the logger used by the registry and its health monitor.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	})
}

// MaxAttemptsBeforeErrorState sets the health escalation threshold.
func MaxAttemptsBeforeErrorState(n int) Option {
	return optionFunc(func(o *Options) {
		if n >= 0 {
			o.MaxAttemptsBeforeErrorState = n
		}
	})
}

// UpdateRetries sets how often UpdateJobFunc retries on conflict.
func UpdateRetries(n int) Option {
	return optionFunc(func(o *Options) {
		if n > 0 {
			o.UpdateRetries = n
		}
	})
}

// Default values.
var (
	DefaultUpdateRetries = 5
)
