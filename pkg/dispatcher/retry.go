package dispatcher

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/job-registry/pkg/core"
)

// RetryConfig controls how a dispatch cycle re-reads its candidate jobs when
// the store is briefly unavailable. Writes are never retried here; a lost
// assignment is picked up by the next cycle instead.
type RetryConfig struct {
	// MaxAttempts counts the first read. 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the wait before the second read.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait. Keep it well below the dispatch interval.
	MaxBackoff time.Duration

	BackoffMultiplier float64

	// JitterFraction spreads each wait by up to +/- this share of it.
	JitterFraction float64
}

// DefaultRetryConfig gives up after three reads, waiting roughly 250ms and
// then 500ms between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// wait returns the jittered sleep for the given base delay.
func (c RetryConfig) wait(base time.Duration) time.Duration {
	d := base + time.Duration(float64(base)*c.JitterFraction*(rand.Float64()*2-1))
	if d < 0 {
		return base
	}
	return d
}

// grow returns the base delay for the read after one with delay base.
func (c RetryConfig) grow(base time.Duration) time.Duration {
	next := time.Duration(float64(base) * c.BackoffMultiplier)
	if next > c.MaxBackoff {
		return c.MaxBackoff
	}
	return next
}

// retryWithBackoff runs read until it succeeds, fails with an error the store
// cannot recover from, or runs out of attempts. The last read error wins.
func retryWithBackoff(ctx context.Context, config RetryConfig, read func() error) error {
	base := config.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := read()
		if err == nil || !IsRetryableError(err) || attempt >= config.MaxAttempts {
			return err
		}

		timer := time.NewTimer(config.wait(base))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		base = config.grow(base)
	}
}

// IsRetryableError reports whether a failed read is worth repeating. Registry
// errors describe the data rather than the store and are final, as is a
// cancelled or expired context. Anything else is treated as a store hiccup.
func IsRetryableError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrInvalidTransition):
		return false
	}
	return true
}
