package health

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jdziat/job-registry/pkg/core"
)

// Outcome is the terminal result of a job as seen by the monitor.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Failure {
		return "failure"
	}
	return "success"
}

// OutcomeOf maps a terminal job status to an outcome. Canceled and
// non-terminal jobs say nothing about service health.
func OutcomeOf(status core.JobStatus) (Outcome, bool) {
	switch status {
	case core.StatusFinished:
		return Success, true
	case core.StatusFailed:
		return Failure, true
	default:
		return Success, false
	}
}

// Evaluate applies one job outcome to svc and reports whether its health
// fields changed. threshold is the number of distinct-signature failures
// tolerated in WARNING before escalating to ERROR.
func Evaluate(svc *core.Service, outcome Outcome, signature int64, threshold int, now time.Time) bool {
	if outcome == Success {
		if svc.State == core.HealthNormal && svc.WarningTrigger == 0 && svc.ErrorTrigger == 0 && svc.FailureCount == 0 {
			return false
		}
		svc.State = core.HealthNormal
		svc.WarningTrigger = 0
		svc.ErrorTrigger = 0
		svc.FailureCount = 0
		svc.StateChangedAt = &now
		return true
	}

	switch svc.State {
	case core.HealthError:
		return false
	case core.HealthWarning:
		if signature == svc.WarningTrigger {
			return false
		}
		svc.FailureCount++
		if svc.FailureCount > threshold {
			svc.State = core.HealthError
			svc.ErrorTrigger = signature
			svc.StateChangedAt = &now
		}
		return true
	default:
		svc.State = core.HealthWarning
		svc.WarningTrigger = signature
		svc.FailureCount = 0
		svc.StateChangedAt = &now
		return true
	}
}

// Monitor records job outcomes against the services that processed them.
type Monitor struct {
	store     core.ServiceStore
	threshold int
	logger    *slog.Logger
	onChange  func(svc *core.Service, from core.HealthState, trigger int64)
}

// Option configures the Monitor.
type Option interface {
	apply(*Monitor)
}

type optionFunc func(*Monitor)

func (f optionFunc) apply(m *Monitor) { f(m) }

// WithMaxAttemptsBeforeErrorState sets how many failures of other signatures
// a WARNING service tolerates before it is put in ERROR. Default: 0.
func WithMaxAttemptsBeforeErrorState(n int) Option {
	return optionFunc(func(m *Monitor) {
		if n >= 0 {
			m.threshold = n
		}
	})
}

// WithLogger sets the logger for the monitor.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	})
}

// OnStateChange registers a callback invoked after a service changed state.
func OnStateChange(fn func(svc *core.Service, from core.HealthState, trigger int64)) Option {
	return optionFunc(func(m *Monitor) {
		m.onChange = fn
	})
}

// NewMonitor creates a health monitor backed by store.
func NewMonitor(store core.ServiceStore, opts ...Option) *Monitor {
	m := &Monitor{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(m)
	}
	return m
}

// Threshold returns the configured maxAttemptsBeforeErrorState.
func (m *Monitor) Threshold() int {
	return m.threshold
}

// Record applies the outcome of a job with the given signature to the
// service (hostURL, jobType). A service that no longer exists is ignored.
func (m *Monitor) Record(ctx context.Context, hostURL, jobType string, outcome Outcome, signature int64) error {
	svc, err := m.store.GetService(ctx, hostURL, jobType)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			m.logger.Debug("outcome for unknown service ignored", "host", hostURL, "job_type", jobType)
			return nil
		}
		return err
	}

	from := svc.State
	if !Evaluate(svc, outcome, signature, m.threshold, time.Now().UTC()) {
		return nil
	}
	if err := m.store.SaveServiceHealth(ctx, svc); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return err
	}

	if svc.State != from {
		trigger := svc.WarningTrigger
		if svc.State == core.HealthError {
			trigger = svc.ErrorTrigger
		}
		level := slog.LevelInfo
		if svc.State != core.HealthNormal {
			level = slog.LevelWarn
		}
		m.logger.Log(ctx, level, "service health changed",
			"host", hostURL, "job_type", jobType,
			"from", from, "to", svc.State, "signature", signature)
		if m.onChange != nil {
			m.onChange(svc, from, trigger)
		}
	}
	return nil
}

// Reset puts a service back to NORMAL regardless of its history.
func (m *Monitor) Reset(ctx context.Context, hostURL, jobType string) error {
	svc, err := m.store.GetService(ctx, hostURL, jobType)
	if err != nil {
		return err
	}
	from := svc.State
	if !Evaluate(svc, Success, 0, m.threshold, time.Now().UTC()) {
		return nil
	}
	if err := m.store.SaveServiceHealth(ctx, svc); err != nil {
		return err
	}
	m.logger.Info("service health reset", "host", hostURL, "job_type", jobType, "from", from)
	if m.onChange != nil && from != svc.State {
		m.onChange(svc, from, 0)
	}
	return nil
}
