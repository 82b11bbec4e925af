package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/job-registry/pkg/core"
)

// JobSource is the registry surface the dispatcher works against.
type JobSource interface {
	GetDispatchableJobs(ctx context.Context) ([]*core.Job, error)
	GetJob(ctx context.Context, id int64) (*core.Job, error)
	ServicesByLoad(ctx context.Context, jobType string) ([]core.ServiceLoad, error)
	UpdateJob(ctx context.Context, job *core.Job) error
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Candidates int
	Dispatched int
	Conflicts  int
	NoCapacity int
	Blocked    int
	Errors     int
}

// Dispatcher periodically assigns dispatchable jobs to services.
type Dispatcher struct {
	source  JobSource
	config  Config
	logger  *slog.Logger
	metrics *metrics
}

// New creates a dispatcher for the given source.
func New(source JobSource, opts ...Option) *Dispatcher {
	config := Config{
		Interval: time.Second,
		NodeID:   uuid.New().String(),
		Ordering: DefaultOrdering(),
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt.ApplyDispatcher(&config)
	}
	if config.ReadRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.ReadRetry = &defaultCfg
	}

	return &Dispatcher{
		source:  source,
		config:  config,
		logger:  config.Logger.With("node", config.NodeID),
		metrics: newMetrics(config.Registry, config.NodeID),
	}
}

// NodeID returns the identifier of this dispatcher.
func (d *Dispatcher) NodeID() string {
	return d.config.NodeID
}

// Start runs dispatch cycles on the configured interval. Blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("dispatcher started", "interval", d.config.Interval)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					d.logger.Error("dispatch cycle failed", "error", err)
				}
			}
		}
	}
}

// RunOnce performs a single dispatch cycle. Only failing to read the queue is
// an error; jobs that cannot be placed are logged, counted and left queued.
func (d *Dispatcher) RunOnce(ctx context.Context) (CycleResult, error) {
	var result CycleResult
	started := time.Now()
	defer func() {
		d.metrics.cycles.Inc()
		d.metrics.cycleDuration.Observe(time.Since(started).Seconds())
	}()

	var jobs []*core.Job
	err := retryWithBackoff(ctx, *d.config.ReadRetry, func() error {
		var readErr error
		jobs, readErr = d.source.GetDispatchableJobs(ctx)
		return readErr
	})
	if err != nil {
		return result, err
	}

	d.config.Ordering.Sort(jobs)
	result.Candidates = len(jobs)
	d.metrics.candidates.Set(float64(len(jobs)))

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		d.dispatch(ctx, job, &result)
	}

	if result.Dispatched > 0 || result.Errors > 0 {
		d.logger.Info("dispatch cycle finished",
			"candidates", result.Candidates,
			"dispatched", result.Dispatched,
			"conflicts", result.Conflicts,
			"no_capacity", result.NoCapacity,
			"errors", result.Errors)
	}
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, job *core.Job, result *CycleResult) {
	log := d.logger.With("job_id", job.ID, "job_type", job.JobType)

	if blocked, err := d.isBlocked(ctx, job); err != nil {
		log.Warn("failed to check blocking job", "error", err)
		d.skip(result, "error")
		return
	} else if blocked {
		log.Debug("job waits for blocking job", "blocking_job_id", *job.BlockingJobID)
		d.skip(result, "blocked")
		return
	}

	candidates, err := d.source.ServicesByLoad(ctx, job.JobType)
	if err != nil {
		log.Warn("failed to load services", "error", err)
		d.skip(result, "error")
		return
	}

	var target *core.ServiceLoad
	for i := range candidates {
		if candidates[i].HasCapacity(job.Load) {
			target = &candidates[i]
			break
		}
	}
	if target == nil {
		log.Debug("no service with capacity", "services", len(candidates), "load", job.Load)
		d.skip(result, "no_capacity")
		return
	}

	next := job.Clone()
	next.Status = core.StatusRunning
	next.ProcessingHost = target.HostURL
	if err := d.source.UpdateJob(ctx, next); err != nil {
		if errors.Is(err, core.ErrConflict) {
			log.Debug("job taken by another writer")
			d.skip(result, "conflict")
			return
		}
		log.Warn("failed to assign job", "host", target.HostURL, "error", err)
		d.skip(result, "error")
		return
	}

	result.Dispatched++
	d.metrics.dispatched.WithLabelValues(job.JobType).Inc()
	log.Debug("job dispatched", "host", target.HostURL, "host_load", target.HostLoad, "version", next.Version)
}

// isBlocked reports whether the job waits for another job that has not
// reached a terminal status. A blocking job that no longer exists does not block.
func (d *Dispatcher) isBlocked(ctx context.Context, job *core.Job) (bool, error) {
	if job.BlockingJobID == nil {
		return false, nil
	}
	blocking, err := d.source.GetJob(ctx, *job.BlockingJobID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !blocking.Status.IsTerminal(), nil
}

func (d *Dispatcher) skip(result *CycleResult, reason string) {
	switch reason {
	case "conflict":
		result.Conflicts++
	case "no_capacity":
		result.NoCapacity++
	case "blocked":
		result.Blocked++
	default:
		result.Errors++
	}
	d.metrics.skipped.WithLabelValues(reason).Inc()
}
