package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jdziat/job-registry/pkg/core"
	"github.com/jdziat/job-registry/pkg/health"
	"github.com/jdziat/job-registry/pkg/lifecycle"
	"github.com/jdziat/job-registry/pkg/security"
)

var _ lifecycle.JobRemover = (*Registry)(nil)

// JobRequest describes a job to create.
type JobRequest struct {
	JobType      string
	Operation    string
	Arguments    []string
	Payload      string
	Dispatchable bool
	// Load is the job's weight against host capacity. Zero means DefaultJobLoad.
	Load          float64
	ParentJobID   *int64
	BlockingJobID *int64

	CreatorName  string
	Organization string
	// CreatedHost is the host the job was created on, if any.
	CreatedHost string
}

// CreateJob creates a job in INSTANTIATED with version 1. A child job joins
// its parent's hierarchy; the parent must exist.
func (r *Registry) CreateJob(ctx context.Context, req JobRequest) (*core.Job, error) {
	if err := security.ValidateJobType(req.JobType); err != nil {
		return nil, err
	}
	if err := security.ValidateOperation(req.Operation); err != nil {
		return nil, err
	}
	if err := security.ValidatePayload(req.Payload, req.Arguments); err != nil {
		return nil, err
	}
	load := req.Load
	if load == 0 {
		load = DefaultJobLoad
	}
	if err := security.ValidateLoad(load); err != nil {
		return nil, err
	}

	job := &core.Job{
		JobType:       req.JobType,
		Operation:     req.Operation,
		Arguments:     core.Strings(req.Arguments),
		Payload:       req.Payload,
		Status:        core.StatusInstantiated,
		CreatorName:   security.SanitizeText(req.CreatorName),
		Organization:  security.SanitizeText(req.Organization),
		CreatedHost:   req.CreatedHost,
		DateCreated:   time.Now().UTC(),
		Dispatchable:  req.Dispatchable,
		Load:          load,
		ParentJobID:   req.ParentJobID,
		BlockingJobID: req.BlockingJobID,
	}
	if err := r.storage.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	r.logger.Debug("job created", "job_id", job.ID, "job_type", job.JobType, "operation", job.Operation, "root_job_id", *job.RootJobID)
	return job, nil
}

// UpdateJob writes job if its version still matches the stored one. The status
// change must be legal; derived fields such as queue and run time are filled
// in. On success job holds the new version. A stale version fails with
// core.ErrConflict and the caller should re-read and retry.
//
// FINISHED and FAILED outcomes are reported to the health monitor for the
// service that processed the job.
func (r *Registry) UpdateJob(ctx context.Context, job *core.Job) error {
	var from core.JobStatus
	err := r.storage.UpdateJob(ctx, job, func(stored, next *core.Job) error {
		from = stored.Status
		return lifecycle.Apply(stored, next)
	})
	if err != nil {
		return err
	}

	if from != job.Status {
		r.afterStatusChange(ctx, job.Clone(), from)
	}
	return nil
}

func (r *Registry) afterStatusChange(ctx context.Context, job *core.Job, from core.JobStatus) {
	r.logger.Debug("job status changed", "job_id", job.ID, "from", from, "to", job.Status, "host", job.ProcessingHost)

	if outcome, ok := health.OutcomeOf(job.Status); ok && job.ProcessingHost != "" {
		// The update is committed; a failing health write must not undo it.
		if err := r.monitor.Record(ctx, job.ProcessingHost, job.JobType, outcome, job.Signature); err != nil {
			r.logger.Warn("failed to record job outcome", "job_id", job.ID, "host", job.ProcessingHost, "error", err)
		}
	}

	r.callStatusHooks(ctx, job, from)
	r.Emit(&core.JobStatusChanged{Job: job, From: from, Timestamp: time.Now()})
}

// UpdateJobFunc reads the job, applies fn and writes it back, starting over
// from a fresh read when another writer got there first. It gives up with
// core.ErrConflict after the configured number of attempts.
func (r *Registry) UpdateJobFunc(ctx context.Context, id int64, fn func(*core.Job) error) (*core.Job, error) {
	var lastErr error
	for attempt := 0; attempt < r.opts.UpdateRetries; attempt++ {
		job, err := r.storage.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(job); err != nil {
			return nil, err
		}
		err = r.UpdateJob(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, core.ErrConflict) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("job %d: giving up after %d attempts: %w", id, r.opts.UpdateRetries, lastErr)
}

// QueueJob moves a job to QUEUED so the dispatcher can pick it up.
func (r *Registry) QueueJob(ctx context.Context, id int64) (*core.Job, error) {
	return r.UpdateJobFunc(ctx, id, func(j *core.Job) error {
		j.Status = core.StatusQueued
		return nil
	})
}

// RequeueJob returns a job to the queue as RESTART, ahead of fresh work.
func (r *Registry) RequeueJob(ctx context.Context, id int64) (*core.Job, error) {
	return r.UpdateJobFunc(ctx, id, func(j *core.Job) error {
		j.Status = core.StatusRestart
		return nil
	})
}

// GetJob retrieves a job by ID.
func (r *Registry) GetJob(ctx context.Context, id int64) (*core.Job, error) {
	return r.storage.GetJob(ctx, id)
}

// GetJobs returns jobs filtered by type and status. Empty values match all.
func (r *Registry) GetJobs(ctx context.Context, jobType string, status core.JobStatus) ([]*core.Job, error) {
	return r.storage.GetJobs(ctx, core.JobFilter{JobType: jobType, Status: status})
}

// GetDispatchableJobs returns the dispatchable jobs in QUEUED or RESTART.
func (r *Registry) GetDispatchableJobs(ctx context.Context) ([]*core.Job, error) {
	return r.storage.GetDispatchableJobs(ctx, core.DispatchableStatuses)
}

// GetChildJobs returns all descendants of the job, ordered by id.
func (r *Registry) GetChildJobs(ctx context.Context, rootID int64) ([]*core.Job, error) {
	return r.storage.GetChildJobs(ctx, rootID)
}

// Count counts jobs by type and status. Empty values match all.
func (r *Registry) Count(ctx context.Context, jobType string, status core.JobStatus) (int64, error) {
	return r.storage.CountJobs(ctx, core.JobFilter{JobType: jobType, Status: status})
}

// CountByType counts the jobs in the given statuses per job type and status.
func (r *Registry) CountByType(ctx context.Context, statuses ...core.JobStatus) ([]core.JobCount, error) {
	return r.storage.CountJobsByType(ctx, statuses)
}

// CountByHost counts the jobs of a type and status processed by host.
func (r *Registry) CountByHost(ctx context.Context, jobType, host string, status core.JobStatus) (int64, error) {
	return r.storage.CountJobs(ctx, core.JobFilter{JobType: jobType, Host: host, Status: status})
}

// CountByOperation counts the jobs of a type and status running operation.
func (r *Registry) CountByOperation(ctx context.Context, jobType, operation string, status core.JobStatus) (int64, error) {
	return r.storage.CountJobs(ctx, core.JobFilter{JobType: jobType, Operation: operation, Status: status})
}

// RemoveParentlessJobs deletes finished job hierarchies completed at least
// minAge ago, leaves first. A job is kept as long as it has children.
func (r *Registry) RemoveParentlessJobs(ctx context.Context, minAge time.Duration) (int64, error) {
	if minAge < 0 {
		minAge = 0
	}
	removed, err := r.storage.RemoveFinishedJobs(ctx, time.Now().UTC().Add(-minAge))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.Emit(&core.JobsCollected{Removed: removed, Timestamp: time.Now()})
	}
	return removed, nil
}
