package core

import (
	"context"
	"time"
)

// Starter is the interface for long-running registry loops.
type Starter interface {
	Start(ctx context.Context) error
}

// JobFilter narrows job queries. Zero values match everything.
type JobFilter struct {
	JobType   string
	Status    JobStatus
	Host      string
	Operation string
}

// JobCount is the number of jobs of one type in one status.
type JobCount struct {
	JobType string
	Status  JobStatus
	Count   int64
}

// JobCheck validates a pending update against the stored row. It may modify
// next (derived fields). Returning an error aborts the update.
type JobCheck func(stored, next *Job) error

// ReclaimedJob is a job moved to RESTART because its host or service went
// away. Job holds the committed row, From the status it had before.
type ReclaimedJob struct {
	Job  *Job
	From JobStatus
}

// HostStore persists hosts.
type HostStore interface {
	// UpsertHost creates the host or updates address, capacity and online flag.
	// An existing maintenance flag is preserved.
	UpsertHost(ctx context.Context, host *Host) error
	// DeleteHost removes the host and its services and moves its active jobs
	// to RESTART in one transaction. Returns the reclaimed jobs.
	DeleteHost(ctx context.Context, url string) ([]ReclaimedJob, error)
	SetHostMaintenance(ctx context.Context, url string, maintenance bool) error
	// SetHostOnline toggles the online flag. Taking a host offline reclaims
	// its active jobs. Returns the reclaimed jobs.
	SetHostOnline(ctx context.Context, url string, online bool) ([]ReclaimedJob, error)
	GetHost(ctx context.Context, url string) (*Host, error)
	GetHosts(ctx context.Context) ([]*Host, error)
}

// ServiceStore persists services and their health.
type ServiceStore interface {
	// UpsertService creates the service or refreshes its path and online flag.
	// Health state of an existing registration is preserved.
	UpsertService(ctx context.Context, svc *Service) error
	// DeleteService removes the service and moves its active jobs to RESTART.
	DeleteService(ctx context.Context, hostURL, jobType string) ([]ReclaimedJob, error)
	GetService(ctx context.Context, hostURL, jobType string) (*Service, error)
	GetServices(ctx context.Context, jobType string) ([]*Service, error)
	SaveServiceHealth(ctx context.Context, svc *Service) error
	// ServicesByLoad returns available services of the type, least loaded first.
	ServicesByLoad(ctx context.Context, jobType string) ([]ServiceLoad, error)
}

// JobStore persists jobs.
type JobStore interface {
	// CreateJob inserts the job, assigning ID and RootJobID.
	CreateJob(ctx context.Context, job *Job) error
	// UpdateJob re-reads the stored row, rejects stale versions, runs check and
	// writes the job with version+1.
	UpdateJob(ctx context.Context, job *Job, check JobCheck) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	GetJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	// GetChildJobs returns all descendants of the job ordered by id.
	GetChildJobs(ctx context.Context, id int64) ([]*Job, error)
	// GetDispatchableJobs returns dispatchable jobs in the given statuses.
	GetDispatchableJobs(ctx context.Context, statuses []JobStatus) ([]*Job, error)
	CountJobs(ctx context.Context, filter JobFilter) (int64, error)
	// CountJobsByType groups the jobs in the given statuses by type and status.
	CountJobsByType(ctx context.Context, statuses []JobStatus) ([]JobCount, error)
	// RemoveFinishedJobs deletes finished job trees bottom-up and returns the
	// number of deleted jobs.
	RemoveFinishedJobs(ctx context.Context, completedBefore time.Time) (int64, error)
}

// Storage defines the persistence layer for the registry.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	HostStore
	ServiceStore
	JobStore
}
