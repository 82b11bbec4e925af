// Package jobregistry provides a distributed job registry and dispatcher.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Open the shared store and build the registry
//	store, _ := jobregistry.Open(jobregistry.DriverSQLite, "registry.db")
//	store.Migrate(ctx)
//	reg := jobregistry.New(store)
//
//	// Advertise a worker host and the job types it serves
//	reg.RegisterHost(ctx, jobregistry.HostRegistration{URL: "http://worker-1:8080", MaxLoad: 4})
//	reg.RegisterService(ctx, "transcode", "http://worker-1:8080", "/run")
//
//	// Submit and queue a job
//	job, _ := reg.CreateJob(ctx, jobregistry.JobRequest{JobType: "transcode", Operation: "h264", Dispatchable: true})
//	reg.QueueJob(ctx, job.ID)
//
//	// Assign queued jobs to the least-loaded service
//	d := jobregistry.NewDispatcher(reg)
//	d.Start(ctx)
package jobregistry

import (
	"time"

	"github.com/jdziat/job-registry/pkg/core"
	"github.com/jdziat/job-registry/pkg/dispatcher"
	"github.com/jdziat/job-registry/pkg/health"
	"github.com/jdziat/job-registry/pkg/lifecycle"
	"github.com/jdziat/job-registry/pkg/registry"
	"github.com/jdziat/job-registry/pkg/schedule"
	"github.com/jdziat/job-registry/pkg/storage"
)

// Type aliases
type (
	// Job is a unit of work tracked by the registry.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// JobFilter narrows job queries.
	JobFilter = core.JobFilter

	// JobCount is a per type and status job count.
	JobCount = core.JobCount

	// ReclaimedJob is a job returned to RESTART by host or service removal.
	ReclaimedJob = core.ReclaimedJob

	// Host is a worker node advertising capacity.
	Host = core.Host

	// Service is a job type offered by a host.
	Service = core.Service

	// ServiceLoad is a dispatch candidate with its current load.
	ServiceLoad = core.ServiceLoad

	// HealthState is the computed health of a service.
	HealthState = core.HealthState

	// Storage defines the persistence layer shared by all nodes.
	Storage = core.Storage

	// Starter is implemented by the long-running loops.
	Starter = core.Starter

	// Event is the interface for all registry events.
	Event = core.Event

	// HostRegistered is emitted when a host registers or re-registers.
	HostRegistered = core.HostRegistered

	// HostUnregistered is emitted when a host is removed.
	HostUnregistered = core.HostUnregistered

	// ServiceUnregistered is emitted when a service is removed.
	ServiceUnregistered = core.ServiceUnregistered

	// ServiceStateChanged is emitted when a service changes health state.
	ServiceStateChanged = core.ServiceStateChanged

	// JobStatusChanged is emitted after a committed status change.
	JobStatusChanged = core.JobStatusChanged

	// JobsCollected is emitted after finished jobs are removed.
	JobsCollected = core.JobsCollected

	// Registry is the entry point for hosts, services and jobs.
	Registry = registry.Registry

	// Option configures a Registry.
	Option = registry.Option

	// HostRegistration describes a host announcing itself.
	HostRegistration = registry.HostRegistration

	// JobRequest describes a job to create.
	JobRequest = registry.JobRequest

	// GormStorage is the GORM-backed Storage.
	GormStorage = storage.GormStorage

	// PoolOption configures the database connection pool.
	PoolOption = storage.PoolOption

	// Dispatcher assigns dispatchable jobs to services.
	Dispatcher = dispatcher.Dispatcher

	// DispatcherOption configures a Dispatcher.
	DispatcherOption = dispatcher.Option

	// Ordering decides which dispatchable job is offered first.
	Ordering = dispatcher.Ordering

	// CycleResult summarizes one dispatch cycle.
	CycleResult = dispatcher.CycleResult

	// Collector removes finished job trees on a schedule.
	Collector = lifecycle.Collector

	// CollectorOption configures a Collector.
	CollectorOption = lifecycle.CollectorOption

	// Schedule computes the next run time of a periodic task.
	Schedule = schedule.Schedule

	// Outcome is a job result as seen by the health monitor.
	Outcome = health.Outcome
)

// Job status constants
const (
	StatusInstantiated = core.StatusInstantiated
	StatusQueued       = core.StatusQueued
	StatusDispatching  = core.StatusDispatching
	StatusRunning      = core.StatusRunning
	StatusPaused       = core.StatusPaused
	StatusRestart      = core.StatusRestart
	StatusFinished     = core.StatusFinished
	StatusFailed       = core.StatusFailed
	StatusCanceled     = core.StatusCanceled
)

// Health state constants
const (
	HealthNormal  = core.HealthNormal
	HealthWarning = core.HealthWarning
	HealthError   = core.HealthError
)

// Database drivers accepted by Open.
const (
	DriverSQLite   = storage.DriverSQLite
	DriverPostgres = storage.DriverPostgres
)

// Errors
var (
	ErrNotFound            = core.ErrNotFound
	ErrJobNotFound         = core.ErrJobNotFound
	ErrHostNotFound        = core.ErrHostNotFound
	ErrServiceNotFound     = core.ErrServiceNotFound
	ErrConflict            = core.ErrConflict
	ErrInvalidTransition   = core.ErrInvalidTransition
	ErrRegistryUnavailable = core.ErrRegistryUnavailable
	ErrInvalidJobType      = core.ErrInvalidJobType
	ErrInvalidOperation    = core.ErrInvalidOperation
	ErrInvalidHostURL      = core.ErrInvalidHostURL
	ErrPayloadTooLarge     = core.ErrPayloadTooLarge
	ErrInvalidLoad         = core.ErrInvalidLoad
)

var _ Starter = (*Dispatcher)(nil)
var _ Starter = (*Collector)(nil)

// Open connects to a database and returns the shared store.
func Open(driver, dsn string, opts ...PoolOption) (*GormStorage, error) {
	return storage.Open(driver, dsn, opts...)
}

// New creates a Registry on top of s.
func New(s Storage, opts ...Option) *Registry {
	return registry.New(s, opts...)
}

// NewDispatcher creates a Dispatcher fed by reg.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	return dispatcher.New(reg, opts...)
}

// NewCollector creates a Collector removing job trees finished more than
// minAge ago, each time sched fires.
func NewCollector(reg *Registry, sched Schedule, minAge time.Duration, opts ...CollectorOption) *Collector {
	return lifecycle.NewCollector(reg, sched, minAge, opts...)
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	return lifecycle.CanTransition(from, to)
}

// Option re-exports

// WithLogger sets the registry logger.
var WithLogger = registry.WithLogger

// MaxAttemptsBeforeErrorState sets how many failures of other signatures a
// WARNING service absorbs before it is put in ERROR.
var MaxAttemptsBeforeErrorState = registry.MaxAttemptsBeforeErrorState

// UpdateRetries sets how often UpdateJobFunc retries on conflict.
var UpdateRetries = registry.UpdateRetries

// Dispatcher options
var (
	DispatchInterval = dispatcher.Interval
	NodeID           = dispatcher.NodeID
	WithOrdering     = dispatcher.WithOrdering
	HeavyJobTypes    = dispatcher.HeavyJobTypes
	WithMetrics      = dispatcher.WithMetrics
	DefaultOrdering  = dispatcher.DefaultOrdering
)

// Schedules
var (
	Every         = schedule.Every
	Cron          = schedule.Cron
	ParseSchedule = schedule.Parse
)
