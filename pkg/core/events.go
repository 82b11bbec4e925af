package core

import "time"

// Event is the interface for all registry events.
type Event interface {
	eventMarker()
}

// HostRegistered is emitted when a host registers or re-registers.
type HostRegistered struct {
	Host      *Host
	Timestamp time.Time
}

func (*HostRegistered) eventMarker() {}

// HostUnregistered is emitted when a host is removed.
type HostUnregistered struct {
	HostURL   string
	Reclaimed int64
	Timestamp time.Time
}

func (*HostUnregistered) eventMarker() {}

// ServiceUnregistered is emitted when a service is removed.
type ServiceUnregistered struct {
	HostURL   string
	JobType   string
	Reclaimed int64
	Timestamp time.Time
}

func (*ServiceUnregistered) eventMarker() {}

// ServiceStateChanged is emitted when the health monitor moves a service.
type ServiceStateChanged struct {
	HostURL   string
	JobType   string
	From      HealthState
	To        HealthState
	Trigger   int64
	Timestamp time.Time
}

func (*ServiceStateChanged) eventMarker() {}

// JobStatusChanged is emitted after a job update changed its status.
type JobStatusChanged struct {
	Job       *Job
	From      JobStatus
	Timestamp time.Time
}

func (*JobStatusChanged) eventMarker() {}

// JobsCollected is emitted after garbage collection removed jobs.
type JobsCollected struct {
	Removed   int64
	Timestamp time.Time
}

func (*JobsCollected) eventMarker() {}
