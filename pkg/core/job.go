// Package core provides the domain models and interfaces for the job registry.
package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusInstantiated JobStatus = "INSTANTIATED"
	StatusQueued       JobStatus = "QUEUED"
	StatusDispatching  JobStatus = "DISPATCHING"
	StatusRunning      JobStatus = "RUNNING"
	StatusPaused       JobStatus = "PAUSED"  // Waiting on an external condition
	StatusRestart      JobStatus = "RESTART" // Returned to the queue after losing its host or service
	StatusFinished     JobStatus = "FINISHED"
	StatusFailed       JobStatus = "FAILED"
	StatusCanceled     JobStatus = "CANCELED"
)

// AllStatuses lists every known job status.
var AllStatuses = []JobStatus{
	StatusInstantiated, StatusQueued, StatusDispatching, StatusRunning, StatusPaused,
	StatusRestart, StatusFinished, StatusFailed, StatusCanceled,
}

// TerminalStatuses are the statuses a job never leaves.
var TerminalStatuses = []JobStatus{StatusFinished, StatusFailed, StatusCanceled}

// ActiveStatuses are the statuses that hold a processing host and count towards its load.
var ActiveStatuses = []JobStatus{StatusRunning, StatusDispatching}

// DispatchableStatuses are the statuses the dispatcher picks jobs from.
var DispatchableStatuses = []JobStatus{StatusQueued, StatusRestart}

// IsTerminal reports whether s is FINISHED, FAILED or CANCELED.
func (s JobStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCanceled
}

// IsActive reports whether a job in status s must hold a processing host.
func (s JobStatus) IsActive() bool {
	return s == StatusRunning || s == StatusDispatching
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Job represents a unit of work tracked by the registry.
type Job struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	JobType      string    `gorm:"index;size:255;not null"`
	Operation    string    `gorm:"index;size:255"`
	Arguments    Strings   `gorm:"type:text"`
	Payload      string    `gorm:"type:text"`
	Status       JobStatus `gorm:"index;size:20;not null"`
	CreatorName  string    `gorm:"size:255"`
	Organization string    `gorm:"size:255"`
	CreatedHost  string    `gorm:"size:255"`

	DateCreated   time.Time `gorm:"index;not null"`
	DateStarted   *time.Time
	DateCompleted *time.Time `gorm:"index"`
	QueueTime     int64      // milliseconds between creation and start
	RunTime       int64      // milliseconds between start and completion

	// Optimistic concurrency token, bumped on every successful update.
	Version int64 `gorm:"not null;default:1"`

	Dispatchable bool    `gorm:"index"`
	Load         float64 `gorm:"not null"`

	// Hierarchy
	ParentJobID *int64 `gorm:"index"`
	RootJobID   *int64 `gorm:"index"`

	// Ordering dependencies
	BlockingJobID *int64 `gorm:"index"`
	BlockedJobIDs IDs    `gorm:"type:text"`

	Signature      int64  `gorm:"index"`
	ProcessingHost string `gorm:"index;size:255"`
}

// IsRoot reports whether the job has no parent.
func (j *Job) IsRoot() bool {
	return j.ParentJobID == nil
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Arguments = append(Strings(nil), j.Arguments...)
	cp.BlockedJobIDs = append(IDs(nil), j.BlockedJobIDs...)
	return &cp
}

// Signature identifies the kind of work a job performs, independent of the instance.
// Two jobs with the same type and operation always share a signature.
func Signature(jobType, operation string) int64 {
	d := xxhash.New()
	_, _ = d.WriteString(jobType)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(operation)
	return int64(d.Sum64())
}

// Strings is a list of strings persisted as a JSON array.
type Strings []string

// Value implements driver.Valuer.
func (s Strings) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *Strings) Scan(src any) error {
	return scanJSON(src, (*[]string)(s))
}

// IDs is a list of job ids persisted as a JSON array.
type IDs []int64

// Value implements driver.Valuer.
func (ids IDs) Value() (driver.Value, error) {
	if ids == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(ids))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (ids *IDs) Scan(src any) error {
	return scanJSON(src, (*[]int64)(ids))
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("registry: cannot scan %T into JSON list", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
