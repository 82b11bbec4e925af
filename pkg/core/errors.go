package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to collaborators. Check them with errors.Is.
var (
	ErrNotFound            = errors.New("registry: not found")
	ErrConflict            = errors.New("registry: version conflict")
	ErrInvalidTransition   = errors.New("registry: invalid status transition")
	ErrRegistryUnavailable = errors.New("registry: store unavailable")
)

// Specific not-found errors. Each also matches ErrNotFound.
var (
	ErrJobNotFound     = &NotFoundError{Kind: "job"}
	ErrHostNotFound    = &NotFoundError{Kind: "host"}
	ErrServiceNotFound = &NotFoundError{Kind: "service"}
)

// Validation errors
var (
	ErrInvalidJobType   = errors.New("registry: invalid job type (must be alphanumeric, start with letter)")
	ErrJobTypeTooLong   = errors.New("registry: job type too long")
	ErrInvalidOperation = errors.New("registry: invalid operation name")
	ErrInvalidHostURL   = errors.New("registry: invalid host url")
	ErrPayloadTooLarge  = errors.New("registry: job payload exceeds size limit")
	ErrInvalidLoad      = errors.New("registry: load must be a finite, non-negative number")
)

// NotFoundError reports an unknown job, host or service.
type NotFoundError struct {
	Kind string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: %s not found", e.Kind)
}

// Is makes every NotFoundError match ErrNotFound and NotFoundErrors of the same kind.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	var nf *NotFoundError
	if errors.As(target, &nf) {
		return nf.Kind == e.Kind
	}
	return false
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	JobID int64
	From  JobStatus
	To    JobStatus
	// Reason is set when the transition itself is legal but the job is not,
	// e.g. RUNNING without a processing host.
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("registry: invalid status transition %s -> %s for job %d: %s", e.From, e.To, e.JobID, e.Reason)
	}
	return fmt.Sprintf("registry: invalid status transition %s -> %s for job %d", e.From, e.To, e.JobID)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// UnavailableError wraps a failure of the underlying store.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("registry: store unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrRegistryUnavailable and the driver error.
func (e *UnavailableError) Unwrap() []error {
	return []error{ErrRegistryUnavailable, e.Err}
}

// Unavailable wraps a store error. Errors that already carry a registry kind
// are returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrRegistryUnavailable) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}
