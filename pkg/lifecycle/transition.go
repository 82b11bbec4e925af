package lifecycle

import (
	"time"

	"github.com/jdziat/job-registry/pkg/core"
)

var transitions = map[core.JobStatus][]core.JobStatus{
	core.StatusInstantiated: {core.StatusQueued, core.StatusDispatching, core.StatusRunning, core.StatusPaused, core.StatusCanceled, core.StatusFailed},
	core.StatusQueued:       {core.StatusDispatching, core.StatusRunning, core.StatusPaused, core.StatusRestart, core.StatusCanceled, core.StatusFailed},
	core.StatusDispatching:  {core.StatusRunning, core.StatusQueued, core.StatusRestart, core.StatusCanceled, core.StatusFailed},
	core.StatusRunning:      {core.StatusFinished, core.StatusFailed, core.StatusCanceled, core.StatusPaused, core.StatusRestart},
	core.StatusPaused:       {core.StatusQueued, core.StatusRunning, core.StatusRestart, core.StatusCanceled, core.StatusFailed},
	core.StatusRestart:      {core.StatusQueued, core.StatusDispatching, core.StatusRunning, core.StatusCanceled, core.StatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
// Keeping the current status is always allowed, except for unknown statuses.
func CanTransition(from, to core.JobStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Apply validates the change from stored to next and fills in the derived
// fields of next. It matches core.JobCheck.
func Apply(stored, next *core.Job) error {
	return ApplyAt(stored, next, time.Now().UTC())
}

// ApplyAt is Apply with an explicit clock.
func ApplyAt(stored, next *core.Job, now time.Time) error {
	if !CanTransition(stored.Status, next.Status) {
		return &core.TransitionError{JobID: stored.ID, From: stored.Status, To: next.Status}
	}

	// Identity and hierarchy belong to the stored row.
	next.ID = stored.ID
	next.JobType = stored.JobType
	next.Operation = stored.Operation
	next.DateCreated = stored.DateCreated
	next.ParentJobID = stored.ParentJobID
	next.RootJobID = stored.RootJobID
	next.Signature = stored.Signature

	switch next.Status {
	case core.StatusQueued, core.StatusRestart, core.StatusInstantiated:
		next.ProcessingHost = ""
	}

	if next.Status.IsActive() && next.ProcessingHost == "" {
		return &core.TransitionError{
			JobID: stored.ID, From: stored.Status, To: next.Status,
			Reason: "no processing host assigned",
		}
	}

	if next.Status == stored.Status {
		return nil
	}

	switch {
	case next.Status == core.StatusRunning:
		// Only a paused job resumes its run; every other entry starts a new one.
		if stored.Status != core.StatusPaused || next.DateStarted == nil {
			started := now
			next.DateStarted = &started
		}
		next.QueueTime = millisBetween(next.DateCreated, *next.DateStarted)
	case next.Status.IsTerminal():
		completed := now
		next.DateCompleted = &completed
		if next.DateStarted != nil {
			next.RunTime = millisBetween(*next.DateStarted, completed)
		}
	}
	return nil
}

func millisBetween(from, to time.Time) int64 {
	d := to.Sub(from).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
