// Package health derives the health state of services from the outcomes of
// the jobs they process.
//
// A service starts NORMAL. A failed job moves it to WARNING and records the
// job's signature as the warning trigger. Further failures of that same
// signature are treated as a problem with that kind of work and do not
// escalate. Failures of other signatures point at the service itself: once
// more than MaxAttemptsBeforeErrorState of them are seen the service moves
// to ERROR and stops receiving work. Any successful job resets the service to
// NORMAL.
package health
