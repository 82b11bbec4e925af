// Package lifecycle enforces the job state machine and runs job garbage collection.
//
// This package includes:
//   - CanTransition and Apply: the central guard every job update passes through
//   - Collector: a scheduled loop removing finished job hierarchies
//
// Reclamation of jobs whose host or service vanished is executed by the storage
// layer inside the same transaction that removes the host or service.
package lifecycle
