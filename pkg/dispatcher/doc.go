// Package dispatcher provides the Dispatcher type for load-aware job placement.
//
// This package includes:
//   - Dispatcher: assigns queued jobs to the least loaded capable service
//   - Ordering: the priority order in which jobs are offered for placement
//   - Option: configuration options for dispatchers
//   - Retry with backoff for store reads
//
// Several dispatchers may run against the same store. Every assignment is a
// version-guarded job update, so when two nodes race for a job one of them
// wins and the other skips it.
package dispatcher
