// Package registry provides the Registry type, the collaborator-facing
// surface of the job registry.
//
// This package includes:
//   - Registry: host and service registration, job creation and guarded updates
//   - Option: configuration options for the Registry
//   - Hook registration for job status changes
//   - Event subscription for monitoring
//
// Most users should import the root package github.com/jdziat/job-registry
// which re-exports Registry and its option functions.
package registry
