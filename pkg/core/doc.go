// Package core provides the fundamental types and interfaces for the job registry.
//
// This package contains:
//   - Host, Service and Job data models with GORM annotations
//   - The job status and service health state enumerations
//   - Storage interfaces defining the persistence contract
//   - Event types for registry monitoring
//   - Sentinel errors shared by every layer
//
// Most users should import the root package github.com/jdziat/job-registry
// instead of this package directly.
package core
