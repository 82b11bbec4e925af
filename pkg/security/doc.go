// Package security provides validation, sanitization, and limits for the job registry.
//
// This package includes:
//   - Input validation for job types, operation names and host URLs
//   - Size limits for job payloads and argument lists
//   - Load weight validation and capacity clamping
//
// The registry validates every host, service and job request with these
// functions before anything reaches the store.
package security
