// Package storage provides storage implementations for the job registry.
//
// This package includes:
//   - GormStorage: A GORM-based implementation supporting SQLite and PostgreSQL
//   - Open: connects to a database by driver name and applies pool settings
//
// The Storage interface is defined in pkg/core and must be implemented
// by any custom storage backend. Every job write goes through the optimistic
// version guard; host and service removal reclaims active jobs in the same
// transaction.
//
// Most users should import the root package github.com/jdziat/job-registry
// which provides Open() to create storage instances.
package storage
