// Package schedule provides schedules for the registry's periodic maintenance.
//
// This package includes:
//   - Schedule interface for defining when a task runs next
//   - Every() for fixed-interval schedules
//   - Cron() and ParseCron() for cron expression-based schedules
//   - Parse() for configuration values that are either a duration or a cron expression
//
// The garbage collector in pkg/lifecycle is driven by a Schedule.
package schedule
