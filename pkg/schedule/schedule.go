package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule defines when a task should run next.
type Schedule interface {
	Next(from time.Time) time.Time
}

// everySchedule runs at fixed intervals.
type everySchedule struct {
	interval time.Duration
}

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

// cronSchedule wraps a cron expression.
type cronSchedule struct {
	schedule cron.Schedule
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron creates a schedule from a cron expression. It panics on invalid input;
// use ParseCron for values that come from configuration.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic("invalid cron expression: " + err.Error())
	}
	return s
}

// ParseCron parses a five-field cron expression or a descriptor such as "@hourly".
func ParseCron(expr string) (Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &cronSchedule{schedule: sched}, nil
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Parse accepts either a Go duration ("15m") or a cron expression ("0 * * * *").
func Parse(value string) (Schedule, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("schedule: empty schedule")
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule: interval must be positive, got %s", d)
		}
		return Every(d), nil
	}
	s, err := ParseCron(value)
	if err != nil {
		return nil, fmt.Errorf("schedule: %q is neither a duration nor a cron expression: %w", value, err)
	}
	return s, nil
}
