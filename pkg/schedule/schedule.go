// Package schedule defines when periodic submissions fire.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next submission time after a given instant.
type Schedule interface {
	Next(from time.Time) time.Time
}

// everySchedule fires at fixed intervals.
type everySchedule struct {
	interval time.Duration
}

// Every creates a schedule that fires at fixed intervals.
func Every(d time.Duration) Schedule {
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

// dailySchedule fires at a specific UTC time each day.
type dailySchedule struct {
	hour   int
	minute int
}

// Daily creates a schedule that fires at a specific UTC time each day.
func Daily(hour, minute int) Schedule {
	return &dailySchedule{hour: hour, minute: minute}
}

func (s *dailySchedule) Next(from time.Time) time.Time {
	from = from.In(time.UTC)
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// cronSchedule wraps a standard five-field cron expression.
type cronSchedule struct {
	schedule cron.Schedule
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) (Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("offload: invalid cron expression %q: %w", expr, err)
	}
	return &cronSchedule{schedule: sched}, nil
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}
