package scheduler

import "errors"

var (
	// ErrScheduleNotFound is returned by TriggerSchedule for unknown ids.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrScheduleDisabled is returned by TriggerSchedule when the schedule
	// exists but is not enabled.
	ErrScheduleDisabled = errors.New("schedule is disabled")

	// ErrAlreadyRunning means the schedule has an execution in flight;
	// at most one execution per schedule may run at a time.
	ErrAlreadyRunning = errors.New("schedule already has an execution in flight")

	// ErrConcurrencyLimit means the global cap on concurrent executions is
	// reached. Due schedules are left for the next pass, never queued.
	ErrConcurrencyLimit = errors.New("concurrent execution limit reached")
)
