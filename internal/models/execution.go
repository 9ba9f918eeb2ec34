package models

import "time"

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Trigger kinds recorded on an execution.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerRetry     = "retry"
)

// Execution is one concrete attempt of a schedule. A row is inserted with
// status "running" when the attempt starts and finalized exactly once at
// settlement; it is never mutated afterwards.
type Execution struct {
	ID           string          `db:"id" json:"id"`
	ScheduleID   string          `db:"schedule_id" json:"schedule_id"`
	Status       ExecutionStatus `db:"status" json:"status"`
	Trigger      string          `db:"triggered_by" json:"triggered_by"`
	StartedAt    time.Time       `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	DurationMs   *int64          `db:"duration_ms" json:"duration_ms,omitempty"`
	PagesCrawled int             `db:"pages_crawled" json:"pages_crawled"`
	PagesFound   int             `db:"pages_found" json:"pages_found"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ExecutionUpdate finalizes a running execution.
type ExecutionUpdate struct {
	Status       ExecutionStatus
	CompletedAt  time.Time
	DurationMs   int64
	PagesCrawled int
	PagesFound   int
	ErrorMessage *string
}
