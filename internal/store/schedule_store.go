package store

import (
	"context"
	"errors"
	"time"

	"crawlsched/internal/models"
)

// ErrNotFound is returned when a schedule or execution does not exist.
var ErrNotFound = errors.New("not found")

// ScheduleStore is the durable source of truth for schedule definitions and
// execution history. The executor never caches schedules across passes.
type ScheduleStore interface {
	// CreateSchedule inserts a new schedule. ID, CreatedAt and UpdatedAt
	// are filled in by the store.
	CreateSchedule(ctx context.Context, s *models.Schedule) error

	// GetSchedule returns ErrNotFound if the id is unknown.
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)

	GetAllSchedules(ctx context.Context, page, pageSize int) (*models.PaginationResult[models.Schedule], error)

	// GetSchedulesToRun returns enabled schedules whose next run is due,
	// ordered by next run time ascending.
	GetSchedulesToRun(ctx context.Context) ([]models.Schedule, error)

	// UpdateSchedule applies a partial update; nil fields are unchanged.
	UpdateSchedule(ctx context.Context, id string, upd models.ScheduleUpdate) error

	// ApplyRunResult updates the run-time fields of a schedule after an
	// execution settles: LastRunAt, NextRunAt and the run counters.
	ApplyRunResult(ctx context.Context, id string, lastRun, nextRun time.Time, succeeded bool) error

	DeleteSchedule(ctx context.Context, id string) error

	// RecordExecution inserts a new execution row, normally with status
	// "running", at the start of an attempt.
	RecordExecution(ctx context.Context, exec *models.Execution) error

	// FinalizeExecution settles a running execution exactly once.
	FinalizeExecution(ctx context.Context, id string, upd models.ExecutionUpdate) error

	GetExecutions(ctx context.Context, scheduleID string, page, pageSize int) (*models.PaginationResult[models.Execution], error)

	Close() error
}
