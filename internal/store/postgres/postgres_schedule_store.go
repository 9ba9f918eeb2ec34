package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"crawlsched/internal/models"
	"crawlsched/internal/store"
)

type PostgresScheduleStore struct {
	db *sqlx.DB
}

func NewPostgresScheduleStore(db *sqlx.DB) *PostgresScheduleStore {
	return &PostgresScheduleStore{db: db}
}

// Open connects to Postgres and ensures the schema exists.
func Open(connection string) (*PostgresScheduleStore, error) {
	db, err := sqlx.Connect("postgres", connection)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgresScheduleStore(db), nil
}

func (r *PostgresScheduleStore) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `
		INSERT INTO crawlsched.schedules
			(id, name, expression, config, enabled, next_run_at,
			 total_runs, successful_runs, failed_runs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, $7, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.Expression, []byte(s.Config), s.Enabled, s.NextRunAt, now)
	return err
}

func (r *PostgresScheduleStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var s models.Schedule
	query := `
		SELECT id, name, expression, config, enabled, last_run_at, next_run_at,
		       total_runs, successful_runs, failed_runs, created_at, updated_at
		FROM crawlsched.schedules
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresScheduleStore) GetAllSchedules(ctx context.Context, page, pageSize int) (*models.PaginationResult[models.Schedule], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM crawlsched.schedules`); err != nil {
		return nil, err
	}

	var items []models.Schedule
	query := `
		SELECT id, name, expression, config, enabled, last_run_at, next_run_at,
		       total_runs, successful_runs, failed_runs, created_at, updated_at
		FROM crawlsched.schedules
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`
	if err := r.db.SelectContext(ctx, &items, query, pageSize, offset); err != nil {
		return nil, err
	}
	return paginate(items, total, page, pageSize), nil
}

func (r *PostgresScheduleStore) GetSchedulesToRun(ctx context.Context) ([]models.Schedule, error) {
	var items []models.Schedule
	query := `
		SELECT id, name, expression, config, enabled, last_run_at, next_run_at,
		       total_runs, successful_runs, failed_runs, created_at, updated_at
		FROM crawlsched.schedules
		WHERE enabled = TRUE AND next_run_at <= now()
		ORDER BY next_run_at ASC
	`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PostgresScheduleStore) UpdateSchedule(ctx context.Context, id string, upd models.ScheduleUpdate) error {
	query := `
		UPDATE crawlsched.schedules
		SET name        = COALESCE($2, name),
		    expression  = COALESCE($3, expression),
		    config      = COALESCE($4, config),
		    enabled     = COALESCE($5, enabled),
		    next_run_at = COALESCE($6, next_run_at),
		    updated_at  = now()
		WHERE id = $1
	`
	var config []byte
	if upd.Config != nil {
		config = []byte(upd.Config)
	}
	res, err := r.db.ExecContext(ctx, query, id, upd.Name, upd.Expression, config, upd.Enabled, upd.NextRunAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresScheduleStore) ApplyRunResult(ctx context.Context, id string, lastRun, nextRun time.Time, succeeded bool) error {
	query := `
		UPDATE crawlsched.schedules
		SET last_run_at     = $2,
		    next_run_at     = $3,
		    total_runs      = total_runs + 1,
		    successful_runs = successful_runs + CASE WHEN $4 THEN 1 ELSE 0 END,
		    failed_runs     = failed_runs + CASE WHEN $4 THEN 0 ELSE 1 END,
		    updated_at      = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, lastRun, nextRun, succeeded)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresScheduleStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM crawlsched.schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresScheduleStore) RecordExecution(ctx context.Context, exec *models.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO crawlsched.executions
			(id, schedule_id, status, triggered_by, started_at, pages_crawled, pages_found)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		exec.ID, exec.ScheduleID, exec.Status, exec.Trigger, exec.StartedAt,
		exec.PagesCrawled, exec.PagesFound)
	return err
}

func (r *PostgresScheduleStore) FinalizeExecution(ctx context.Context, id string, upd models.ExecutionUpdate) error {
	query := `
		UPDATE crawlsched.executions
		SET status        = $2,
		    completed_at  = $3,
		    duration_ms   = $4,
		    pages_crawled = $5,
		    pages_found   = $6,
		    error_message = $7
		WHERE id = $1 AND status = 'running'
	`
	res, err := r.db.ExecContext(ctx, query,
		id, upd.Status, upd.CompletedAt, upd.DurationMs,
		upd.PagesCrawled, upd.PagesFound, upd.ErrorMessage)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresScheduleStore) GetExecutions(ctx context.Context, scheduleID string, page, pageSize int) (*models.PaginationResult[models.Execution], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM crawlsched.executions WHERE schedule_id = $1`, scheduleID); err != nil {
		return nil, err
	}

	var items []models.Execution
	query := `
		SELECT id, schedule_id, status, triggered_by, started_at, completed_at,
		       duration_ms, pages_crawled, pages_found, error_message
		FROM crawlsched.executions
		WHERE schedule_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &items, query, scheduleID, pageSize, offset); err != nil {
		return nil, err
	}
	return paginate(items, total, page, pageSize), nil
}

func (r *PostgresScheduleStore) Close() error {
	return r.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func paginate[T any](items []T, total, page, pageSize int) *models.PaginationResult[T] {
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	return &models.PaginationResult[T]{
		Items:           items,
		TotalItems:      total,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}
