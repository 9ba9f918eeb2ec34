package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlsched/internal/models"
	"crawlsched/internal/store"
)

func newMockedStore(t *testing.T) (*PostgresScheduleStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresScheduleStore(sqlx.NewDb(db, "sqlmock")), mock
}

func scheduleColumns() []string {
	return []string{
		"id", "name", "expression", "config", "enabled", "last_run_at", "next_run_at",
		"total_runs", "successful_runs", "failed_runs", "created_at", "updated_at",
	}
}

func TestGetSchedulesToRun(t *testing.T) {
	st, mock := newMockedStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(scheduleColumns()).
		AddRow("s1", "docs", "*/15 * * * *", []byte(`{}`), true, nil, now.Add(-time.Minute), 3, 2, 1, now, now).
		AddRow("s2", "blog", "0 9 * * *", []byte(`{}`), true, nil, now.Add(-time.Hour), 0, 0, 0, now, now)

	mock.ExpectQuery(`WHERE enabled = TRUE AND next_run_at <= now\(\)`).
		WillReturnRows(rows)

	due, err := st.GetSchedulesToRun(context.Background())
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "s1", due[0].ID)
	assert.Equal(t, "blog", due[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSchedule_NotFound(t *testing.T) {
	st, mock := newMockedStore(t)

	mock.ExpectQuery(`FROM crawlsched\.schedules\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(scheduleColumns()))

	_, err := st.GetSchedule(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRunResult(t *testing.T) {
	st, mock := newMockedStore(t)
	lastRun := time.Now().UTC()
	nextRun := lastRun.Add(15 * time.Minute)

	mock.ExpectExec(`UPDATE crawlsched\.schedules`).
		WithArgs("s1", lastRun, nextRun, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.ApplyRunResult(context.Background(), "s1", lastRun, nextRun, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRunResult_UnknownSchedule(t *testing.T) {
	st, mock := newMockedStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE crawlsched\.schedules`).
		WithArgs("ghost", now, now, false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.ApplyRunResult(context.Background(), "ghost", now, now, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordAndFinalizeExecution(t *testing.T) {
	st, mock := newMockedStore(t)
	startedAt := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO crawlsched\.executions`).
		WithArgs(sqlmock.AnyArg(), "s1", string(models.ExecutionRunning), models.TriggerScheduled, startedAt, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec := &models.Execution{
		ScheduleID: "s1",
		Status:     models.ExecutionRunning,
		Trigger:    models.TriggerScheduled,
		StartedAt:  startedAt,
	}
	require.NoError(t, st.RecordExecution(context.Background(), exec))
	assert.NotEmpty(t, exec.ID, "store assigns an id")

	completedAt := startedAt.Add(3 * time.Second)
	errMsg := "timeout"
	mock.ExpectExec(`UPDATE crawlsched\.executions`).
		WithArgs(exec.ID, string(models.ExecutionFailed), completedAt, int64(3000), 4, 9, &errMsg).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.FinalizeExecution(context.Background(), exec.ID, models.ExecutionUpdate{
		Status:       models.ExecutionFailed,
		CompletedAt:  completedAt,
		DurationMs:   3000,
		PagesCrawled: 4,
		PagesFound:   9,
		ErrorMessage: &errMsg,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchedule(t *testing.T) {
	st, mock := newMockedStore(t)

	mock.ExpectExec(`INSERT INTO crawlsched\.schedules`).
		WithArgs(sqlmock.AnyArg(), "docs", "*/15 * * * *", []byte(`{"start_url":"https://example.com"}`),
			true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sched := &models.Schedule{
		Name:       "docs",
		Expression: "*/15 * * * *",
		Config:     json.RawMessage(`{"start_url":"https://example.com"}`),
		Enabled:    true,
		NextRunAt:  time.Now().UTC().Add(15 * time.Minute),
	}
	require.NoError(t, st.CreateSchedule(context.Background(), sched))
	assert.NotEmpty(t, sched.ID)
	assert.False(t, sched.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
