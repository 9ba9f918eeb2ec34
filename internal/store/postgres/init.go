package postgres

import "github.com/jmoiron/sqlx"

// initSchema creates the crawlsched schema and tables if they do not exist.
func initSchema(db *sqlx.DB) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS crawlsched`,
		`CREATE TABLE IF NOT EXISTS crawlsched.schedules (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			expression      TEXT NOT NULL,
			config          JSONB NOT NULL DEFAULT '{}',
			enabled         BOOLEAN NOT NULL DEFAULT TRUE,
			last_run_at     TIMESTAMPTZ,
			next_run_at     TIMESTAMPTZ NOT NULL,
			total_runs      INTEGER NOT NULL DEFAULT 0,
			successful_runs INTEGER NOT NULL DEFAULT 0,
			failed_runs     INTEGER NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_due
			ON crawlsched.schedules (next_run_at) WHERE enabled`,
		`CREATE TABLE IF NOT EXISTS crawlsched.executions (
			id            TEXT PRIMARY KEY,
			schedule_id   TEXT NOT NULL REFERENCES crawlsched.schedules(id) ON DELETE CASCADE,
			status        TEXT NOT NULL,
			triggered_by  TEXT NOT NULL DEFAULT 'scheduled',
			started_at    TIMESTAMPTZ NOT NULL,
			completed_at  TIMESTAMPTZ,
			duration_ms   BIGINT,
			pages_crawled INTEGER NOT NULL DEFAULT 0,
			pages_found   INTEGER NOT NULL DEFAULT 0,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_schedule
			ON crawlsched.executions (schedule_id, started_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
