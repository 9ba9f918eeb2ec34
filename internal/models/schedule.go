package models

import (
	"encoding/json"
	"time"
)

// Schedule is a persisted recurring crawl job. The executor is the only
// writer of the run-time fields (counters, LastRunAt, NextRunAt); owners
// create schedules and toggle Enabled through the store.
type Schedule struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Expression     string          `db:"expression" json:"expression"`
	Config         json.RawMessage `db:"config" json:"config"`
	Enabled        bool            `db:"enabled" json:"enabled"`
	LastRunAt      *time.Time      `db:"last_run_at" json:"last_run_at,omitempty"`
	NextRunAt      time.Time       `db:"next_run_at" json:"next_run_at"`
	TotalRuns      int             `db:"total_runs" json:"total_runs"`
	SuccessfulRuns int             `db:"successful_runs" json:"successful_runs"`
	FailedRuns     int             `db:"failed_runs" json:"failed_runs"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// ScheduleUpdate is a partial update; nil fields are left unchanged.
type ScheduleUpdate struct {
	Name       *string         `json:"name,omitempty"`
	Expression *string         `json:"expression,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
}

// CrawlConfig is the payload a schedule hands to the crawl worker.
type CrawlConfig struct {
	StartURL              string  `json:"start_url"`
	MaxDepth              int     `json:"max_depth"`
	MaxPages              int     `json:"max_pages"`
	Concurrency           int     `json:"concurrency"`
	RequestsPerSecond     float64 `json:"requests_per_second"`
	UserAgent             string  `json:"user_agent"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds"`
}
