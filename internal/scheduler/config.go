package scheduler

import "time"

const (
	DefaultCheckInterval     = time.Minute
	DefaultMaxConcurrentRuns = 3
	DefaultRetryDelay        = 5 * time.Minute
)

// Config controls the executor's polling loop and retry behavior.
type Config struct {
	CheckInterval        time.Duration
	MaxConcurrentRuns    int
	RetryFailedSchedules bool
	RetryDelay           time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:        DefaultCheckInterval,
		MaxConcurrentRuns:    DefaultMaxConcurrentRuns,
		RetryFailedSchedules: true,
		RetryDelay:           DefaultRetryDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// ConfigUpdate is a partial config change; nil fields are left unchanged.
type ConfigUpdate struct {
	CheckInterval        *time.Duration
	MaxConcurrentRuns    *int
	RetryFailedSchedules *bool
	RetryDelay           *time.Duration
}

// Status is a read-only snapshot of the executor.
type Status struct {
	Running           bool
	ActiveRuns        int
	MaxConcurrentRuns int
	CheckInterval     time.Duration
}
