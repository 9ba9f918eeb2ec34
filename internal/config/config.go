// Package config loads the application configuration from a YAML file and
// watches it for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type StorageDriver string

const (
	Postgres StorageDriver = "postgres"
	Redis    StorageDriver = "redis"
)

type Config struct {
	LogLevel      string        `yaml:"log_level"`
	StorageDriver StorageDriver `yaml:"storage_driver"`

	Postgres struct {
		ConnectionURL string `yaml:"connection_url"`
	} `yaml:"postgres"`

	Redis struct {
		ConnectionURL string `yaml:"connection_url"`
	} `yaml:"redis"`

	AMQP struct {
		Enabled    bool   `yaml:"enabled"`
		URL        string `yaml:"url"`
		Exchange   string `yaml:"exchange"`
		Queue      string `yaml:"queue"`
		RoutingKey string `yaml:"routing_key"`
	} `yaml:"amqp"`

	Scheduler SchedulerConfig `yaml:"scheduler"`

	Dashboard struct {
		Enabled      bool   `yaml:"enabled"`
		Port         int    `yaml:"port"`
		AuthEnabled  bool   `yaml:"auth_enabled"`
		Username     string `yaml:"username"`
		PasswordHash string `yaml:"password_hash"` // bcrypt
	} `yaml:"dashboard"`
}

type SchedulerConfig struct {
	CheckIntervalMs      int  `yaml:"check_interval_ms"`
	MaxConcurrentRuns    int  `yaml:"max_concurrent_runs"`
	RetryFailedSchedules bool `yaml:"retry_failed_schedules"`
	RetryDelayMs         int  `yaml:"retry_delay_ms"`
}

func (s SchedulerConfig) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMs) * time.Millisecond
}

func (s SchedulerConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// Default returns the configuration used when fields are absent from the
// file. Load unmarshals on top of it, so absent keys keep these values.
func Default() Config {
	var cfg Config
	cfg.LogLevel = "info"
	cfg.StorageDriver = Postgres
	cfg.Scheduler = SchedulerConfig{
		CheckIntervalMs:      60000,
		MaxConcurrentRuns:    3,
		RetryFailedSchedules: true,
		RetryDelayMs:         300000,
	}
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Port = 8080
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case Postgres:
		if c.Postgres.ConnectionURL == "" {
			return fmt.Errorf("postgres.connection_url is required for the postgres driver")
		}
	case Redis:
		if c.Redis.ConnectionURL == "" {
			return fmt.Errorf("redis.connection_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.Scheduler.CheckIntervalMs <= 0 {
		return fmt.Errorf("scheduler.check_interval_ms must be positive")
	}
	if c.Scheduler.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_runs must be positive")
	}
	return nil
}
