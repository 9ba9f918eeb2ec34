package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
storage_driver: postgres
postgres:
  connection_url: postgres://localhost/crawlsched?sslmode=disable
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, Postgres, cfg.StorageDriver)
	assert.Equal(t, time.Minute, cfg.Scheduler.CheckInterval())
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrentRuns)
	assert.True(t, cfg.Scheduler.RetryFailedSchedules)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.RetryDelay())
	assert.True(t, cfg.Dashboard.Enabled)
	assert.Equal(t, 8080, cfg.Dashboard.Port)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
storage_driver: redis
redis:
  connection_url: redis://localhost:6379/0
scheduler:
  check_interval_ms: 5000
  max_concurrent_runs: 8
  retry_failed_schedules: false
  retry_delay_ms: 1000
dashboard:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Redis, cfg.StorageDriver)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.CheckInterval())
	assert.Equal(t, 8, cfg.Scheduler.MaxConcurrentRuns)
	assert.False(t, cfg.Scheduler.RetryFailedSchedules)
	assert.Equal(t, time.Second, cfg.Scheduler.RetryDelay())
	assert.False(t, cfg.Dashboard.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		errPart  string
	}{
		{
			"unknown driver",
			"storage_driver: mongodb",
			"unsupported storage driver",
		},
		{
			"missing postgres url",
			"storage_driver: postgres",
			"postgres.connection_url",
		},
		{
			"missing redis url",
			"storage_driver: redis",
			"redis.connection_url",
		},
		{
			"non-positive interval",
			`
storage_driver: redis
redis:
  connection_url: redis://localhost:6379/0
scheduler:
  check_interval_ms: 0
`,
			"check_interval_ms",
		},
		{
			"malformed yaml",
			"storage_driver: [unclosed",
			"parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.contents))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `
storage_driver: redis
redis:
  connection_url: redis://localhost:6379/0
scheduler:
  max_concurrent_runs: 3
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Watch(ctx, path, zerolog.Nop(), func(c *Config) { reloaded <- c })
	}()

	// give the watcher time to register before rewriting
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
storage_driver: redis
redis:
  connection_url: redis://localhost:6379/0
scheduler:
  max_concurrent_runs: 9
`), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9, cfg.Scheduler.MaxConcurrentRuns)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatch_SkipsInvalidState(t *testing.T) {
	path := writeConfig(t, `
storage_driver: redis
redis:
  connection_url: redis://localhost:6379/0
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	go Watch(ctx, path, zerolog.Nop(), func(c *Config) { reloaded <- c })

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("storage_driver: [broken"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(500 * time.Millisecond):
	}
}
