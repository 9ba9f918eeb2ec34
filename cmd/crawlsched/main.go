package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"crawlsched/internal/config"
	"crawlsched/internal/crawler"
	"crawlsched/internal/notify"
	"crawlsched/internal/scheduler"
	"crawlsched/internal/store"
	pgstore "crawlsched/internal/store/postgres"
	redisstore "crawlsched/internal/store/redis"
	"crawlsched/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scheduleStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open schedule store")
	}
	defer scheduleStore.Close()

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up notifier")
	}

	worker := crawler.New(log.With().Str("component", "crawler").Logger())

	executor := scheduler.New(
		scheduleStore,
		worker,
		notifier,
		scheduler.Config{
			CheckInterval:        cfg.Scheduler.CheckInterval(),
			MaxConcurrentRuns:    cfg.Scheduler.MaxConcurrentRuns,
			RetryFailedSchedules: cfg.Scheduler.RetryFailedSchedules,
			RetryDelay:           cfg.Scheduler.RetryDelay(),
		},
		log.With().Str("component", "executor").Logger(),
	)
	executor.Start()

	go func() {
		err := config.Watch(ctx, *configPath, log, func(c *config.Config) {
			interval := c.Scheduler.CheckInterval()
			delay := c.Scheduler.RetryDelay()
			executor.UpdateConfig(scheduler.ConfigUpdate{
				CheckInterval:        &interval,
				MaxConcurrentRuns:    &c.Scheduler.MaxConcurrentRuns,
				RetryFailedSchedules: &c.Scheduler.RetryFailedSchedules,
				RetryDelay:           &delay,
			})
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	if cfg.Dashboard.Enabled {
		handler := web.NewRouteHandler(
			executor,
			log.With().Str("component", "web").Logger(),
			cfg.Dashboard.AuthEnabled,
			cfg.Dashboard.Username,
			cfg.Dashboard.PasswordHash,
			cfg.Dashboard.Port,
		)
		go func() {
			if err := handler.Serve(); err != nil {
				log.Error().Err(err).Msg("http api stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	executor.Stop()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config) (store.ScheduleStore, error) {
	switch cfg.StorageDriver {
	case config.Postgres:
		return pgstore.Open(cfg.Postgres.ConnectionURL)
	case config.Redis:
		return redisstore.Open(ctx, cfg.Redis.ConnectionURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newNotifier(cfg *config.Config, log zerolog.Logger) (notify.Notifier, error) {
	if !cfg.AMQP.Enabled {
		return notify.NewLogNotifier(log.With().Str("component", "notifier").Logger()), nil
	}
	return notify.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, cfg.AMQP.RoutingKey)
}
