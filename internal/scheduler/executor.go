// Package scheduler polls the schedule store for due crawl schedules and
// runs them through the crawl worker, bounded by a global concurrency cap
// and at most one in-flight execution per schedule.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crawlsched/internal/cronexpr"
	"crawlsched/internal/models"
	"crawlsched/internal/notify"
	"crawlsched/internal/store"
)

// Result carries the counters a worker produced, possibly partial on failure.
type Result struct {
	PagesCrawled int
	PagesFound   int
}

// Hooks are callbacks a worker invokes while executing. All hooks are
// optional from the worker's point of view; the executor always supplies
// them and forwards the events to its own logger.
type Hooks struct {
	OnLog  func(msg string)
	OnPage func(url string)
	OnDone func(pages int)
}

// Worker performs the actual crawl for a triggered schedule. The executor
// treats it as opaque beyond this contract. No timeout is enforced here; a
// hung worker holds its concurrency slot indefinitely (known limitation).
type Worker interface {
	Execute(ctx context.Context, config json.RawMessage, hooks Hooks) (Result, error)
}

// Executor owns the polling loop. It fetches due schedules, launches
// executions, records outcomes and statistics, and arms retries.
type Executor struct {
	store    store.ScheduleStore
	worker   Worker
	notifier notify.Notifier
	log      zerolog.Logger

	mu      sync.Mutex
	cfg     Config
	active  map[string]activeRun // ActiveRunSet: scheduleID -> in-flight run
	running bool
	stopCh  chan struct{}
}

type activeRun struct {
	startedAt time.Time
	trigger   string
}

func New(st store.ScheduleStore, worker Worker, notifier notify.Notifier, cfg Config, log zerolog.Logger) *Executor {
	return &Executor{
		store:    st,
		worker:   worker,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		log:      log,
		active:   make(map[string]activeRun),
	}
}

// Store exposes the schedule store to callers that need CRUD access.
func (e *Executor) Store() store.ScheduleStore {
	return e.store
}

// Start runs one scheduling pass immediately, then arms a repeating timer.
// Calling Start on a running executor logs a warning and does nothing.
func (e *Executor) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.Warn().Msg("executor already started")
		return
	}
	e.running = true
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	interval := e.cfg.CheckInterval
	e.mu.Unlock()

	e.log.Info().Dur("check_interval", interval).Msg("executor started")
	go e.loop(stopCh, interval)
}

// Stop halts future poll passes and new scheduled launches. In-flight
// executions continue to completion. Stopping a stopped executor logs a
// warning and does nothing.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.log.Warn().Msg("executor already stopped")
		return
	}
	e.running = false
	close(e.stopCh)
	e.stopCh = nil
	e.mu.Unlock()

	e.log.Info().Msg("executor stopped")
}

func (e *Executor) loop(stopCh chan struct{}, interval time.Duration) {
	e.runPass()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.runPass()
		}
	}
}

// runPass fetches due schedules and launches each one that is not already
// running and fits under the concurrency cap. A failure on one schedule
// never aborts the pass for the rest; only an unexpected panic ends the
// pass early, and it never disturbs the timer.
func (e *Executor) runPass() {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("scheduling pass aborted")
		}
	}()

	ctx := context.Background()
	due, err := e.store.GetSchedulesToRun(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to fetch due schedules")
		return
	}

	for i := range due {
		sched := due[i]
		if err := e.tryAcquire(sched.ID, models.TriggerScheduled); err != nil {
			e.log.Debug().Str("schedule", sched.ID).Err(err).Msg("skipping due schedule")
			continue
		}
		go func() {
			defer e.release(sched.ID)
			if err := e.execute(ctx, &sched, models.TriggerScheduled); err != nil {
				e.log.Error().Err(err).Str("schedule", sched.ID).Msg("scheduled run failed")
			}
		}()
	}
}

// tryAcquire registers the schedule in the ActiveRunSet. It enforces both
// the at-most-one-per-schedule invariant and the global cap. The entry is
// inserted before the run starts and must be removed exactly once via
// release when the run settles.
func (e *Executor) tryAcquire(id, trigger string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, inFlight := e.active[id]; inFlight {
		return ErrAlreadyRunning
	}
	if len(e.active) >= e.cfg.MaxConcurrentRuns {
		return ErrConcurrencyLimit
	}
	e.active[id] = activeRun{startedAt: time.Now().UTC(), trigger: trigger}
	return nil
}

func (e *Executor) release(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

// TriggerSchedule runs a schedule on demand, synchronously. The caller sees
// ErrScheduleNotFound, ErrScheduleDisabled, ErrAlreadyRunning,
// ErrConcurrencyLimit, or the job's own error.
func (e *Executor) TriggerSchedule(ctx context.Context, id string) error {
	sched, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return err
	}
	if !sched.Enabled {
		return ErrScheduleDisabled
	}
	if err := e.tryAcquire(sched.ID, models.TriggerManual); err != nil {
		return err
	}
	defer e.release(sched.ID)
	return e.execute(ctx, sched, models.TriggerManual)
}

// retryLater arms a one-shot delayed re-run. The retry goes through the
// same acquire/execute path as any other trigger.
func (e *Executor) retryLater(id string, delay time.Duration) {
	e.log.Info().Str("schedule", id).Dur("delay", delay).Msg("retry scheduled")
	time.AfterFunc(delay, func() {
		ctx := context.Background()
		sched, err := e.store.GetSchedule(ctx, id)
		if err != nil {
			e.log.Error().Err(err).Str("schedule", id).Msg("retry: failed to fetch schedule")
			return
		}
		if !sched.Enabled {
			e.log.Info().Str("schedule", id).Msg("retry: schedule disabled, skipping")
			return
		}
		if err := e.tryAcquire(sched.ID, models.TriggerRetry); err != nil {
			e.log.Warn().Err(err).Str("schedule", id).Msg("retry: skipped")
			return
		}
		defer e.release(sched.ID)
		if err := e.execute(ctx, sched, models.TriggerRetry); err != nil {
			e.log.Error().Err(err).Str("schedule", id).Msg("retry failed")
		}
	})
}

// execute performs a single run: execution row, worker invocation,
// settlement, statistics, notifications, and retry arming on failure.
// The caller must already hold the schedule's ActiveRunSet slot.
func (e *Executor) execute(ctx context.Context, sched *models.Schedule, trigger string) error {
	startedAt := time.Now().UTC()
	e.notify(fmt.Sprintf("Crawl started: %s", sched.Name),
		fmt.Sprintf("Schedule %s (%s) started at %s", sched.Name, sched.ID, startedAt.Format(time.RFC3339)))

	exec := &models.Execution{
		ID:         uuid.NewString(),
		ScheduleID: sched.ID,
		Status:     models.ExecutionRunning,
		Trigger:    trigger,
		StartedAt:  startedAt,
	}
	if err := e.store.RecordExecution(ctx, exec); err != nil {
		e.log.Error().Err(err).Str("schedule", sched.ID).Msg("failed to record execution")
	}

	result, runErr := e.worker.Execute(ctx, sched.Config, Hooks{
		OnLog: func(msg string) {
			e.log.Debug().Str("schedule", sched.ID).Msg(msg)
		},
		OnPage: func(url string) {
			e.log.Debug().Str("schedule", sched.ID).Str("url", url).Msg("page discovered")
		},
		OnDone: func(pages int) {
			e.log.Info().Str("schedule", sched.ID).Int("pages", pages).Msg("crawl finished")
		},
	})

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)
	nextRun := cronexpr.Next(sched.Expression, completedAt)

	upd := models.ExecutionUpdate{
		CompletedAt:  completedAt,
		DurationMs:   duration.Milliseconds(),
		PagesCrawled: result.PagesCrawled,
		PagesFound:   result.PagesFound,
	}

	if runErr != nil {
		msg := runErr.Error()
		upd.Status = models.ExecutionFailed
		upd.ErrorMessage = &msg
		if err := e.store.FinalizeExecution(ctx, exec.ID, upd); err != nil {
			e.log.Error().Err(err).Str("execution", exec.ID).Msg("failed to finalize execution")
		}
		e.notify(fmt.Sprintf("Crawl failed: %s", sched.Name),
			fmt.Sprintf("Schedule %s failed after %s: %s", sched.ID, duration, msg))
		if err := e.store.ApplyRunResult(ctx, sched.ID, completedAt, nextRun, false); err != nil {
			e.log.Error().Err(err).Str("schedule", sched.ID).Msg("failed to update schedule statistics")
		}

		e.mu.Lock()
		retry := e.cfg.RetryFailedSchedules
		delay := e.cfg.RetryDelay
		e.mu.Unlock()
		if retry {
			e.retryLater(sched.ID, delay)
		}
		return fmt.Errorf("schedule %s: %w", sched.ID, runErr)
	}

	upd.Status = models.ExecutionCompleted
	if err := e.store.FinalizeExecution(ctx, exec.ID, upd); err != nil {
		e.log.Error().Err(err).Str("execution", exec.ID).Msg("failed to finalize execution")
	}
	e.notify(fmt.Sprintf("Crawl completed: %s", sched.Name),
		fmt.Sprintf("Schedule %s completed in %s: %d pages crawled, %d found",
			sched.ID, duration, result.PagesCrawled, result.PagesFound))
	if err := e.store.ApplyRunResult(ctx, sched.ID, completedAt, nextRun, true); err != nil {
		e.log.Error().Err(err).Str("schedule", sched.ID).Msg("failed to update schedule statistics")
	}
	return nil
}

// notify is best-effort; delivery failures are logged and never propagate.
func (e *Executor) notify(subject, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(subject, body); err != nil {
		e.log.Warn().Err(err).Str("subject", subject).Msg("notification failed")
	}
}

// GetStatus returns a snapshot with no side effects.
func (e *Executor) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:           e.running,
		ActiveRuns:        len(e.active),
		MaxConcurrentRuns: e.cfg.MaxConcurrentRuns,
		CheckInterval:     e.cfg.CheckInterval,
	}
}

// UpdateConfig merges a partial configuration. If the executor is running
// it is stopped and restarted so the new poll interval takes effect.
func (e *Executor) UpdateConfig(upd ConfigUpdate) {
	e.mu.Lock()
	wasRunning := e.running
	e.mu.Unlock()

	if wasRunning {
		e.Stop()
	}

	e.mu.Lock()
	if upd.CheckInterval != nil {
		e.cfg.CheckInterval = *upd.CheckInterval
	}
	if upd.MaxConcurrentRuns != nil {
		e.cfg.MaxConcurrentRuns = *upd.MaxConcurrentRuns
	}
	if upd.RetryFailedSchedules != nil {
		e.cfg.RetryFailedSchedules = *upd.RetryFailedSchedules
	}
	if upd.RetryDelay != nil {
		e.cfg.RetryDelay = *upd.RetryDelay
	}
	e.cfg = e.cfg.withDefaults()
	e.mu.Unlock()

	if wasRunning {
		e.Start()
	}
}
