// Package redis provides a Redis-backed ScheduleStore. Schedules and
// executions are stored as JSON blobs; due lookup goes through a sorted
// set keyed by next run time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"crawlsched/internal/models"
	"crawlsched/internal/store"
)

const (
	scheduleKeyPrefix  = "crawlsched:schedule:"
	executionKeyPrefix = "crawlsched:execution:"
	scheduleByNextRun  = "crawlsched:schedules:by_next_run"
	scheduleIDs        = "crawlsched:schedules:ids"
	executionsPrefix   = "crawlsched:executions:"
)

type RedisScheduleStore struct {
	client *redis.Client
}

func NewRedisScheduleStore(client *redis.Client) *RedisScheduleStore {
	return &RedisScheduleStore{client: client}
}

// Open connects to Redis using a redis:// URL.
func Open(ctx context.Context, connection string) (*RedisScheduleStore, error) {
	opts, err := redis.ParseURL(connection)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisScheduleStore(client), nil
}

func scheduleKey(id string) string  { return scheduleKeyPrefix + id }
func executionKey(id string) string { return executionKeyPrefix + id }
func executionsKey(id string) string {
	return executionsPrefix + id
}

func (r *RedisScheduleStore) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	if err := r.putSchedule(ctx, s); err != nil {
		return err
	}
	return r.client.RPush(ctx, scheduleIDs, s.ID).Err()
}

func (r *RedisScheduleStore) putSchedule(ctx context.Context, s *models.Schedule) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, scheduleKey(s.ID), data, 0)
	pipe.ZAdd(ctx, scheduleByNextRun, redis.Z{
		Score:  float64(s.NextRunAt.Unix()),
		Member: s.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisScheduleStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	data, err := r.client.Get(ctx, scheduleKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s models.Schedule
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisScheduleStore) GetAllSchedules(ctx context.Context, page, pageSize int) (*models.PaginationResult[models.Schedule], error) {
	if page < 1 {
		page = 1
	}
	total, err := r.client.LLen(ctx, scheduleIDs).Result()
	if err != nil {
		return nil, err
	}
	start := int64((page - 1) * pageSize)
	ids, err := r.client.LRange(ctx, scheduleIDs, start, start+int64(pageSize)-1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]models.Schedule, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetSchedule(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, *s)
	}
	return paginate(items, int(total), page, pageSize), nil
}

func (r *RedisScheduleStore) GetSchedulesToRun(ctx context.Context) ([]models.Schedule, error) {
	ids, err := r.client.ZRangeByScore(ctx, scheduleByNextRun, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		return nil, err
	}

	due := make([]models.Schedule, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetSchedule(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// stale index entry
			r.client.ZRem(ctx, scheduleByNextRun, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Enabled {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (r *RedisScheduleStore) UpdateSchedule(ctx context.Context, id string, upd models.ScheduleUpdate) error {
	s, err := r.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if upd.Name != nil {
		s.Name = *upd.Name
	}
	if upd.Expression != nil {
		s.Expression = *upd.Expression
	}
	if upd.Config != nil {
		s.Config = upd.Config
	}
	if upd.Enabled != nil {
		s.Enabled = *upd.Enabled
	}
	if upd.NextRunAt != nil {
		s.NextRunAt = *upd.NextRunAt
	}
	s.UpdatedAt = time.Now().UTC()
	return r.putSchedule(ctx, s)
}

func (r *RedisScheduleStore) ApplyRunResult(ctx context.Context, id string, lastRun, nextRun time.Time, succeeded bool) error {
	s, err := r.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	s.LastRunAt = &lastRun
	s.NextRunAt = nextRun
	s.TotalRuns++
	if succeeded {
		s.SuccessfulRuns++
	} else {
		s.FailedRuns++
	}
	s.UpdatedAt = time.Now().UTC()
	return r.putSchedule(ctx, s)
}

func (r *RedisScheduleStore) DeleteSchedule(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, scheduleKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, scheduleByNextRun, id)
	pipe.LRem(ctx, scheduleIDs, 0, id)
	pipe.Del(ctx, executionsKey(id))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisScheduleStore) RecordExecution(ctx context.Context, exec *models.Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, executionKey(exec.ID), data, 0)
	pipe.LPush(ctx, executionsKey(exec.ScheduleID), exec.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisScheduleStore) FinalizeExecution(ctx context.Context, id string, upd models.ExecutionUpdate) error {
	data, err := r.client.Get(ctx, executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	var exec models.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return err
	}
	if exec.Status != models.ExecutionRunning {
		return fmt.Errorf("execution %s already finalized", id)
	}
	exec.Status = upd.Status
	exec.CompletedAt = &upd.CompletedAt
	exec.DurationMs = &upd.DurationMs
	exec.PagesCrawled = upd.PagesCrawled
	exec.PagesFound = upd.PagesFound
	exec.ErrorMessage = upd.ErrorMessage

	out, err := json.Marshal(&exec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, executionKey(id), out, 0).Err()
}

func (r *RedisScheduleStore) GetExecutions(ctx context.Context, scheduleID string, page, pageSize int) (*models.PaginationResult[models.Execution], error) {
	if page < 1 {
		page = 1
	}
	total, err := r.client.LLen(ctx, executionsKey(scheduleID)).Result()
	if err != nil {
		return nil, err
	}
	start := int64((page - 1) * pageSize)
	ids, err := r.client.LRange(ctx, executionsKey(scheduleID), start, start+int64(pageSize)-1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]models.Execution, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, executionKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var exec models.Execution
		if err := json.Unmarshal(data, &exec); err != nil {
			return nil, err
		}
		items = append(items, exec)
	}
	return paginate(items, int(total), page, pageSize), nil
}

func (r *RedisScheduleStore) Close() error {
	return r.client.Close()
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
