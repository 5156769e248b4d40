package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/allocator/internal/core/domain"
	"github.com/vietddude/allocator/internal/infra/storage"
)

// Finished tasks stay readable for a day.
const doneTaskTTL = 24 * time.Hour

// TaskRepo implements storage.TaskRepository using Redis.
// Queued task IDs live in a sorted set scored by their next attempt time.
type TaskRepo struct {
	rdb       *redis.Client
	namespace string
}

// NewTaskRepo creates a new Redis-backed task repository.
func NewTaskRepo(client *Client, namespace string) *TaskRepo {
	return &TaskRepo{
		rdb:       client.rdb,
		namespace: namespace,
	}
}

// Key helpers
func (r *TaskRepo) queueKey() string {
	return fmt.Sprintf("writeoff_tasks:%s", r.namespace)
}

func (r *TaskRepo) taskKey(id string) string {
	return fmt.Sprintf("writeoff_task:%s:%s", r.namespace, id)
}

// Add adds a task to the queue.
func (r *TaskRepo) Add(ctx context.Context, task *domain.WriteOffTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.taskKey(task.ID), data, 0)
	pipe.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(task.NextAttemptAt),
		Member: task.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (r *TaskRepo) Get(ctx context.Context, id string) (*domain.WriteOffTask, error) {
	data, err := r.rdb.Get(ctx, r.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task domain.WriteOffTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Update persists task state. Finished tasks leave the queue and expire.
func (r *TaskRepo) Update(ctx context.Context, task *domain.WriteOffTask) error {
	exists, err := r.rdb.Exists(ctx, r.taskKey(task.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check task: %w", err)
	}
	if exists == 0 {
		return storage.ErrTaskNotFound
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	switch {
	case task.Done():
		pipe.Set(ctx, r.taskKey(task.ID), data, doneTaskTTL)
		pipe.ZRem(ctx, r.queueKey(), task.ID)
	case task.Status == domain.TaskStatusQueued:
		pipe.Set(ctx, r.taskKey(task.ID), data, 0)
		pipe.ZAdd(ctx, r.queueKey(), redis.Z{
			Score:  float64(task.NextAttemptAt),
			Member: task.ID,
		})
	default:
		pipe.Set(ctx, r.taskKey(task.ID), data, 0)
		pipe.ZRem(ctx, r.queueKey(), task.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// GetNext retrieves the next task due at or before now.
func (r *TaskRepo) GetNext(ctx context.Context, now int64) (*domain.WriteOffTask, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, r.queueKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get next task: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	task, err := r.Get(ctx, ids[0])
	if errors.Is(err, storage.ErrTaskNotFound) {
		// Orphaned queue entry
		_ = r.rdb.ZRem(ctx, r.queueKey(), ids[0]).Err()
		return nil, nil
	}
	return task, err
}

// Count returns the number of tasks still queued.
func (r *TaskRepo) Count(ctx context.Context) (int, error) {
	count, err := r.rdb.ZCard(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
