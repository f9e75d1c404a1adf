package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "tasks:"

var (
	// ErrAwaitTimeout is returned when no result arrives within the wait.
	ErrAwaitTimeout = errors.New("timed out waiting for task result")
	// ErrUnknownTask is returned by Status for ids without a recorded state.
	ErrUnknownTask = errors.New("unknown task")
)

// pendingKey is the list tasks are pushed to: tasks:queue:{name}
func pendingKey(name string) string { return keyPrefix + "queue:" + name }

// statusKey holds the latest TaskResult: tasks:status:{id}
func statusKey(id string) string { return keyPrefix + "status:" + id }

// resultKey is the list a finished task pushes its result to: tasks:result:{id}
func resultKey(id string) string { return keyPrefix + "result:" + id }

type Config struct {
	Name            string
	ResultTTL       time.Duration
	DispatchTimeout time.Duration
}

// Queue is a Redis list backed task queue.
type Queue struct {
	client *redis.Client
	config Config
	now    func() time.Time
}

func New(client *redis.Client, config Config) *Queue {
	if config.Name == "" {
		config.Name = "default"
	}
	if config.ResultTTL <= 0 {
		config.ResultTTL = time.Hour
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = 2 * time.Second
	}
	return &Queue{
		client: client,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch enqueues a task. It never returns an error: any failure to
// reach the queue is reported as Unavailable.
func (q *Queue) Dispatch(ctx context.Context, name string, payload interface{}) DispatchResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return Unavailable(fmt.Errorf("failed to marshal %s payload: %w", name, err))
	}

	task := Task{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    data,
		EnqueuedAt: q.now(),
	}
	envelope, err := json.Marshal(task)
	if err != nil {
		return Unavailable(fmt.Errorf("failed to marshal task: %w", err))
	}
	status, err := json.Marshal(TaskResult{TaskID: task.ID, Name: name, State: StatePending, UpdatedAt: task.EnqueuedAt})
	if err != nil {
		return Unavailable(fmt.Errorf("failed to marshal task status: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.DispatchTimeout)
	defer cancel()

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, statusKey(task.ID), status, q.config.ResultTTL)
	pipe.LPush(ctx, pendingKey(q.config.Name), envelope)
	if _, err := pipe.Exec(ctx); err != nil {
		return Unavailable(fmt.Errorf("failed to enqueue %s: %w", name, err))
	}
	return Queued(task.ID)
}

// Pop blocks up to wait for the next task. It returns nil when the wait
// expires with nothing queued.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*Task, error) {
	vals, err := q.client.BRPop(ctx, wait, pendingKey(q.config.Name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(vals))
	}

	var task Task
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// MarkRunning records that a worker picked the task up.
func (q *Queue) MarkRunning(ctx context.Context, task *Task) error {
	status, err := json.Marshal(TaskResult{TaskID: task.ID, Name: task.Name, State: StateRunning, UpdatedAt: q.now()})
	if err != nil {
		return err
	}
	return q.client.Set(ctx, statusKey(task.ID), status, q.config.ResultTTL).Err()
}

// Complete records the final result and wakes any caller in Await.
func (q *Queue) Complete(ctx context.Context, result TaskResult) error {
	if result.TaskID == "" {
		return fmt.Errorf("task result without task id")
	}
	if result.UpdatedAt.IsZero() {
		result.UpdatedAt = q.now()
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal task result: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, statusKey(result.TaskID), data, q.config.ResultTTL)
	pipe.RPush(ctx, resultKey(result.TaskID), data)
	pipe.Expire(ctx, resultKey(result.TaskID), q.config.ResultTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Await blocks until the task's result is recorded or timeout elapses.
func (q *Queue) Await(ctx context.Context, taskID string, timeout time.Duration) (*TaskResult, error) {
	vals, err := q.client.BLPop(ctx, timeout, resultKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAwaitTimeout
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrAwaitTimeout
		}
		return nil, err
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(vals))
	}

	var result TaskResult
	if err := json.Unmarshal([]byte(vals[1]), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task result: %w", err)
	}
	return &result, nil
}

// Status returns the latest recorded state of a task.
func (q *Queue) Status(ctx context.Context, taskID string) (*TaskResult, error) {
	data, err := q.client.Get(ctx, statusKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrUnknownTask)
	}
	if err != nil {
		return nil, err
	}

	var result TaskResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task status: %w", err)
	}
	return &result, nil
}

// Len reports how many tasks are waiting.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, pendingKey(q.config.Name)).Result()
}
