package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks coursecatalog/internal/service Enricher,Dispatcher

// Enricher derives course metadata from a course link.
type Enricher interface {
	Enrich(ctx context.Context, link, provider, courseName string) (models.CoursePatch, error)
}

// Dispatcher hands work to the background task queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload interface{}) queue.DispatchResult
	Await(ctx context.Context, taskID string, timeout time.Duration) (*queue.TaskResult, error)
}

// TaskHandler runs one queued task and returns its JSON-encodable result.
type TaskHandler func(ctx context.Context, task *queue.Task) (interface{}, error)

// Task payloads.
type (
	DraftTaskPayload struct {
		DraftID string `json:"draft_id"`
	}
	AddCoursePayload struct {
		Course models.CoursePatch `json:"course"`
	}
	UpdateCoursePayload struct {
		ID      string             `json:"id"`
		Fields  models.CoursePatch `json:"fields"`
		Version int                `json:"version"`
	}
	EnrichCoursePayload struct {
		Link       string `json:"link"`
		Provider   string `json:"provider"`
		CourseName string `json:"course_name"`
	}
)

// awaitOrRun dispatches a task and waits up to timeout for its result.
// When the queue is unavailable or the wait expires, direct runs the same
// operation in the caller's context. Errors reported by the worker are
// rebuilt so callers can match them with errors.Is.
func awaitOrRun[T any](
	ctx context.Context,
	d Dispatcher,
	timeout time.Duration,
	name string,
	payload interface{},
	direct func(context.Context) (T, error),
) (T, error) {
	var zero T

	if d == nil {
		return direct(ctx)
	}

	res := d.Dispatch(ctx, name, payload)
	if !res.IsQueued() {
		log.Printf("warning: task queue unavailable for %s, running inline: %v", name, res.Err())
		return direct(ctx)
	}

	result, err := d.Await(ctx, res.TaskID(), timeout)
	if err != nil {
		if errors.Is(err, queue.ErrAwaitTimeout) {
			log.Printf("warning: task %s (%s) not finished after %s, running inline", res.TaskID(), name, timeout)
		} else {
			log.Printf("warning: waiting for task %s (%s) failed, running inline: %v", res.TaskID(), name, err)
		}
		return direct(ctx)
	}

	if result.State == queue.StateFailed {
		return zero, models.ErrorFromKind(result.Kind, result.Error)
	}

	var out T
	if err := json.Unmarshal(result.Result, &out); err != nil {
		return zero, fmt.Errorf("failed to decode %s result: %w", name, err)
	}
	return out, nil
}

func decodeTask(task *queue.Task, dest interface{}) error {
	if err := task.Decode(dest); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", models.ErrInvalidInput, task.Name, err)
	}
	return nil
}
