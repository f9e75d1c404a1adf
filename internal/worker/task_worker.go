package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"coursecatalog/internal/models"
	"coursecatalog/internal/queue"
	"coursecatalog/internal/service"

	"golang.org/x/sync/errgroup"
)

// TaskSource is the queue side the worker consumes.
type TaskSource interface {
	Pop(ctx context.Context, wait time.Duration) (*queue.Task, error)
	MarkRunning(ctx context.Context, task *queue.Task) error
	Complete(ctx context.Context, result queue.TaskResult) error
}

// TaskWorker pops tasks and runs them through the registered handlers.
// Failed tasks are recorded, never retried.
type TaskWorker struct {
	source      TaskSource
	concurrency int
	pollWait    time.Duration

	mu       sync.RWMutex
	handlers map[string]service.TaskHandler
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewTaskWorker(source TaskSource, concurrency int) *TaskWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TaskWorker{
		source:      source,
		concurrency: concurrency,
		pollWait:    2 * time.Second,
		handlers:    make(map[string]service.TaskHandler),
	}
}

func (w *TaskWorker) Name() string { return "task worker" }

// Register adds handlers by task name, replacing earlier ones.
func (w *TaskWorker) Register(handlers map[string]service.TaskHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, h := range handlers {
		w.handlers[name] = h
	}
}

func (w *TaskWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	log.Printf("Task worker started with %d consumers", w.concurrency)
	go func(done chan struct{}) {
		defer close(done)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Task worker error: %v", err)
		}
	}(w.done)
}

func (w *TaskWorker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Println("Task worker stopped")
}

// Run consumes tasks until ctx is cancelled.
func (w *TaskWorker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.consume(gctx)
		})
	}
	return g.Wait()
}

func (w *TaskWorker) consume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Task worker: failed to pop task: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// RunOnce waits for one task and handles it. It reports false when the
// poll expired without a task.
func (w *TaskWorker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.source.Pop(ctx, w.pollWait)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	// Results are recorded even when the worker is shutting down.
	recordCtx := context.WithoutCancel(ctx)

	if err := w.source.MarkRunning(recordCtx, task); err != nil {
		log.Printf("Task worker: failed to mark task %s running: %v", task.ID, err)
	}

	result := w.handle(recordCtx, task)
	if err := w.source.Complete(recordCtx, result); err != nil {
		log.Printf("Task worker: failed to record result of task %s: %v", task.ID, err)
	}
	return true, nil
}

func (w *TaskWorker) handle(ctx context.Context, task *queue.Task) (result queue.TaskResult) {
	result = queue.TaskResult{TaskID: task.ID, Name: task.Name}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Task worker: task %s (%s) panicked: %v\n%s", task.ID, task.Name, r, debug.Stack())
			result.State = queue.StateFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			result.Kind = models.KindInternal
			result.Result = nil
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.Name]
	w.mu.RUnlock()
	if !ok {
		return failed(result, fmt.Errorf("%w: no handler registered for task %q", models.ErrInvalidInput, task.Name))
	}

	out, err := handler(ctx, task)
	if err != nil {
		log.Printf("Task worker: task %s (%s) failed: %v", task.ID, task.Name, err)
		return failed(result, err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return failed(result, fmt.Errorf("failed to marshal task result: %w", err))
	}
	result.State = queue.StateSucceeded
	result.Result = data
	return result
}

func failed(result queue.TaskResult, err error) queue.TaskResult {
	result.State = queue.StateFailed
	result.Error = err.Error()
	result.Kind = models.ErrorKind(err)
	return result
}
