package queue

import (
	"encoding/json"
	"time"
)

// Task names understood by the task worker.
const (
	TaskProcessDraft = "drafts.process"
	TaskAddCourse    = "courses.add"
	TaskUpdateCourse = "courses.update"
	TaskEnrichCourse = "courses.enrich"
	TaskExport       = "courses.export"
)

// State is the lifecycle state of a task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Task is the envelope pushed onto the queue.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the payload into dest.
func (t *Task) Decode(dest interface{}) error {
	return json.Unmarshal(t.Payload, dest)
}

// TaskResult is what a worker records when a task finishes. Kind carries
// the error kind so a waiting caller can rebuild a typed error.
type TaskResult struct {
	TaskID    string          `json:"task_id"`
	Name      string          `json:"name,omitempty"`
	State     State           `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DispatchResult is the outcome of a dispatch attempt: either the task
// was queued under an id, or the queue was unavailable.
type DispatchResult struct {
	taskID string
	err    error
}

// Queued reports a successful dispatch.
func Queued(taskID string) DispatchResult {
	return DispatchResult{taskID: taskID}
}

// Unavailable reports that the task could not be queued.
func Unavailable(err error) DispatchResult {
	return DispatchResult{err: err}
}

func (r DispatchResult) IsQueued() bool { return r.err == nil && r.taskID != "" }

func (r DispatchResult) TaskID() string { return r.taskID }

// Err is the reason the queue was unavailable, or nil when queued.
func (r DispatchResult) Err() error { return r.err }
