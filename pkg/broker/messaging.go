package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrQueueClosed   = errors.New("task queue is closed")
	ErrTaskNotFound  = errors.New("task not found")
	ErrQueueFull     = errors.New("queue is full")
	ErrNoTask        = errors.New("no task available")
	ErrInvalidOption = errors.New("invalid enqueue option")
)

// Queue lanes, in consumption priority order. Interaction recording must
// never be starved by scoring recomputation, so scoring and analytics work
// sits on the low lane.
const (
	QueueHigh    = "interactions_high"
	QueueDefault = "default"
	QueueLow     = "scoring_low"
)

// Lanes returns all queue lanes in priority order.
func Lanes() []string {
	return []string{QueueHigh, QueueDefault, QueueLow}
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusStarted TaskStatus = "STARTED"
	TaskStatusSuccess TaskStatus = "SUCCESS"
	TaskStatusFailure TaskStatus = "FAILURE"
	TaskStatusRetry   TaskStatus = "RETRY"
)

// Task is the envelope carried through a queue lane.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	MaxRetries int             `json:"max_retries"`
	ETA        time.Time       `json:"eta"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// TaskResult is the stored outcome of a task run.
type TaskResult struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Attempt   int        `json:"attempt"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// EnqueueOption customizes a single enqueue call.
type EnqueueOption func(*Task)

// WithDelay holds the task back for d before it becomes consumable. The
// delay gives the triggering database write time to commit before dependent
// reads run; it is spacing, not a consistency guarantee.
func WithDelay(d time.Duration) EnqueueOption {
	return func(t *Task) {
		t.ETA = time.Now().Add(d)
	}
}

// WithMaxRetries bounds how many times a failing task is re-run.
func WithMaxRetries(n int) EnqueueOption {
	return func(t *Task) {
		t.MaxRetries = n
	}
}

// TaskQueue is the transport the scoring pipeline dispatches through.
// Implementations must provide at-least-once delivery.
type TaskQueue interface {
	// Enqueue serializes payload and places a task on the named lane.
	Enqueue(ctx context.Context, queue, name string, payload interface{}, opts ...EnqueueOption) (string, error)

	// Dequeue pops the next due task, checking lanes in the given order.
	// Returns ErrNoTask when nothing is due within the timeout.
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*Task, error)

	// Requeue puts a failed task back with an incremented attempt counter.
	Requeue(ctx context.Context, task *Task, delay time.Duration) error

	// SetResult records the terminal (or retry) status of a task.
	SetResult(ctx context.Context, result *TaskResult) error

	// GetResult retrieves the stored status of a task.
	GetResult(ctx context.Context, taskID string) (*TaskResult, error)

	// Close releases the queue's resources.
	Close() error
}

// newTask builds a task envelope with defaults applied.
func newTask(queue, name string, payload interface{}, opts ...EnqueueOption) (*Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Name:       name,
		Queue:      queue,
		Payload:    body,
		Attempt:    0,
		MaxRetries: 0,
		ETA:        now,
		EnqueuedAt: now,
	}

	for _, opt := range opts {
		opt(task)
	}

	return task, nil
}
