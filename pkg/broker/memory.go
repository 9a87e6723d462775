package broker

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// InMemoryTaskQueue is a TaskQueue for tests and single-node runs. Delayed
// tasks are held in a slice ordered by ETA; Dequeue scans lanes in priority
// order and only returns tasks whose ETA has passed.
type InMemoryTaskQueue struct {
	mu        sync.Mutex
	queues    map[string][]*Task
	scheduled []*Task
	results   map[string]*TaskResult
	logger    *logrus.Logger
	queueSize int
	closed    bool
	notify    chan struct{}
}

// NewInMemoryTaskQueue creates an in-memory task queue.
func NewInMemoryTaskQueue(logger *logrus.Logger, queueSize int) *InMemoryTaskQueue {
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &InMemoryTaskQueue{
		queues:    make(map[string][]*Task),
		results:   make(map[string]*TaskResult),
		logger:    logger,
		queueSize: queueSize,
		notify:    make(chan struct{}, 1),
	}
}

// Enqueue places a task on its lane or in the scheduled slice.
func (q *InMemoryTaskQueue) Enqueue(ctx context.Context, queue, name string, payload interface{}, opts ...EnqueueOption) (string, error) {
	task, err := newTask(queue, name, payload, opts...)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	if len(q.queues[queue]) >= q.queueSize {
		return "", ErrQueueFull
	}

	q.results[task.ID] = &TaskResult{
		ID:        task.ID,
		Name:      task.Name,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
	}

	if task.ETA.After(time.Now()) {
		q.scheduled = append(q.scheduled, task)
		sort.Slice(q.scheduled, func(i, j int) bool {
			return q.scheduled[i].ETA.Before(q.scheduled[j].ETA)
		})
	} else {
		q.queues[queue] = append(q.queues[queue], task)
	}

	q.wake()

	return task.ID, nil
}

// Dequeue returns the next due task, checking lanes in priority order.
func (q *InMemoryTaskQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*Task, error) {
	deadline := time.Now().Add(timeout)

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}

		q.promoteDueLocked()

		for _, name := range queues {
			if pending := q.queues[name]; len(pending) > 0 {
				task := pending[0]
				q.queues[name] = pending[1:]
				q.mu.Unlock()
				return task, nil
			}
		}
		q.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, ErrNoTask
		}
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		case <-time.After(wait):
		}
	}
}

// Requeue puts a failed task back with an incremented attempt counter.
func (q *InMemoryTaskQueue) Requeue(ctx context.Context, task *Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	task.Attempt++
	task.ETA = time.Now().Add(delay)

	if delay > 0 {
		q.scheduled = append(q.scheduled, task)
		sort.Slice(q.scheduled, func(i, j int) bool {
			return q.scheduled[i].ETA.Before(q.scheduled[j].ETA)
		})
	} else {
		q.queues[task.Queue] = append(q.queues[task.Queue], task)
	}

	q.wake()
	return nil
}

// SetResult records the task status.
func (q *InMemoryTaskQueue) SetResult(ctx context.Context, result *TaskResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.results[result.ID] = result
	return nil
}

// GetResult retrieves the stored status of a task.
func (q *InMemoryTaskQueue) GetResult(ctx context.Context, taskID string) (*TaskResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	result, ok := q.results[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return result, nil
}

// Close marks the queue closed; blocked Dequeue calls return ErrQueueClosed.
func (q *InMemoryTaskQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.wake()
	return nil
}

// Depth reports the number of consumable tasks on a lane. Test helper.
func (q *InMemoryTaskQueue) Depth(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.promoteDueLocked()
	return len(q.queues[queue])
}

// Snapshot decodes every pending and scheduled task. Test helper.
func (q *InMemoryTaskQueue) Snapshot() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var all []*Task
	for _, pending := range q.queues {
		all = append(all, pending...)
	}
	all = append(all, q.scheduled...)
	return all
}

// promoteDueLocked moves scheduled tasks whose ETA has passed onto their
// lane. Caller holds the lock.
func (q *InMemoryTaskQueue) promoteDueLocked() {
	now := time.Now()
	var remaining []*Task
	for _, task := range q.scheduled {
		if task.ETA.After(now) {
			remaining = append(remaining, task)
			continue
		}
		q.queues[task.Queue] = append(q.queues[task.Queue], task)
	}
	q.scheduled = remaining
}

func (q *InMemoryTaskQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// DecodePayload unmarshals a task payload into out.
func DecodePayload(task *Task, out interface{}) error {
	return json.Unmarshal(task.Payload, out)
}
