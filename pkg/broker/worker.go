package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_processed_total",
			Help: "Total number of tasks processed successfully",
		},
		[]string{"queue", "task"},
	)

	tasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_failed_total",
			Help: "Total number of tasks that exhausted their retries",
		},
		[]string{"queue", "task"},
	)

	tasksRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_retried_total",
			Help: "Total number of task retry attempts",
		},
		[]string{"queue", "task"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_task_duration_seconds",
			Help:    "Task handler execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue", "task"},
	)
)

// Handler processes one task payload.
type Handler func(ctx context.Context, task *Task) error

// FailedHandler runs after a task has exhausted its retries. It receives the
// error from the final attempt.
type FailedHandler func(ctx context.Context, task *Task, taskErr error)

// registration binds a task name to its handlers.
type registration struct {
	handler Handler
	failed  FailedHandler
}

// Worker consumes the queue lanes in priority order and dispatches tasks to
// registered handlers. Failed tasks are requeued with exponential backoff
// until their retry budget runs out, then the failed handler fires once.
type Worker struct {
	queue    TaskQueue
	logger   *logrus.Logger
	backoff  time.Duration
	handlers map[string]registration
	mu       sync.RWMutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	running  bool
}

// NewWorker creates a worker bound to a task queue. backoff is the base
// requeue delay; attempt n waits backoff << n.
func NewWorker(queue TaskQueue, backoff time.Duration, logger *logrus.Logger) *Worker {
	if backoff <= 0 {
		backoff = 15 * time.Second
	}
	return &Worker{
		queue:    queue,
		logger:   logger,
		backoff:  backoff,
		handlers: make(map[string]registration),
	}
}

// Register binds a handler (and optional failed handler) to a task name.
// Must be called before Start.
func (w *Worker) Register(name string, handler Handler, failed FailedHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = registration{handler: handler, failed: failed}
}

// Start launches n consumer goroutines.
func (w *Worker) Start(ctx context.Context, n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker already running")
	}
	if n <= 0 {
		n = 1
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.consume(ctx, i)
	}

	w.logger.WithField("consumers", n).Info("Task worker started")
	return nil
}

// Stop cancels the consumers and waits for in-flight tasks to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("Task worker stopped")
}

func (w *Worker) consume(ctx context.Context, id int) {
	defer w.wg.Done()

	lanes := Lanes()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, lanes, 2*time.Second)
		if err != nil {
			if err == ErrNoTask {
				continue
			}
			if ctx.Err() != nil || err == ErrQueueClosed {
				return
			}
			w.logger.WithError(err).WithField("consumer", id).Error("Dequeue failed")
			time.Sleep(time.Second)
			continue
		}

		w.process(ctx, task)
	}
}

// process runs one attempt of a task and decides between success, retry and
// terminal failure.
func (w *Worker) process(ctx context.Context, task *Task) {
	w.mu.RLock()
	reg, ok := w.handlers[task.Name]
	w.mu.RUnlock()

	log := w.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"task":    task.Name,
		"queue":   task.Queue,
		"attempt": task.Attempt,
	})

	if !ok {
		log.Error("No handler registered for task")
		w.setResult(task, TaskStatusFailure, "no handler registered")
		return
	}

	w.setResult(task, TaskStatusStarted, "")

	// Detach from the consumer loop's cancellation so an in-flight task
	// survives shutdown of the poller.
	runCtx := context.Background()

	start := time.Now()
	err := reg.handler(runCtx, task)
	taskDuration.WithLabelValues(task.Queue, task.Name).Observe(time.Since(start).Seconds())

	if err == nil {
		tasksProcessed.WithLabelValues(task.Queue, task.Name).Inc()
		w.setResult(task, TaskStatusSuccess, "")
		log.Debug("Task processed")
		return
	}

	if task.Attempt < task.MaxRetries {
		delay := w.backoff << uint(task.Attempt)
		tasksRetried.WithLabelValues(task.Queue, task.Name).Inc()
		w.setResult(task, TaskStatusRetry, err.Error())
		log.WithError(err).WithField("retry_in", delay).Warn("Task failed, retrying")

		if reqErr := w.queue.Requeue(runCtx, task, delay); reqErr != nil {
			log.WithError(reqErr).Error("Failed to requeue task")
			w.fail(runCtx, task, reg, err, log)
		}
		return
	}

	w.fail(runCtx, task, reg, err, log)
}

func (w *Worker) fail(ctx context.Context, task *Task, reg registration, err error, log *logrus.Entry) {
	tasksFailed.WithLabelValues(task.Queue, task.Name).Inc()
	w.setResult(task, TaskStatusFailure, err.Error())
	log.WithError(err).Error("Task failed terminally")

	if reg.failed != nil {
		reg.failed(ctx, task, err)
	}
}

func (w *Worker) setResult(task *Task, status TaskStatus, errMsg string) {
	result := &TaskResult{
		ID:      task.ID,
		Name:    task.Name,
		Status:  status,
		Error:   errMsg,
		Attempt: task.Attempt,
	}
	if status == TaskStatusSuccess || status == TaskStatusFailure {
		now := time.Now()
		result.EndedAt = &now
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := w.queue.SetResult(ctx, result); err != nil && err != ErrQueueClosed {
		w.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to store task result")
	}
}
