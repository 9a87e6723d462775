package broker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testPayload struct {
	Value string `json:"value"`
}

func TestDequeueRespectsLanePriority(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	defer queue.Close()

	ctx := context.Background()
	_, err := queue.Enqueue(ctx, QueueLow, "low.task", testPayload{Value: "low"})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, QueueDefault, "default.task", testPayload{Value: "default"})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, QueueHigh, "high.task", testPayload{Value: "high"})
	require.NoError(t, err)

	// Enqueue order was low, default, high; consumption order is the lane
	// priority, not arrival.
	for _, expected := range []string{"high.task", "default.task", "low.task"} {
		task, err := queue.Dequeue(ctx, Lanes(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, expected, task.Name)
	}
}

func TestDelayedTaskBecomesDueAfterETA(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	defer queue.Close()

	ctx := context.Background()
	_, err := queue.Enqueue(ctx, QueueDefault, "delayed.task", testPayload{},
		WithDelay(80*time.Millisecond))
	require.NoError(t, err)

	assert.Zero(t, queue.Depth(QueueDefault), "not consumable before its ETA")
	_, err = queue.Dequeue(ctx, Lanes(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoTask)

	task, err := queue.Dequeue(ctx, Lanes(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "delayed.task", task.Name)
	assert.GreaterOrEqual(t, time.Since(task.EnqueuedAt), 80*time.Millisecond)
}

func TestRequeueIncrementsAttempt(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	defer queue.Close()

	ctx := context.Background()
	_, err := queue.Enqueue(ctx, QueueDefault, "flaky.task", testPayload{})
	require.NoError(t, err)

	task, err := queue.Dequeue(ctx, Lanes(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, task.Attempt)

	require.NoError(t, queue.Requeue(ctx, task, 0))

	retried, err := queue.Dequeue(ctx, Lanes(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, task.ID, retried.ID)
	assert.Equal(t, 1, retried.Attempt)
}

func TestResultLifecycle(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	defer queue.Close()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, QueueDefault, "tracked.task", testPayload{})
	require.NoError(t, err)

	result, err := queue.GetResult(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, result.Status)

	require.NoError(t, queue.SetResult(ctx, &TaskResult{
		ID:     taskID,
		Name:   "tracked.task",
		Status: TaskStatusSuccess,
	}))

	result, err = queue.GetResult(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusSuccess, result.Status)

	_, err = queue.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestClosedQueueRejectsOperations(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	require.NoError(t, queue.Close())

	ctx := context.Background()
	_, err := queue.Enqueue(ctx, QueueDefault, "late.task", testPayload{})
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = queue.Dequeue(ctx, Lanes(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestWorkerProcessesTask(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	defer queue.Close()

	var handled int32
	worker := NewWorker(queue, time.Millisecond, testLogger())
	worker.Register("work.item", func(ctx context.Context, task *Task) error {
		var payload testPayload
		if err := DecodePayload(task, &payload); err != nil {
			return err
		}
		assert.Equal(t, "hello", payload.Value)
		atomic.AddInt32(&handled, 1)
		return nil
	}, nil)

	require.NoError(t, worker.Start(context.Background(), 1))
	defer worker.Stop()

	taskID, err := queue.Enqueue(context.Background(), QueueDefault, "work.item", testPayload{Value: "hello"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		result, err := queue.GetResult(context.Background(), taskID)
		return err == nil && result.Status == TaskStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
}

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	defer queue.Close()

	var attempts int32
	worker := NewWorker(queue, time.Millisecond, testLogger())
	worker.Register("flaky.item", func(ctx context.Context, task *Task) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return errors.New("transient failure")
		}
		return nil
	}, nil)

	require.NoError(t, worker.Start(context.Background(), 1))
	defer worker.Stop()

	taskID, err := queue.Enqueue(context.Background(), QueueDefault, "flaky.item",
		testPayload{}, WithMaxRetries(2))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		result, err := queue.GetResult(context.Background(), taskID)
		return err == nil && result.Status == TaskStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestWorkerFailedHandlerFiresOnceOnExhaustion(t *testing.T) {
	queue := NewInMemoryTaskQueue(testLogger(), 10)
	defer queue.Close()

	handlerErr := errors.New("permanent failure")
	var attempts, failures int32
	worker := NewWorker(queue, time.Millisecond, testLogger())
	worker.Register("doomed.item", func(ctx context.Context, task *Task) error {
		atomic.AddInt32(&attempts, 1)
		return handlerErr
	}, func(ctx context.Context, task *Task, taskErr error) {
		atomic.AddInt32(&failures, 1)
		assert.ErrorIs(t, taskErr, handlerErr)
	})

	require.NoError(t, worker.Start(context.Background(), 1))
	defer worker.Stop()

	taskID, err := queue.Enqueue(context.Background(), QueueDefault, "doomed.item",
		testPayload{}, WithMaxRetries(1))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		result, err := queue.GetResult(context.Background(), taskID)
		return err == nil && result.Status == TaskStatusFailure
	}, 2*time.Second, 10*time.Millisecond)

	// MaxRetries 1 means one retry on top of the first attempt.
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures))
}
