package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	scheduledKey    = "tasks:scheduled"
	queueKeyPrefix  = "tasks:queue:"
	resultKeyPrefix = "tasks:meta:"
	moverInterval   = time.Second
)

// RedisTaskQueue is a TaskQueue backed by redis lists, one per lane, with a
// sorted set holding delayed tasks until their ETA. A background mover
// promotes due tasks onto their lane.
type RedisTaskQueue struct {
	redis      *redis.Client
	logger     *logrus.Logger
	resultsTTL time.Duration
	stop       chan struct{}
}

// NewRedisTaskQueue connects to redis and starts the delayed-task mover.
func NewRedisTaskQueue(redisURL string, resultsTTL time.Duration, logger *logrus.Logger) (*RedisTaskQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := &RedisTaskQueue{
		redis:      client,
		logger:     logger,
		resultsTTL: resultsTTL,
		stop:       make(chan struct{}),
	}

	go q.moveDueTasks()

	return q, nil
}

// Enqueue places a task on its lane, or parks it in the scheduled set when
// it carries a future ETA.
func (q *RedisTaskQueue) Enqueue(ctx context.Context, queue, name string, payload interface{}, opts ...EnqueueOption) (string, error) {
	task, err := newTask(queue, name, payload, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to serialize task payload: %w", err)
	}

	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	initial := &TaskResult{
		ID:        task.ID,
		Name:      task.Name,
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
	}
	if err := q.SetResult(ctx, initial); err != nil {
		return "", err
	}

	if task.ETA.After(time.Now()) {
		err = q.redis.ZAdd(ctx, scheduledKey, &redis.Z{
			Score:  float64(task.ETA.UnixMilli()),
			Member: body,
		}).Err()
	} else {
		err = q.redis.LPush(ctx, queueKeyPrefix+queue, body).Err()
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"task":    task.Name,
		"queue":   queue,
		"eta":     task.ETA,
	}).Debug("Task enqueued")

	return task.ID, nil
}

// Dequeue blocks on the lanes in the given priority order.
func (q *RedisTaskQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*Task, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = queueKeyPrefix + name
	}

	res, err := q.redis.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoTask
		}
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BRPop returns [key, value]
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to deserialize task: %w", err)
	}

	return &task, nil
}

// Requeue puts a failed task back on its lane after delay, bumping the
// attempt counter.
func (q *RedisTaskQueue) Requeue(ctx context.Context, task *Task, delay time.Duration) error {
	task.Attempt++
	task.ETA = time.Now().Add(delay)

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	if delay > 0 {
		return q.redis.ZAdd(ctx, scheduledKey, &redis.Z{
			Score:  float64(task.ETA.UnixMilli()),
			Member: body,
		}).Err()
	}
	return q.redis.LPush(ctx, queueKeyPrefix+task.Queue, body).Err()
}

// SetResult stores the task status with TTL.
func (q *RedisTaskQueue) SetResult(ctx context.Context, result *TaskResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize task result: %w", err)
	}
	return q.redis.Set(ctx, resultKeyPrefix+result.ID, body, q.resultsTTL).Err()
}

// GetResult retrieves the stored status of a task.
func (q *RedisTaskQueue) GetResult(ctx context.Context, taskID string) (*TaskResult, error) {
	body, err := q.redis.Get(ctx, resultKeyPrefix+taskID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task result: %w", err)
	}

	var result TaskResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize task result: %w", err)
	}
	return &result, nil
}

// moveDueTasks promotes scheduled tasks whose ETA has passed onto their
// lane. Runs until Close.
func (q *RedisTaskQueue) moveDueTasks() {
	ticker := time.NewTicker(moverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			q.promoteDue(ctx)
			cancel()
		}
	}
}

func (q *RedisTaskQueue) promoteDue(ctx context.Context) {
	now := float64(time.Now().UnixMilli())

	due, err := q.redis.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now), Count: 100,
	}).Result()
	if err != nil {
		q.logger.WithError(err).Error("Failed to read scheduled tasks")
		return
	}

	for _, body := range due {
		var task Task
		if err := json.Unmarshal([]byte(body), &task); err != nil {
			q.logger.WithError(err).Error("Dropping malformed scheduled task")
			q.redis.ZRem(ctx, scheduledKey, body)
			continue
		}

		// Remove first so a concurrent mover cannot double-promote.
		removed, err := q.redis.ZRem(ctx, scheduledKey, body).Result()
		if err != nil || removed == 0 {
			continue
		}

		if err := q.redis.LPush(ctx, queueKeyPrefix+task.Queue, body).Err(); err != nil {
			q.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to promote scheduled task")
		}
	}
}

// Close stops the mover and closes the redis connection.
func (q *RedisTaskQueue) Close() error {
	close(q.stop)
	return q.redis.Close()
}
