package recommendation

import (
	"context"

	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"go.uber.org/zap"
)

// TaskHandlers binds the cache warm task to the worker.
type TaskHandlers struct {
	svc    Service
	logger *zap.Logger
}

func NewTaskHandlers(svc Service, logger *zap.Logger) *TaskHandlers {
	return &TaskHandlers{svc: svc, logger: logger}
}

// Register wires the recommendation tasks into the worker.
func (h *TaskHandlers) Register(w *broker.Worker) {
	w.Register(broker.TaskWarmRecommendations, h.handleWarm, h.warmFailed)
}

func (h *TaskHandlers) handleWarm(ctx context.Context, task *broker.Task) error {
	var payload broker.WarmTaskPayload
	if err := broker.DecodePayload(task, &payload); err != nil {
		h.logger.Error("Undecodable warm payload",
			zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}
	return h.svc.WarmUserCaches(ctx, payload.UserID)
}

// warmFailed only logs: a failed warm means the next read pays the rebuild
// cost, nothing is lost.
func (h *TaskHandlers) warmFailed(ctx context.Context, task *broker.Task, taskErr error) {
	h.logger.Warn("Cache warm failed",
		zap.String("task_id", task.ID), zap.Error(taskErr))
}
