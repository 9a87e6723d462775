package interaction

import (
	"context"
	"errors"

	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"go.uber.org/zap"
)

// TaskHandlers binds the ingestion tasks to the worker. The handler path is
// where at-least-once delivery meets the append-only log: transient faults
// are retried by the worker, permanent validation failures are dropped with
// a log line, and exhausted retries degrade into a fallback write.
type TaskHandlers struct {
	svc    Service
	logger *zap.Logger
}

func NewTaskHandlers(svc Service, logger *zap.Logger) *TaskHandlers {
	return &TaskHandlers{svc: svc, logger: logger}
}

// Register wires the interaction tasks into the worker.
func (h *TaskHandlers) Register(w *broker.Worker) {
	w.Register(broker.TaskRecordInteraction, h.handleRecord, h.recordFailed)
	w.Register(broker.TaskRecordInteractionBatch, h.handleBatch, h.batchFailed)
}

// permanent reports whether the error cannot succeed on retry.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrMissingUser) ||
		errors.Is(err, catalog.ErrBusinessNotFound)
}

func (h *TaskHandlers) handleRecord(ctx context.Context, task *broker.Task) error {
	var input RecordInput
	if err := broker.DecodePayload(task, &input); err != nil {
		h.logger.Error("Undecodable interaction payload",
			zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}

	_, err := h.svc.Record(ctx, input)
	if err != nil && permanent(err) {
		// Input passed validation at submit time but fails now, e.g. the
		// business was removed in between. Retrying cannot fix it.
		h.logger.Warn("Dropping unprocessable interaction",
			zap.String("task_id", task.ID),
			zap.String("user_id", input.UserID.String()),
			zap.Error(err))
		return nil
	}
	return err
}

func (h *TaskHandlers) recordFailed(ctx context.Context, task *broker.Task, taskErr error) {
	var input RecordInput
	if err := broker.DecodePayload(task, &input); err != nil {
		h.logger.Error("Cannot decode payload for fallback",
			zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	if err := h.svc.RecordFallback(ctx, input, SourceJobFallback); err != nil {
		h.logger.Error("Interaction lost: fallback write failed",
			zap.String("task_id", task.ID),
			zap.String("user_id", input.UserID.String()),
			zap.Error(err))
	}
}

func (h *TaskHandlers) handleBatch(ctx context.Context, task *broker.Task) error {
	var payload BatchPayload
	if err := broker.DecodePayload(task, &payload); err != nil {
		h.logger.Error("Undecodable batch payload",
			zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}

	result, err := h.svc.RecordBatch(ctx, payload.UserID, payload.Items)
	if err != nil {
		if permanent(err) || errors.Is(err, ErrEmptyBatch) || errors.Is(err, ErrBatchTooLarge) {
			h.logger.Warn("Dropping unprocessable batch",
				zap.String("task_id", task.ID), zap.Error(err))
			return nil
		}
		return err
	}

	if result.Skipped > 0 {
		h.logger.Warn("Batch processed with skipped items",
			zap.String("task_id", task.ID),
			zap.Int("recorded", result.Recorded),
			zap.Int("skipped", result.Skipped))
	}
	return nil
}

func (h *TaskHandlers) batchFailed(ctx context.Context, task *broker.Task, taskErr error) {
	var payload BatchPayload
	if err := broker.DecodePayload(task, &payload); err != nil {
		h.logger.Error("Cannot decode batch payload for fallback",
			zap.String("task_id", task.ID), zap.Error(err))
		return
	}

	for _, item := range payload.Items {
		err := h.svc.RecordFallback(ctx, RecordInput{
			UserID:     payload.UserID,
			BusinessID: item.BusinessID,
			Action:     item.Action,
		}, SourceBatchFallback)
		if err != nil {
			h.logger.Error("Batch item lost: fallback write failed",
				zap.String("task_id", task.ID),
				zap.String("business_id", item.BusinessID.String()),
				zap.Error(err))
		}
	}
}
