package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/events"
	"github.com/Naimur404/5str-backend-go/internal/infrastructure/cache"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"github.com/Naimur404/5str-backend-go/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrInvalidAction = errors.New("invalid interaction type")
	ErrMissingUser   = errors.New("user id is required")
	ErrEmptyBatch    = errors.New("batch contains no items")
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d items", MaxBatchSize)
)

// maxWeight bounds caller-supplied weight overrides.
const maxWeight = 10.0

// ProfileCache is the slice of the cache the ingestion pipeline needs:
// eager invalidation plus the cross-node event channel.
type ProfileCache interface {
	Delete(ctx context.Context, keys ...string) error
	ClearByPattern(ctx context.Context, pattern string) error
	PublishProfileEvent(ctx context.Context, event *events.ProfileEvent) error
}

// Service is the interaction ingestion pipeline. Submit and SubmitBatch are
// the asynchronous entry points used by the HTTP layer: they validate
// synchronously, then hand off to the queue. Record and RecordBatch do the
// actual persistence plus the side effects (cache invalidation, scoring job
// fan-out); the queue worker calls them.
type Service interface {
	Submit(ctx context.Context, input RecordInput) (string, error)
	SubmitBatch(ctx context.Context, userID uuid.UUID, items []BatchItem) (string, error)

	Record(ctx context.Context, input RecordInput) (*InteractionEvent, error)
	RecordBatch(ctx context.Context, userID uuid.UUID, items []BatchItem) (*BatchResult, error)

	// RecordFallback persists a minimal event after queue processing has
	// exhausted its retries, so the interaction is degraded rather than
	// lost. No scoring fan-out happens on this path.
	RecordFallback(ctx context.Context, input RecordInput, source string) error
}

type service struct {
	repo    Repository
	catalog catalog.Repository
	cache   ProfileCache
	queue   broker.TaskQueue
	jobs    config.JobsConfig
	logger  *zap.Logger
}

func NewService(repo Repository, catalogRepo catalog.Repository, profileCache ProfileCache, queue broker.TaskQueue, jobs config.JobsConfig, logger *zap.Logger) Service {
	return &service{
		repo:    repo,
		catalog: catalogRepo,
		cache:   profileCache,
		queue:   queue,
		jobs:    jobs,
		logger:  logger,
	}
}

// validate rejects malformed input before anything is enqueued or written.
// Validation failures must never reach the queue; the retry machinery is for
// transient faults, not bad requests.
func (s *service) validate(ctx context.Context, userID, businessID uuid.UUID, action ActionType) error {
	if userID == uuid.Nil {
		return ErrMissingUser
	}
	if !action.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	exists, err := s.catalog.Exists(ctx, businessID)
	if err != nil {
		return fmt.Errorf("failed to verify business: %w", err)
	}
	if !exists {
		return catalog.ErrBusinessNotFound
	}
	return nil
}

func (s *service) Submit(ctx context.Context, input RecordInput) (string, error) {
	if err := s.validate(ctx, input.UserID, input.BusinessID, input.Action); err != nil {
		return "", err
	}

	taskID, err := s.queue.Enqueue(ctx, broker.QueueHigh, broker.TaskRecordInteraction, input,
		broker.WithMaxRetries(s.jobs.InteractionTries-1))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue interaction: %w", err)
	}

	s.logger.Debug("Interaction enqueued",
		zap.String("task_id", taskID),
		zap.String("user_id", input.UserID.String()),
		zap.String("action", string(input.Action)))
	return taskID, nil
}

// BatchPayload is the queued form of a SubmitBatch call.
type BatchPayload struct {
	UserID uuid.UUID   `json:"user_id"`
	Items  []BatchItem `json:"items"`
}

func (s *service) SubmitBatch(ctx context.Context, userID uuid.UUID, items []BatchItem) (string, error) {
	if userID == uuid.Nil {
		return "", ErrMissingUser
	}
	if len(items) == 0 {
		return "", ErrEmptyBatch
	}
	if len(items) > MaxBatchSize {
		return "", ErrBatchTooLarge
	}

	taskID, err := s.queue.Enqueue(ctx, broker.QueueDefault, broker.TaskRecordInteractionBatch,
		BatchPayload{UserID: userID, Items: items},
		broker.WithMaxRetries(s.jobs.InteractionTries-1))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue batch: %w", err)
	}

	s.logger.Debug("Interaction batch enqueued",
		zap.String("task_id", taskID),
		zap.String("user_id", userID.String()),
		zap.Int("items", len(items)))
	return taskID, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*InteractionEvent, error) {
	if err := s.validate(ctx, input.UserID, input.BusinessID, input.Action); err != nil {
		return nil, err
	}

	event, err := s.buildEvent(input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record interaction: %w", err)
	}

	s.invalidateProfiles(ctx, input.UserID)
	s.dispatchScoring(ctx, input.BusinessID, input.Action)

	if input.Action.IsHighPriority() {
		s.dispatchWarm(ctx, input.UserID, string(input.Action), s.jobs.CacheWarmDelay)
	}

	return event, nil
}

func (s *service) RecordBatch(ctx context.Context, userID uuid.UUID, items []BatchItem) (*BatchResult, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	result := &BatchResult{}
	scoringTargets := make(map[uuid.UUID]ActionType)

	// Per-item isolation: one bad item is skipped and reported, it never
	// aborts the rest of the batch.
	for i, item := range items {
		if err := s.validate(ctx, userID, item.BusinessID, item.Action); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i, err))
			continue
		}

		event, err := s.buildEvent(RecordInput{
			UserID:     userID,
			BusinessID: item.BusinessID,
			Action:     item.Action,
			Source:     item.Source,
			Context:    item.Context,
			Weight:     item.Weight,
		})
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i, err))
			continue
		}

		if err := s.repo.Create(ctx, event); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i, err))
			s.logger.Warn("Batch item failed to persist",
				zap.Int("item", i),
				zap.String("business_id", item.BusinessID.String()),
				zap.Error(err))
			continue
		}

		result.Recorded++
		if item.Action.IsImportant() {
			scoringTargets[item.BusinessID] = item.Action
		}
	}

	if result.Recorded > 0 {
		// One invalidation and one warm for the whole batch, not per item.
		s.invalidateProfiles(ctx, userID)
		for businessID, action := range scoringTargets {
			s.enqueueScoring(ctx, businessID, action)
		}
		s.dispatchWarm(ctx, userID, "batch", s.jobs.BatchWarmDelay)
	}

	return result, nil
}

func (s *service) RecordFallback(ctx context.Context, input RecordInput, source string) error {
	if input.UserID == uuid.Nil || input.BusinessID == uuid.Nil || !input.Action.IsValid() {
		return ErrInvalidAction
	}

	event := &InteractionEvent{
		UserID:          input.UserID,
		BusinessID:      input.BusinessID,
		InteractionType: input.Action,
		Source:          source,
		Weight:          input.Action.DefaultWeight(),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return fmt.Errorf("fallback write failed: %w", err)
	}

	s.invalidateProfiles(ctx, input.UserID)
	s.logger.Warn("Interaction recorded via fallback",
		zap.String("source", source),
		zap.String("user_id", input.UserID.String()),
		zap.String("action", string(input.Action)))
	return nil
}

func (s *service) buildEvent(input RecordInput) (*InteractionEvent, error) {
	weight := input.Action.DefaultWeight()
	if input.Weight != nil {
		weight = *input.Weight
		if weight < 0 {
			weight = 0
		}
		if weight > maxWeight {
			weight = maxWeight
		}
	}

	event := &InteractionEvent{
		UserID:          input.UserID,
		BusinessID:      input.BusinessID,
		InteractionType: input.Action,
		Source:          input.Source,
		Weight:          weight,
		Latitude:        input.Latitude,
		Longitude:       input.Longitude,
	}

	if len(input.Context) > 0 {
		data, err := json.Marshal(input.Context)
		if err != nil {
			return nil, fmt.Errorf("invalid context payload: %w", err)
		}
		event.Context = datatypes.JSON(data)
	}

	return event, nil
}

// invalidateProfiles eagerly drops the user's cached profiles and ranked
// lists. Failures are logged, never propagated: a stale cache entry expires
// on its own, while a failed write would lose the interaction.
func (s *service) invalidateProfiles(ctx context.Context, userID uuid.UUID) {
	keys := []string{
		cache.UserProfileFastKey(userID),
		cache.UserProfileFullKey(userID),
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("Profile cache invalidation failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	}

	for _, pattern := range []string{
		cache.UserRecommendationsPattern(userID),
		cache.UserPersonalizedPattern(userID),
	} {
		if err := s.cache.ClearByPattern(ctx, pattern); err != nil {
			s.logger.Warn("Recommendation cache invalidation failed",
				zap.String("pattern", pattern), zap.Error(err))
		}
	}

	event := &events.ProfileEvent{
		EventType: events.EventTypeProfileInvalidate,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	if err := s.cache.PublishProfileEvent(ctx, event); err != nil {
		s.logger.Debug("Profile event publish failed", zap.Error(err))
	}
}

// dispatchScoring fans out the recompute jobs for important actions.
func (s *service) dispatchScoring(ctx context.Context, businessID uuid.UUID, action ActionType) {
	if !action.IsImportant() {
		return
	}
	s.enqueueScoring(ctx, businessID, action)
}

// enqueueScoring places similarity and trending recomputation on the low
// lane. The delays let the triggering write settle before the jobs read.
// Enqueue failures are logged only; the scheduled refresh covers the gap.
func (s *service) enqueueScoring(ctx context.Context, businessID uuid.UUID, action ActionType) {
	_, err := s.queue.Enqueue(ctx, broker.QueueLow, broker.TaskComputeSimilarity,
		broker.SimilarityTaskPayload{BusinessID: businessID},
		broker.WithDelay(s.jobs.SimilarityDelay),
		broker.WithMaxRetries(s.jobs.ScoringTries-1))
	if err != nil {
		s.logger.Warn("Failed to enqueue similarity job",
			zap.String("business_id", businessID.String()), zap.Error(err))
	}

	_, err = s.queue.Enqueue(ctx, broker.QueueLow, broker.TaskComputeTrending,
		broker.TrendingTaskPayload{BusinessID: businessID, Action: string(action)},
		broker.WithDelay(s.jobs.TrendingDelay),
		broker.WithMaxRetries(s.jobs.ScoringTries-1))
	if err != nil {
		s.logger.Warn("Failed to enqueue trending job",
			zap.String("business_id", businessID.String()), zap.Error(err))
	}
}

// dispatchWarm rebuilds the user's caches on the low lane alongside the rest
// of the recomputation work, so warming never competes with ingestion.
func (s *service) dispatchWarm(ctx context.Context, userID uuid.UUID, reason string, delay time.Duration) {
	_, err := s.queue.Enqueue(ctx, broker.QueueLow, broker.TaskWarmRecommendations,
		broker.WarmTaskPayload{UserID: userID, Reason: reason},
		broker.WithDelay(delay))
	if err != nil {
		s.logger.Warn("Failed to enqueue cache warm",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}
