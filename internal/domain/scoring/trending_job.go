package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/events"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotCache is the slice of the cache the trending job touches after a
// snapshot refresh.
type SnapshotCache interface {
	ClearByPattern(ctx context.Context, pattern string) error
	PublishProfileEvent(ctx context.Context, event *events.ProfileEvent) error
}

// TrendingJob refreshes the trending snapshot of one business from the raw
// interaction log. The job reads aggregates only; all scoring math lives in
// the engine.
type TrendingJob struct {
	engine       *Engine
	repo         Repository
	interactions interaction.Repository
	cache        SnapshotCache
	logger       *zap.Logger
}

func NewTrendingJob(engine *Engine, repo Repository, interactions interaction.Repository, cache SnapshotCache, logger *zap.Logger) *TrendingJob {
	return &TrendingJob{
		engine:       engine,
		repo:         repo,
		interactions: interactions,
		cache:        cache,
		logger:       logger,
	}
}

// Handle is the queue entry point.
func (j *TrendingJob) Handle(ctx context.Context, task *broker.Task) error {
	var payload broker.TrendingTaskPayload
	if err := broker.DecodePayload(task, &payload); err != nil {
		j.logger.Error("Undecodable trending payload",
			zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}

	if err := j.Run(ctx, payload.BusinessID); err != nil {
		return err
	}
	if payload.Action != "" {
		j.logger.Debug("Trending refresh triggered by interaction",
			zap.String("business_id", payload.BusinessID.String()),
			zap.String("action", payload.Action))
	}
	return nil
}

// Run recomputes and upserts the snapshot for businessID.
func (j *TrendingJob) Run(ctx context.Context, businessID uuid.UUID) error {
	now := time.Now().UTC()
	input, err := j.loadAggregates(ctx, businessID, now)
	if err != nil {
		return err
	}

	result := j.engine.Trending(*input)

	snapshot := &TrendingSnapshot{
		ItemType:          ItemTypeBusiness,
		ItemID:            businessID,
		TrendScore:        result.TrendScore,
		WeightedScore:     result.WeightedScore,
		GrowthRate:        result.GrowthRate,
		Velocity:          result.Velocity,
		TotalInteractions: result.TotalInteractions,
		TodayInteractions: result.TodayInteractions,
		CalculatedAt:      now,
	}
	if err := j.repo.UpsertSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to store trending snapshot: %w", err)
	}

	j.invalidateTrending(ctx, businessID)

	j.logger.Info("Trending snapshot refreshed",
		zap.String("business_id", businessID.String()),
		zap.Float64("trend_score", result.TrendScore),
		zap.Float64("growth_rate", result.GrowthRate),
		zap.Float64("velocity", result.Velocity))
	return nil
}

// loadAggregates pulls the windowed counts the engine needs. Day windows are
// calendar days in UTC; the velocity window is the trailing 24 hours.
func (j *TrendingJob) loadAggregates(ctx context.Context, businessID uuid.UUID, now time.Time) (*TrendingInput, error) {
	weekAgo := now.AddDate(0, 0, -7)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfYesterday := startOfToday.AddDate(0, 0, -1)

	typeCounts, err := j.interactions.CountByTypeSince(ctx, businessID, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly counts: %w", err)
	}
	counts := make(map[interaction.ActionType]int64, len(typeCounts))
	for _, tc := range typeCounts {
		counts[tc.InteractionType] = tc.Count
	}

	today, err := j.interactions.CountInRange(ctx, businessID, startOfToday, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load today count: %w", err)
	}
	yesterday, err := j.interactions.CountInRange(ctx, businessID, startOfYesterday, startOfToday)
	if err != nil {
		return nil, fmt.Errorf("failed to load yesterday count: %w", err)
	}

	buckets, err := j.interactions.HourlyBuckets(ctx, businessID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly buckets: %w", err)
	}

	return &TrendingInput{
		CountsByType:   counts,
		TodayCount:     today,
		YesterdayCount: yesterday,
		HourBuckets:    buckets,
	}, nil
}

// invalidateTrending drops cached trending lists so the next read sees the
// fresh snapshot. Best effort; the entries carry a TTL anyway.
func (j *TrendingJob) invalidateTrending(ctx context.Context, businessID uuid.UUID) {
	if err := j.cache.ClearByPattern(ctx, "trending:*"); err != nil {
		j.logger.Debug("Trending cache invalidation failed", zap.Error(err))
	}

	event := &events.ProfileEvent{
		EventType:  events.EventTypeTrendingUpdated,
		BusinessID: businessID,
		Timestamp:  time.Now().UTC(),
	}
	if err := j.cache.PublishProfileEvent(ctx, event); err != nil {
		j.logger.Debug("Trending event publish failed", zap.Error(err))
	}
}
