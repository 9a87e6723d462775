package scheduler

import (
	"context"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/analytics"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"github.com/Naimur404/5str-backend-go/pkg/logger"
	"go.uber.org/zap"
)

const (
	// trendingRefreshInterval is how often recently active businesses get a
	// snapshot refresh, independent of interaction-triggered jobs.
	trendingRefreshInterval = 15 * time.Minute

	// trendingRefreshWindow selects which businesses count as active.
	trendingRefreshWindow = time.Hour

	// trendingRefreshLimit bounds one refresh sweep.
	trendingRefreshLimit = 200
)

// Scheduler drives the periodic side of the pipeline: hourly and daily
// analytics rollups plus a trending refresh sweep for active businesses. It
// only enqueues; all work runs on the queue worker.
type Scheduler struct {
	queue        broker.TaskQueue
	interactions interaction.Repository
	logger       *logger.Logger
}

func NewScheduler(queue broker.TaskQueue, interactions interaction.Repository, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		queue:        queue,
		interactions: interactions,
		logger:       logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	now := time.Now().UTC()
	nextHour := now.Truncate(time.Hour).Add(time.Hour)
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	s.logger.Info("Scheduler initialized",
		zap.Time("next_hourly_rollup", nextHour),
		zap.Time("next_daily_rollup", nextMidnight),
		zap.Duration("trending_refresh_interval", trendingRefreshInterval),
	)

	go s.runAligned(ctx, nextHour, time.Hour, func() {
		s.enqueueReport(ctx, analytics.Timeframe1h)
	})
	go s.runAligned(ctx, nextMidnight, 24*time.Hour, func() {
		s.enqueueReport(ctx, analytics.Timeframe24h)
		day := time.Now().UTC()
		if day.Weekday() == time.Monday {
			s.enqueueReport(ctx, analytics.Timeframe7d)
		}
		if day.Day() == 1 {
			s.enqueueReport(ctx, analytics.Timeframe30d)
		}
	})
	go s.runTrendingSweep(ctx)
}

// runAligned sleeps until first, then fires every interval.
func (s *Scheduler) runAligned(ctx context.Context, first time.Time, interval time.Duration, fn func()) {
	timer := time.NewTimer(time.Until(first))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	fn()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// enqueueReport dispatches one analytics rollup. Reports get a single
// attempt: a missed window is rebuilt identically by the next run over the
// same data, retrying adds nothing.
func (s *Scheduler) enqueueReport(ctx context.Context, timeframe string) {
	_, err := s.queue.Enqueue(ctx, broker.QueueLow, broker.TaskAnalyticsReport,
		broker.ReportTaskPayload{Window: timeframe})
	if err != nil {
		s.logger.Error("Failed to enqueue analytics report",
			zap.String("timeframe", timeframe), zap.Error(err))
		return
	}
	s.logger.Info("Analytics report enqueued", zap.String("timeframe", timeframe))
}

func (s *Scheduler) runTrendingSweep(ctx context.Context) {
	ticker := time.NewTicker(trendingRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshActiveBusinesses(ctx)
		}
	}
}

// refreshActiveBusinesses enqueues a trending refresh for every business
// with recent interactions, so snapshots keep decaying toward reality even
// for businesses whose last event was not an important one.
func (s *Scheduler) refreshActiveBusinesses(ctx context.Context) {
	startTime := time.Now()

	ids, err := s.interactions.ActiveBusinessIDsSince(ctx, time.Now().UTC().Add(-trendingRefreshWindow), trendingRefreshLimit)
	if err != nil {
		s.logger.Error("Failed to list active businesses", zap.Error(err))
		return
	}

	enqueued := 0
	for _, id := range ids {
		_, err := s.queue.Enqueue(ctx, broker.QueueLow, broker.TaskComputeTrending,
			broker.TrendingTaskPayload{BusinessID: id})
		if err != nil {
			s.logger.Error("Failed to enqueue trending refresh",
				zap.String("business_id", id.String()), zap.Error(err))
			continue
		}
		enqueued++
	}

	s.logger.Info("Trending refresh sweep completed",
		zap.Int("active_businesses", len(ids)),
		zap.Int("enqueued", enqueued),
		zap.Duration("duration", time.Since(startTime)),
	)
}
