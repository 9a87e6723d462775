package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/Naimur404/5str-backend-go/internal/domain/scoring"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"go.uber.org/zap"
)

const (
	// minEngagedInteractions filters drive-by users out of the engagement
	// aggregate.
	minEngagedInteractions = 3

	// highEngagementScore is the per-user engagement score (share of
	// high-value actions) above which a user counts as highly engaged.
	highEngagementScore = 0.5

	// historyLimit bounds how many snapshots the daily trending rollup
	// preserves.
	historyLimit = 500
)

// ReportJob materializes funnel and engagement aggregates from the raw
// interaction log over a trailing window, appending one immutable metric
// event per run. Given an unchanged event log, two runs over the same
// timeframe append two rows with identical payloads.
type ReportJob struct {
	repo         Repository
	interactions interaction.Repository
	scores       scoring.Repository
	logger       *zap.Logger
}

func NewReportJob(repo Repository, interactions interaction.Repository, scores scoring.Repository, logger *zap.Logger) *ReportJob {
	return &ReportJob{
		repo:         repo,
		interactions: interactions,
		scores:       scores,
		logger:       logger,
	}
}

// Handle is the queue entry point.
func (j *ReportJob) Handle(ctx context.Context, task *broker.Task) error {
	var payload broker.ReportTaskPayload
	if err := broker.DecodePayload(task, &payload); err != nil {
		j.logger.Error("Undecodable report payload",
			zap.String("task_id", task.ID), zap.Error(err))
		return nil
	}

	if _, ok := TimeframeDuration(payload.Window); !ok {
		j.logger.Error("Unknown report timeframe", zap.String("timeframe", payload.Window))
		return nil
	}

	return j.Run(ctx, payload.Window, time.Now().UTC())
}

// Run computes both aggregates over the trailing window ending at now and
// appends one metric event. The daily run also preserves the trending
// snapshot state into the history table.
func (j *ReportJob) Run(ctx context.Context, timeframe string, now time.Time) error {
	window, ok := TimeframeDuration(timeframe)
	if !ok {
		return fmt.Errorf("unknown report timeframe %q", timeframe)
	}
	periodEnd := now
	periodStart := periodEnd.Add(-window)

	counts, err := j.interactions.FunnelCounts(ctx, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("failed to load funnel counts: %w", err)
	}

	engagement, err := j.interactions.EngagementByUser(ctx, periodStart, periodEnd, minEngagedInteractions)
	if err != nil {
		return fmt.Errorf("failed to load engagement: %w", err)
	}

	payload := &ReportPayload{
		Funnel:     buildFunnelPayload(counts),
		Engagement: buildEngagementPayload(engagement),
	}

	event, err := newMetricEvent(timeframe, periodStart, periodEnd, payload)
	if err != nil {
		return err
	}
	if err := j.repo.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to append metric event: %w", err)
	}

	if timeframe == Timeframe24h {
		if err := j.rollupTrendingHistory(ctx, truncateToDay(now)); err != nil {
			return err
		}
	}

	j.logger.Info("Analytics report generated",
		zap.String("timeframe", timeframe),
		zap.Int64("total_events", payload.Funnel.TotalEvents),
		zap.Int64("active_users", payload.Engagement.ActiveUsers))
	return nil
}

// rollupTrendingHistory preserves the current snapshot state under the given
// bucket date. The composite key on trending_history makes replays no-ops.
func (j *ReportJob) rollupTrendingHistory(ctx context.Context, bucketDate time.Time) error {
	snapshots, err := j.scores.TopTrending(ctx, scoring.ItemTypeBusiness, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load snapshots for history: %w", err)
	}
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([]scoring.TrendingHistory, len(snapshots))
	for i, snap := range snapshots {
		rows[i] = scoring.TrendingHistory{
			ItemType:          snap.ItemType,
			ItemID:            snap.ItemID,
			TimeWindow:        scoring.WindowDaily,
			BucketDate:        bucketDate,
			TrendScore:        snap.TrendScore,
			TotalInteractions: snap.TotalInteractions,
		}
	}

	if err := j.scores.AppendHistory(ctx, rows); err != nil {
		return fmt.Errorf("failed to append trending history: %w", err)
	}
	return nil
}

func buildFunnelPayload(counts map[interaction.ActionType]int64) FunnelPayload {
	named := make(map[string]int64, len(counts))
	var total int64
	for actionType, count := range counts {
		named[string(actionType)] = count
		total += count
	}

	views := counts[interaction.ActionView]
	clicks := counts[interaction.ActionClick]
	favorites := counts[interaction.ActionFavorite]
	calls := counts[interaction.ActionPhoneCall]

	return FunnelPayload{
		Counts:            named,
		TotalEvents:       total,
		ViewToClick:       ratio(clicks, views),
		ClickToFavorite:   ratio(favorites, clicks),
		ViewToCall:        ratio(calls, views),
		OverallConversion: ratio(favorites+calls, views),
	}
}

func buildEngagementPayload(rows []interaction.UserEngagement) EngagementPayload {
	payload := EngagementPayload{
		ActiveUsers: int64(len(rows)),
	}
	if len(rows) == 0 {
		return payload
	}

	var uniqueBusinesses, activeDays, highlyEngaged int64
	var scoreSum float64
	for _, row := range rows {
		payload.TotalInteractions += row.TotalCount
		uniqueBusinesses += row.UniqueBusinesses
		activeDays += row.ActiveDays

		score := 0.0
		if row.TotalCount > 0 {
			score = float64(row.HighValueCount) / float64(row.TotalCount)
		}
		scoreSum += score
		if score >= highEngagementScore {
			highlyEngaged++
		}
	}

	users := float64(len(rows))
	payload.AvgPerUser = float64(payload.TotalInteractions) / users
	payload.AvgUniqueBusiness = float64(uniqueBusinesses) / users
	payload.AvgActiveDays = float64(activeDays) / users
	payload.AvgEngagementScore = scoreSum / users
	payload.HighEngagementRate = float64(highlyEngaged) / users
	return payload
}

func ratio(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0.0
	}
	return float64(numerator) / float64(denominator)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func newMetricEvent(timeframe string, periodStart, periodEnd time.Time, payload *ReportPayload) (*MetricEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report payload: %w", err)
	}
	return &MetricEvent{
		EventName:   EventAnalyticsReport,
		Timeframe:   timeframe,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		EventData:   body,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
