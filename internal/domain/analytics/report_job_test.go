package analytics

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/Naimur404/5str-backend-go/internal/domain/scoring"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockMetricRepo captures appended metric events.
type mockMetricRepo struct {
	appended []*MetricEvent
}

func (m *mockMetricRepo) Append(ctx context.Context, event *MetricEvent) error {
	// The real repository goes through gorm's Create, which runs the
	// BeforeCreate hook that assigns the row ID.
	if err := event.BeforeCreate(nil); err != nil {
		return err
	}
	m.appended = append(m.appended, event)
	return nil
}

func (m *mockMetricRepo) ListRecent(ctx context.Context, timeframe string, limit int) ([]MetricEvent, error) {
	return nil, nil
}

// mockEventRepo serves canned funnel and engagement aggregates.
type mockEventRepo struct {
	funnel        map[interaction.ActionType]int64
	engagement    []interaction.UserEngagement
	funnelWindows [][2]time.Time
}

func (m *mockEventRepo) Create(ctx context.Context, event *interaction.InteractionEvent) error {
	return nil
}

func (m *mockEventRepo) CountByTypeSince(ctx context.Context, businessID uuid.UUID, since time.Time) ([]interaction.TypeCount, error) {
	return nil, nil
}

func (m *mockEventRepo) CountInRange(ctx context.Context, businessID uuid.UUID, from, to time.Time) (int64, error) {
	return 0, nil
}

func (m *mockEventRepo) HourlyBuckets(ctx context.Context, businessID uuid.UUID, since time.Time) ([]interaction.HourBucket, error) {
	return nil, nil
}

func (m *mockEventRepo) DistinctUserIDs(ctx context.Context, businessID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockEventRepo) DistinctUserIDsForBusinesses(ctx context.Context, businessIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return nil, nil
}

func (m *mockEventRepo) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]interaction.InteractionEvent, error) {
	return nil, nil
}

func (m *mockEventRepo) CountByTypeForUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]interaction.TypeCount, error) {
	return nil, nil
}

func (m *mockEventRepo) TopCategoryIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockEventRepo) RecentBusinessIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockEventRepo) UserGeoCentroid(ctx context.Context, userID uuid.UUID) (float64, float64, bool, error) {
	return 0, 0, false, nil
}

func (m *mockEventRepo) FunnelCounts(ctx context.Context, from, to time.Time) (map[interaction.ActionType]int64, error) {
	m.funnelWindows = append(m.funnelWindows, [2]time.Time{from, to})
	return m.funnel, nil
}

func (m *mockEventRepo) EngagementByUser(ctx context.Context, from, to time.Time, minInteractions int) ([]interaction.UserEngagement, error) {
	return m.engagement, nil
}

func (m *mockEventRepo) ActiveBusinessIDsSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

// mockHistoryRepo captures the trending history rollup.
type mockHistoryRepo struct {
	snapshots []scoring.TrendingSnapshot
	history   [][]scoring.TrendingHistory
}

func (m *mockHistoryRepo) ReplaceSimilarities(ctx context.Context, businessID uuid.UUID, edges []scoring.BusinessSimilarity) error {
	return nil
}

func (m *mockHistoryRepo) TopSimilar(ctx context.Context, businessID uuid.UUID, limit int) ([]scoring.BusinessSimilarity, error) {
	return nil, nil
}

func (m *mockHistoryRepo) UpsertSnapshot(ctx context.Context, snapshot *scoring.TrendingSnapshot) error {
	return nil
}

func (m *mockHistoryRepo) GetSnapshot(ctx context.Context, itemType string, itemID uuid.UUID) (*scoring.TrendingSnapshot, error) {
	return nil, scoring.ErrSnapshotNotFound
}

func (m *mockHistoryRepo) TopTrending(ctx context.Context, itemType string, limit int) ([]scoring.TrendingSnapshot, error) {
	return m.snapshots, nil
}

func (m *mockHistoryRepo) TrendScoresFor(ctx context.Context, itemType string, itemIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	return nil, nil
}

func (m *mockHistoryRepo) AppendHistory(ctx context.Context, rows []scoring.TrendingHistory) error {
	m.history = append(m.history, rows)
	return nil
}

func (m *mockHistoryRepo) SnapshotsCalculatedBefore(ctx context.Context, itemType string, cutoff time.Time, limit int) ([]scoring.TrendingSnapshot, error) {
	return nil, nil
}

func quietLogrus() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHandleAcceptsEveryTimeframe(t *testing.T) {
	for _, timeframe := range []string{Timeframe1h, Timeframe24h, Timeframe7d, Timeframe30d} {
		t.Run(timeframe, func(t *testing.T) {
			repo := &mockMetricRepo{}
			job := NewReportJob(repo, &mockEventRepo{}, &mockHistoryRepo{}, zap.NewNop())

			queue := broker.NewInMemoryTaskQueue(quietLogrus(), 10)
			defer queue.Close()

			_, err := queue.Enqueue(context.Background(), broker.QueueLow,
				broker.TaskAnalyticsReport, broker.ReportTaskPayload{Window: timeframe})
			require.NoError(t, err)

			task, err := queue.Dequeue(context.Background(), []string{broker.QueueLow}, time.Second)
			require.NoError(t, err)

			require.NoError(t, job.Handle(context.Background(), task))
			require.Len(t, repo.appended, 1, "a dispatched rollup must land one metric event")
			assert.Equal(t, timeframe, repo.appended[0].Timeframe)
			assert.Equal(t, EventAnalyticsReport, repo.appended[0].EventName)
		})
	}
}

func TestHandleDropsUnknownTimeframe(t *testing.T) {
	repo := &mockMetricRepo{}
	job := NewReportJob(repo, &mockEventRepo{}, &mockHistoryRepo{}, zap.NewNop())

	payload, err := json.Marshal(broker.ReportTaskPayload{Window: "weekly"})
	require.NoError(t, err)
	task := &broker.Task{ID: "t1", Name: broker.TaskAnalyticsReport, Payload: payload}

	// Unknown names are permanent failures: logged and dropped, no retry.
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Empty(t, repo.appended)
}

func TestRunBuildsBothAggregatesInOneEvent(t *testing.T) {
	repo := &mockMetricRepo{}
	events := &mockEventRepo{
		funnel: map[interaction.ActionType]int64{
			interaction.ActionView:      200,
			interaction.ActionClick:     50,
			interaction.ActionFavorite:  8,
			interaction.ActionPhoneCall: 10,
			interaction.ActionReview:    2,
		},
		engagement: []interaction.UserEngagement{
			{UserID: uuid.New(), TotalCount: 20, UniqueBusinesses: 8, ActiveDays: 5, HighValueCount: 12},
			{UserID: uuid.New(), TotalCount: 10, UniqueBusinesses: 4, ActiveDays: 3, HighValueCount: 2},
			{UserID: uuid.New(), TotalCount: 6, UniqueBusinesses: 2, ActiveDays: 1, HighValueCount: 0},
		},
	}

	job := NewReportJob(repo, events, &mockHistoryRepo{}, zap.NewNop())

	now := time.Date(2026, 3, 10, 14, 25, 0, 0, time.UTC)
	require.NoError(t, job.Run(context.Background(), Timeframe1h, now))

	require.Len(t, repo.appended, 1)
	event := repo.appended[0]
	assert.Equal(t, Timeframe1h, event.Timeframe)
	assert.Equal(t, now.Add(-time.Hour), event.PeriodStart)
	assert.Equal(t, now, event.PeriodEnd)

	// The aggregate reads exactly the trailing window.
	require.Len(t, events.funnelWindows, 1)
	assert.Equal(t, event.PeriodStart, events.funnelWindows[0][0])
	assert.Equal(t, event.PeriodEnd, events.funnelWindows[0][1])

	var payload ReportPayload
	require.NoError(t, json.Unmarshal(event.EventData, &payload))

	assert.Equal(t, int64(270), payload.Funnel.TotalEvents)
	assert.Equal(t, int64(200), payload.Funnel.Counts["view"])
	assert.InDelta(t, 0.25, payload.Funnel.ViewToClick, 0.001)
	assert.InDelta(t, 8.0/50.0, payload.Funnel.ClickToFavorite, 0.001)
	assert.InDelta(t, 10.0/200.0, payload.Funnel.ViewToCall, 0.001)
	// overall = (favorites + calls) / views
	assert.InDelta(t, 18.0/200.0, payload.Funnel.OverallConversion, 0.001)

	assert.Equal(t, int64(3), payload.Engagement.ActiveUsers)
	assert.Equal(t, int64(36), payload.Engagement.TotalInteractions)
	assert.InDelta(t, 12.0, payload.Engagement.AvgPerUser, 0.001)
	assert.InDelta(t, 14.0/3.0, payload.Engagement.AvgUniqueBusiness, 0.001)
	assert.InDelta(t, 3.0, payload.Engagement.AvgActiveDays, 0.001)
	// per-user scores: 12/20, 2/10, 0/6
	assert.InDelta(t, (0.6+0.2+0.0)/3.0, payload.Engagement.AvgEngagementScore, 0.001)
	assert.InDelta(t, 1.0/3.0, payload.Engagement.HighEngagementRate, 0.001,
		"only the 0.6-score user clears the bar")
}

func TestRunHandlesQuietWindow(t *testing.T) {
	repo := &mockMetricRepo{}
	job := NewReportJob(repo, &mockEventRepo{}, &mockHistoryRepo{}, zap.NewNop())

	require.NoError(t, job.Run(context.Background(), Timeframe7d, time.Now().UTC()))

	require.Len(t, repo.appended, 1)
	var payload ReportPayload
	require.NoError(t, json.Unmarshal(repo.appended[0].EventData, &payload))
	assert.Zero(t, payload.Funnel.TotalEvents)
	assert.Zero(t, payload.Funnel.ViewToClick, "empty windows must not divide by zero")
	assert.Zero(t, payload.Engagement.ActiveUsers)
	assert.Zero(t, payload.Engagement.AvgPerUser)
}

func TestRunTwiceAppendsTwoIdenticalRows(t *testing.T) {
	repo := &mockMetricRepo{}
	events := &mockEventRepo{funnel: map[interaction.ActionType]int64{
		interaction.ActionView:  100,
		interaction.ActionClick: 40,
	}}
	job := NewReportJob(repo, events, &mockHistoryRepo{}, zap.NewNop())

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	require.NoError(t, job.Run(context.Background(), Timeframe24h, now))
	require.NoError(t, job.Run(context.Background(), Timeframe24h, now))

	// The log is append-only: a replay lands a second row, never an update.
	require.Len(t, repo.appended, 2)
	assert.NotEqual(t, repo.appended[0].ID, repo.appended[1].ID)
	assert.Equal(t, repo.appended[0].PeriodStart, repo.appended[1].PeriodStart)
	assert.JSONEq(t, string(repo.appended[0].EventData), string(repo.appended[1].EventData),
		"the same window over the same data must serialize identically")
}

func TestDailyRunRollsUpTrendingHistory(t *testing.T) {
	repo := &mockMetricRepo{}
	history := &mockHistoryRepo{snapshots: []scoring.TrendingSnapshot{
		{ItemType: scoring.ItemTypeBusiness, ItemID: uuid.New(), TrendScore: 180.0, TotalInteractions: 250},
	}}
	job := NewReportJob(repo, &mockEventRepo{}, history, zap.NewNop())

	now := time.Date(2026, 3, 10, 0, 15, 0, 0, time.UTC)
	require.NoError(t, job.Run(context.Background(), Timeframe24h, now))

	require.Len(t, history.history, 1)
	require.Len(t, history.history[0], 1)
	row := history.history[0][0]
	assert.Equal(t, scoring.WindowDaily, row.TimeWindow)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), row.BucketDate)
	assert.InDelta(t, 180.0, row.TrendScore, 0.001)
	assert.Equal(t, int64(250), row.TotalInteractions)
}

func TestHourlyRunSkipsTrendingHistory(t *testing.T) {
	history := &mockHistoryRepo{snapshots: []scoring.TrendingSnapshot{
		{ItemType: scoring.ItemTypeBusiness, ItemID: uuid.New(), TrendScore: 90.0},
	}}
	job := NewReportJob(&mockMetricRepo{}, &mockEventRepo{}, history, zap.NewNop())

	require.NoError(t, job.Run(context.Background(), Timeframe1h, time.Now().UTC()))
	assert.Empty(t, history.history, "only the daily run preserves snapshot history")
}

func TestDailyRunSkipsHistoryWhenNoSnapshots(t *testing.T) {
	history := &mockHistoryRepo{}
	job := NewReportJob(&mockMetricRepo{}, &mockEventRepo{}, history, zap.NewNop())

	require.NoError(t, job.Run(context.Background(), Timeframe24h, time.Now().UTC()))
	assert.Empty(t, history.history)
}
