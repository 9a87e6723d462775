package interaction

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/events"
	"github.com/Naimur404/5str-backend-go/pkg/broker"
	"github.com/Naimur404/5str-backend-go/pkg/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRepository records created events in memory.
type mockRepository struct {
	created   []*InteractionEvent
	createErr error
}

func (m *mockRepository) Create(ctx context.Context, event *InteractionEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, event)
	return nil
}

func (m *mockRepository) CountByTypeSince(ctx context.Context, businessID uuid.UUID, since time.Time) ([]TypeCount, error) {
	return nil, nil
}

func (m *mockRepository) CountInRange(ctx context.Context, businessID uuid.UUID, from, to time.Time) (int64, error) {
	return 0, nil
}

func (m *mockRepository) HourlyBuckets(ctx context.Context, businessID uuid.UUID, since time.Time) ([]HourBucket, error) {
	return nil, nil
}

func (m *mockRepository) DistinctUserIDs(ctx context.Context, businessID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockRepository) DistinctUserIDsForBusinesses(ctx context.Context, businessIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return nil, nil
}

func (m *mockRepository) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]InteractionEvent, error) {
	return nil, nil
}

func (m *mockRepository) CountByTypeForUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]TypeCount, error) {
	return nil, nil
}

func (m *mockRepository) TopCategoryIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockRepository) RecentBusinessIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockRepository) UserGeoCentroid(ctx context.Context, userID uuid.UUID) (float64, float64, bool, error) {
	return 0, 0, false, nil
}

func (m *mockRepository) FunnelCounts(ctx context.Context, from, to time.Time) (map[ActionType]int64, error) {
	return nil, nil
}

func (m *mockRepository) EngagementByUser(ctx context.Context, from, to time.Time, minInteractions int) ([]UserEngagement, error) {
	return nil, nil
}

func (m *mockRepository) ActiveBusinessIDsSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

// mockCatalog answers existence checks from a fixed set.
type mockCatalog struct {
	existing map[uuid.UUID]bool
}

func (m *mockCatalog) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Business, error) {
	if !m.existing[id] {
		return nil, catalog.ErrBusinessNotFound
	}
	return &catalog.Business{ID: id}, nil
}

func (m *mockCatalog) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Business, error) {
	return nil, nil
}

func (m *mockCatalog) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.existing[id], nil
}

func (m *mockCatalog) FindCandidatesSharingCategories(ctx context.Context, categoryIDs []uuid.UUID, exclude uuid.UUID, limit int) ([]catalog.Business, error) {
	return nil, nil
}

func (m *mockCatalog) TopRatedApproved(ctx context.Context, area string, limit int) ([]catalog.Business, error) {
	return nil, nil
}

// mockCache records invalidations and published events.
type mockCache struct {
	deletedKeys []string
	patterns    []string
	published   []*events.ProfileEvent
}

func (m *mockCache) Delete(ctx context.Context, keys ...string) error {
	m.deletedKeys = append(m.deletedKeys, keys...)
	return nil
}

func (m *mockCache) ClearByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func (m *mockCache) PublishProfileEvent(ctx context.Context, event *events.ProfileEvent) error {
	m.published = append(m.published, event)
	return nil
}

func testJobsConfig() config.JobsConfig {
	return config.JobsConfig{
		WorkerCount:      1,
		SimilarityDelay:  time.Minute,
		TrendingDelay:    30 * time.Second,
		CacheWarmDelay:   5 * time.Second,
		BatchWarmDelay:   10 * time.Second,
		InteractionTries: 3,
		ScoringTries:     2,
		RetryBackoff:     15 * time.Second,
	}
}

func newTestService(existing ...uuid.UUID) (Service, *mockRepository, *mockCache, *broker.InMemoryTaskQueue) {
	repo := &mockRepository{}
	cat := &mockCatalog{existing: map[uuid.UUID]bool{}}
	for _, id := range existing {
		cat.existing[id] = true
	}
	cacheMock := &mockCache{}
	queue := broker.NewInMemoryTaskQueue(logrus.New(), 100)

	svc := NewService(repo, cat, cacheMock, queue, testJobsConfig(), zap.NewNop())
	return svc, repo, cacheMock, queue
}

func tasksNamed(queue *broker.InMemoryTaskQueue, name string) []*broker.Task {
	var matched []*broker.Task
	for _, task := range queue.Snapshot() {
		if task.Name == name {
			matched = append(matched, task)
		}
	}
	return matched
}

func TestRecordImportantAction(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	svc, repo, cacheMock, queue := newTestService(businessID)

	event, err := svc.Record(context.Background(), RecordInput{
		UserID:     userID,
		BusinessID: businessID,
		Action:     ActionFavorite,
	})
	require.NoError(t, err)

	assert.Equal(t, 3.0, event.Weight, "favorite takes its default weight")
	require.Len(t, repo.created, 1)

	// Profile caches invalidated for exactly this user.
	require.Len(t, cacheMock.deletedKeys, 2)
	for _, key := range cacheMock.deletedKeys {
		assert.Contains(t, key, userID.String())
	}
	require.Len(t, cacheMock.published, 1)
	assert.Equal(t, events.EventTypeProfileInvalidate, cacheMock.published[0].EventType)

	// Scoring fan-out on the low lane.
	similarity := tasksNamed(queue, broker.TaskComputeSimilarity)
	require.Len(t, similarity, 1)
	assert.Equal(t, broker.QueueLow, similarity[0].Queue)
	assert.Equal(t, 1, similarity[0].MaxRetries)

	var simPayload broker.SimilarityTaskPayload
	require.NoError(t, broker.DecodePayload(similarity[0], &simPayload))
	assert.Equal(t, businessID, simPayload.BusinessID)

	trending := tasksNamed(queue, broker.TaskComputeTrending)
	require.Len(t, trending, 1)
	var trendPayload broker.TrendingTaskPayload
	require.NoError(t, broker.DecodePayload(trending[0], &trendPayload))
	assert.Equal(t, businessID, trendPayload.BusinessID)
	assert.Equal(t, string(ActionFavorite), trendPayload.Action)

	// Favorite is also high priority, so a warm is queued on the low lane
	// with the rest of the recomputation work.
	warms := tasksNamed(queue, broker.TaskWarmRecommendations)
	require.Len(t, warms, 1)
	assert.Equal(t, broker.QueueLow, warms[0].Queue)
}

func TestRecordOrdinaryAction(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	svc, repo, cacheMock, queue := newTestService(businessID)

	_, err := svc.Record(context.Background(), RecordInput{
		UserID:     userID,
		BusinessID: businessID,
		Action:     ActionView,
	})
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Len(t, cacheMock.deletedKeys, 2, "caches still invalidated")

	assert.Empty(t, tasksNamed(queue, broker.TaskComputeSimilarity), "views do not trigger scoring")
	assert.Empty(t, tasksNamed(queue, broker.TaskComputeTrending))
	assert.Empty(t, tasksNamed(queue, broker.TaskWarmRecommendations))
}

func TestRecordValidation(t *testing.T) {
	businessID := uuid.New()
	svc, repo, _, queue := newTestService(businessID)

	tests := []struct {
		name     string
		input    RecordInput
		expected error
	}{
		{
			name:     "Unknown action type",
			input:    RecordInput{UserID: uuid.New(), BusinessID: businessID, Action: "teleport"},
			expected: ErrInvalidAction,
		},
		{
			name:     "Missing user",
			input:    RecordInput{BusinessID: businessID, Action: ActionView},
			expected: ErrMissingUser,
		},
		{
			name:     "Unknown business",
			input:    RecordInput{UserID: uuid.New(), BusinessID: uuid.New(), Action: ActionView},
			expected: catalog.ErrBusinessNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.expected)
		})
	}

	assert.Empty(t, repo.created, "invalid input is never persisted")
	assert.Empty(t, queue.Snapshot(), "invalid input is never enqueued")
}

func TestRecordWeightOverride(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	svc, repo, _, _ := newTestService(businessID)

	over := 99.0
	_, err := svc.Record(context.Background(), RecordInput{
		UserID:     userID,
		BusinessID: businessID,
		Action:     ActionView,
		Weight:     &over,
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, repo.created[0].Weight, "weight clamps to the upper bound")

	under := -3.0
	_, err = svc.Record(context.Background(), RecordInput{
		UserID:     userID,
		BusinessID: businessID,
		Action:     ActionView,
		Weight:     &under,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, repo.created[1].Weight, "weight clamps to zero")
}

func TestRecordBatchSkipsBadItems(t *testing.T) {
	userID := uuid.New()
	knownA := uuid.New()
	knownB := uuid.New()
	svc, repo, cacheMock, queue := newTestService(knownA, knownB)

	items := []BatchItem{
		{BusinessID: knownA, Action: ActionView},
		{BusinessID: uuid.New(), Action: ActionView}, // unknown business
		{BusinessID: knownB, Action: ActionFavorite},
	}

	result, err := svc.RecordBatch(context.Background(), userID, items)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Recorded)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "item 1:"), "error names the failing item")

	require.Len(t, repo.created, 2)

	// One invalidation and one warm for the whole batch.
	assert.Len(t, cacheMock.deletedKeys, 2)
	assert.Len(t, tasksNamed(queue, broker.TaskWarmRecommendations), 1)

	// Scoring only for the important item.
	similarity := tasksNamed(queue, broker.TaskComputeSimilarity)
	require.Len(t, similarity, 1)
	var payload broker.SimilarityTaskPayload
	require.NoError(t, broker.DecodePayload(similarity[0], &payload))
	assert.Equal(t, knownB, payload.BusinessID)
}

func TestRecordBatchBounds(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	svc, _, _, _ := newTestService(businessID)

	_, err := svc.RecordBatch(context.Background(), userID, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	oversized := make([]BatchItem, MaxBatchSize+1)
	for i := range oversized {
		oversized[i] = BatchItem{BusinessID: businessID, Action: ActionView}
	}
	_, err = svc.RecordBatch(context.Background(), userID, oversized)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestSubmitEnqueuesOnHighLane(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	svc, repo, _, queue := newTestService(businessID)

	taskID, err := svc.Submit(context.Background(), RecordInput{
		UserID:     userID,
		BusinessID: businessID,
		Action:     ActionClick,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	assert.Empty(t, repo.created, "submit defers persistence to the worker")

	queued := tasksNamed(queue, broker.TaskRecordInteraction)
	require.Len(t, queued, 1)
	assert.Equal(t, broker.QueueHigh, queued[0].Queue)
	assert.Equal(t, 2, queued[0].MaxRetries)

	var payload RecordInput
	require.NoError(t, broker.DecodePayload(queued[0], &payload))
	assert.Equal(t, userID, payload.UserID)
	assert.Equal(t, ActionClick, payload.Action)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	svc, _, _, queue := newTestService()

	_, err := svc.Submit(context.Background(), RecordInput{
		UserID:     uuid.New(),
		BusinessID: uuid.New(),
		Action:     ActionView,
	})
	assert.ErrorIs(t, err, catalog.ErrBusinessNotFound)
	assert.Empty(t, queue.Snapshot(), "validation failures never reach the queue")
}

func TestRecordFallback(t *testing.T) {
	userID := uuid.New()
	businessID := uuid.New()
	svc, repo, _, queue := newTestService(businessID)

	err := svc.RecordFallback(context.Background(), RecordInput{
		UserID:     userID,
		BusinessID: businessID,
		Action:     ActionFavorite,
	}, SourceJobFallback)
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, SourceJobFallback, repo.created[0].Source)
	assert.Equal(t, 3.0, repo.created[0].Weight)

	assert.Empty(t, tasksNamed(queue, broker.TaskComputeSimilarity),
		"fallback writes skip the scoring fan-out")
}
