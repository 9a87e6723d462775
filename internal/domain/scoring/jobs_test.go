package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/events"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockScoreRepo captures writes from the jobs.
type mockScoreRepo struct {
	replacedFor  uuid.UUID
	replaced     []BusinessSimilarity
	replaceCalls int
	snapshots    []*TrendingSnapshot
}

func (m *mockScoreRepo) ReplaceSimilarities(ctx context.Context, businessID uuid.UUID, edges []BusinessSimilarity) error {
	m.replacedFor = businessID
	m.replaced = edges
	m.replaceCalls++
	return nil
}

func (m *mockScoreRepo) TopSimilar(ctx context.Context, businessID uuid.UUID, limit int) ([]BusinessSimilarity, error) {
	return nil, nil
}

func (m *mockScoreRepo) UpsertSnapshot(ctx context.Context, snapshot *TrendingSnapshot) error {
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *mockScoreRepo) GetSnapshot(ctx context.Context, itemType string, itemID uuid.UUID) (*TrendingSnapshot, error) {
	return nil, ErrSnapshotNotFound
}

func (m *mockScoreRepo) TopTrending(ctx context.Context, itemType string, limit int) ([]TrendingSnapshot, error) {
	return nil, nil
}

func (m *mockScoreRepo) TrendScoresFor(ctx context.Context, itemType string, itemIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	return nil, nil
}

func (m *mockScoreRepo) AppendHistory(ctx context.Context, rows []TrendingHistory) error {
	return nil
}

func (m *mockScoreRepo) SnapshotsCalculatedBefore(ctx context.Context, itemType string, cutoff time.Time, limit int) ([]TrendingSnapshot, error) {
	return nil, nil
}

// mockInteractions serves canned aggregates.
type mockInteractions struct {
	userSets    map[uuid.UUID][]uuid.UUID
	typeCounts  []interaction.TypeCount
	todayCount  int64
	priorCount  int64
	hourBuckets []interaction.HourBucket
}

func (m *mockInteractions) Create(ctx context.Context, event *interaction.InteractionEvent) error {
	return nil
}

func (m *mockInteractions) CountByTypeSince(ctx context.Context, businessID uuid.UUID, since time.Time) ([]interaction.TypeCount, error) {
	return m.typeCounts, nil
}

func (m *mockInteractions) CountInRange(ctx context.Context, businessID uuid.UUID, from, to time.Time) (int64, error) {
	// The trending job asks for today first, then yesterday.
	if !from.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		return m.todayCount, nil
	}
	return m.priorCount, nil
}

func (m *mockInteractions) HourlyBuckets(ctx context.Context, businessID uuid.UUID, since time.Time) ([]interaction.HourBucket, error) {
	return m.hourBuckets, nil
}

func (m *mockInteractions) DistinctUserIDs(ctx context.Context, businessID uuid.UUID) ([]uuid.UUID, error) {
	return m.userSets[businessID], nil
}

func (m *mockInteractions) DistinctUserIDsForBusinesses(ctx context.Context, businessIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	return m.userSets, nil
}

func (m *mockInteractions) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]interaction.InteractionEvent, error) {
	return nil, nil
}

func (m *mockInteractions) CountByTypeForUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]interaction.TypeCount, error) {
	return nil, nil
}

func (m *mockInteractions) TopCategoryIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockInteractions) RecentBusinessIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockInteractions) UserGeoCentroid(ctx context.Context, userID uuid.UUID) (float64, float64, bool, error) {
	return 0, 0, false, nil
}

func (m *mockInteractions) FunnelCounts(ctx context.Context, from, to time.Time) (map[interaction.ActionType]int64, error) {
	return nil, nil
}

func (m *mockInteractions) EngagementByUser(ctx context.Context, from, to time.Time, minInteractions int) ([]interaction.UserEngagement, error) {
	return nil, nil
}

func (m *mockInteractions) ActiveBusinessIDsSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	return nil, nil
}

// mockCatalogRepo serves a fixed business set.
type mockCatalogRepo struct {
	businesses map[uuid.UUID]*catalog.Business
	candidates []catalog.Business
}

func (m *mockCatalogRepo) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Business, error) {
	if b, ok := m.businesses[id]; ok {
		return b, nil
	}
	return nil, catalog.ErrBusinessNotFound
}

func (m *mockCatalogRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Business, error) {
	return nil, nil
}

func (m *mockCatalogRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.businesses[id]
	return ok, nil
}

func (m *mockCatalogRepo) FindCandidatesSharingCategories(ctx context.Context, categoryIDs []uuid.UUID, exclude uuid.UUID, limit int) ([]catalog.Business, error) {
	return m.candidates, nil
}

func (m *mockCatalogRepo) TopRatedApproved(ctx context.Context, area string, limit int) ([]catalog.Business, error) {
	return nil, nil
}

type mockSnapshotCache struct {
	patterns []string
	events   []*events.ProfileEvent
}

func (m *mockSnapshotCache) ClearByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func (m *mockSnapshotCache) PublishProfileEvent(ctx context.Context, event *events.ProfileEvent) error {
	m.events = append(m.events, event)
	return nil
}

func businessWith(cat catalog.Category, lat, lon float64) *catalog.Business {
	return &catalog.Business{
		ID:             uuid.New(),
		Latitude:       lat,
		Longitude:      lon,
		ApprovalStatus: catalog.ApprovalApproved,
		Categories:     []catalog.Category{cat},
	}
}

func TestSimilarityJobPrunesWeakEdges(t *testing.T) {
	sharedCat := catalog.Category{ID: uuid.New(), Name: "Restaurant", Slug: "restaurant"}
	otherCat := catalog.Category{ID: uuid.New(), Name: "Pharmacy", Slug: "pharmacy"}

	base := businessWith(sharedCat, 23.8103, 90.4125)
	// Same category and area versus nothing in common beyond 50 km.
	near := businessWith(sharedCat, 23.8110, 90.4130)
	far := businessWith(otherCat, 25.0, 92.0)

	scoreRepo := &mockScoreRepo{}
	interactions := &mockInteractions{userSets: map[uuid.UUID][]uuid.UUID{}}
	catalogRepo := &mockCatalogRepo{
		businesses: map[uuid.UUID]*catalog.Business{base.ID: base},
		candidates: []catalog.Business{*near, *far},
	}

	job := NewSimilarityJob(NewEngine(), scoreRepo, interactions, catalogRepo, zap.NewNop())
	require.NoError(t, job.Run(context.Background(), base.ID))

	assert.Equal(t, base.ID, scoreRepo.replacedFor)
	require.Len(t, scoreRepo.replaced, 1, "the weak pair is pruned")

	edge := scoreRepo.replaced[0]
	assert.Equal(t, near.ID, edge.SimilarBusinessID)
	// Full category and location overlap, no shared users:
	// 0.4*1.0 + 0.3*1.0 + 0.3*0 = 0.7
	assert.InDelta(t, 0.7, edge.Score, 0.001)
	assert.InDelta(t, 1.0, edge.CategoryScore, 0.001)
	assert.InDelta(t, 1.0, edge.LocationScore, 0.001)
	assert.InDelta(t, 0.0, edge.BehaviorScore, 0.001)
}

func TestSimilarityJobIsDeterministic(t *testing.T) {
	sharedCat := catalog.Category{ID: uuid.New(), Name: "Cafe", Slug: "cafe"}
	base := businessWith(sharedCat, 23.8103, 90.4125)
	other := businessWith(sharedCat, 23.8200, 90.4200)

	userA := uuid.New()
	userB := uuid.New()

	scoreRepo := &mockScoreRepo{}
	interactions := &mockInteractions{userSets: map[uuid.UUID][]uuid.UUID{
		base.ID:  {userA, userB},
		other.ID: {userB},
	}}
	catalogRepo := &mockCatalogRepo{
		businesses: map[uuid.UUID]*catalog.Business{base.ID: base},
		candidates: []catalog.Business{*other},
	}

	job := NewSimilarityJob(NewEngine(), scoreRepo, interactions, catalogRepo, zap.NewNop())

	require.NoError(t, job.Run(context.Background(), base.ID))
	first := append([]BusinessSimilarity(nil), scoreRepo.replaced...)

	require.NoError(t, job.Run(context.Background(), base.ID))
	second := scoreRepo.replaced

	assert.Equal(t, 2, scoreRepo.replaceCalls)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].SimilarBusinessID, second[0].SimilarBusinessID)
	assert.InDelta(t, first[0].Score, second[0].Score, 0.000001,
		"same inputs must produce the same score")
}

func TestSimilarityJobSkipsMissingBusiness(t *testing.T) {
	scoreRepo := &mockScoreRepo{}
	job := NewSimilarityJob(NewEngine(), scoreRepo, &mockInteractions{},
		&mockCatalogRepo{businesses: map[uuid.UUID]*catalog.Business{}}, zap.NewNop())

	// A business deleted after enqueue must not error the task into a retry.
	require.NoError(t, job.Run(context.Background(), uuid.New()))
	assert.Zero(t, scoreRepo.replaceCalls)
}

func TestTrendingJobWritesSnapshot(t *testing.T) {
	businessID := uuid.New()
	scoreRepo := &mockScoreRepo{}
	cacheMock := &mockSnapshotCache{}
	interactions := &mockInteractions{
		typeCounts: []interaction.TypeCount{
			{InteractionType: interaction.ActionView, Count: 100},
			{InteractionType: interaction.ActionFavorite, Count: 10},
		},
		todayCount: 30,
		priorCount: 20,
		hourBuckets: []interaction.HourBucket{
			{Hour: 0, Count: 30},
			{Hour: 1, Count: 20},
			{Hour: 2, Count: 10},
		},
	}

	job := NewTrendingJob(NewEngine(), scoreRepo, interactions, cacheMock, zap.NewNop())
	require.NoError(t, job.Run(context.Background(), businessID))

	require.Len(t, scoreRepo.snapshots, 1)
	snap := scoreRepo.snapshots[0]

	assert.Equal(t, ItemTypeBusiness, snap.ItemType)
	assert.Equal(t, businessID, snap.ItemID)
	// weighted = 100 + 30 = 130; growth = 0.5; velocity = 10
	// trend = 130*0.9 + 0.5*10 + 10*5 = 172
	assert.InDelta(t, 130.0, snap.WeightedScore, 0.001)
	assert.InDelta(t, 0.5, snap.GrowthRate, 0.001)
	assert.InDelta(t, 10.0, snap.Velocity, 0.001)
	assert.InDelta(t, 172.0, snap.TrendScore, 0.001)
	assert.Equal(t, int64(110), snap.TotalInteractions)
	assert.Equal(t, int64(30), snap.TodayInteractions)

	// Cached trending lists are dropped after the refresh.
	require.Len(t, cacheMock.patterns, 1)
	assert.Equal(t, "trending:*", cacheMock.patterns[0])
	require.Len(t, cacheMock.events, 1)
	assert.Equal(t, events.EventTypeTrendingUpdated, cacheMock.events[0].EventType)
}
