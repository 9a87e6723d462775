package interaction

import (
	"context"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
)

// Repository persists and aggregates the append-only interaction log.
type Repository interface {
	Create(ctx context.Context, event *InteractionEvent) error

	// Per-business aggregates consumed by the trending job.
	CountByTypeSince(ctx context.Context, businessID uuid.UUID, since time.Time) ([]TypeCount, error)
	CountInRange(ctx context.Context, businessID uuid.UUID, from, to time.Time) (int64, error)
	HourlyBuckets(ctx context.Context, businessID uuid.UUID, since time.Time) ([]HourBucket, error)

	// Behavior sets consumed by the similarity job.
	DistinctUserIDs(ctx context.Context, businessID uuid.UUID) ([]uuid.UUID, error)
	DistinctUserIDsForBusinesses(ctx context.Context, businessIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)

	// Per-user reads consumed by the profile builder.
	RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]InteractionEvent, error)
	CountByTypeForUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]TypeCount, error)
	TopCategoryIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error)
	RecentBusinessIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error)
	UserGeoCentroid(ctx context.Context, userID uuid.UUID) (lat, lon float64, ok bool, err error)

	// Population aggregates consumed by the analytics rollup.
	FunnelCounts(ctx context.Context, from, to time.Time) (map[ActionType]int64, error)
	EngagementByUser(ctx context.Context, from, to time.Time, minInteractions int) ([]UserEngagement, error)

	// ActiveBusinessIDsSince lists businesses with any interaction since
	// the cutoff, for the scheduled trending refresh.
	ActiveBusinessIDsSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *InteractionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) CountByTypeSince(ctx context.Context, businessID uuid.UUID, since time.Time) ([]TypeCount, error) {
	var results []TypeCount
	err := r.db.WithContext(ctx).Model(&InteractionEvent{}).
		Select("interaction_type, count(*) as count").
		Where("business_id = ? AND created_at >= ?", businessID, since).
		Group("interaction_type").
		Find(&results).Error
	return results, err
}

func (r *repository) CountInRange(ctx context.Context, businessID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&InteractionEvent{}).
		Where("business_id = ? AND created_at >= ? AND created_at < ?", businessID, from, to).
		Count(&count).Error
	return count, err
}

// HourlyBuckets groups the trailing window by elapsed hour before now
// (0 = the most recent hour). Buckets with no events are absent.
func (r *repository) HourlyBuckets(ctx context.Context, businessID uuid.UUID, since time.Time) ([]HourBucket, error) {
	var results []HourBucket

	query := `
		SELECT
			FLOOR(EXTRACT(EPOCH FROM (NOW() AT TIME ZONE 'UTC' - created_at)) / 3600)::int AS hour,
			COUNT(*) AS count
		FROM interaction_events
		WHERE business_id = ? AND created_at >= ?
		GROUP BY 1
		ORDER BY 1
	`

	err := r.db.WithContext(ctx).Raw(query, businessID, since).Scan(&results).Error
	return results, err
}

func (r *repository) DistinctUserIDs(ctx context.Context, businessID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&InteractionEvent{}).
		Distinct("user_id").
		Where("business_id = ?", businessID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *repository) DistinctUserIDsForBusinesses(ctx context.Context, businessIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	if len(businessIDs) == 0 {
		return map[uuid.UUID][]uuid.UUID{}, nil
	}

	var rows []struct {
		BusinessID uuid.UUID
		UserID     uuid.UUID
	}
	err := r.db.WithContext(ctx).Model(&InteractionEvent{}).
		Select("DISTINCT business_id, user_id").
		Where("business_id IN ?", businessIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sets := make(map[uuid.UUID][]uuid.UUID, len(businessIDs))
	for _, row := range rows {
		sets[row.BusinessID] = append(sets[row.BusinessID], row.UserID)
	}
	return sets, nil
}

func (r *repository) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]InteractionEvent, error) {
	var events []InteractionEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *repository) CountByTypeForUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]TypeCount, error) {
	var results []TypeCount
	err := r.db.WithContext(ctx).Model(&InteractionEvent{}).
		Select("interaction_type, count(*) as count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("interaction_type").
		Find(&results).Error
	return results, err
}

func (r *repository) TopCategoryIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	query := `
		SELECT bc.category_id
		FROM interaction_events ie
		JOIN business_categories bc ON bc.business_id = ie.business_id
		WHERE ie.user_id = ?
		GROUP BY bc.category_id
		ORDER BY SUM(ie.weight) DESC
		LIMIT ?
	`

	err := r.db.WithContext(ctx).Raw(query, userID, limit).Scan(&ids).Error
	return ids, err
}

func (r *repository) RecentBusinessIDsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	query := `
		SELECT business_id
		FROM interaction_events
		WHERE user_id = ?
		GROUP BY business_id
		ORDER BY MAX(created_at) DESC
		LIMIT ?
	`

	err := r.db.WithContext(ctx).Raw(query, userID, limit).Scan(&ids).Error
	return ids, err
}

func (r *repository) UserGeoCentroid(ctx context.Context, userID uuid.UUID) (float64, float64, bool, error) {
	var row struct {
		Lat   *float64
		Lon   *float64
		Count int64
	}

	err := r.db.WithContext(ctx).Model(&InteractionEvent{}).
		Select("AVG(latitude) as lat, AVG(longitude) as lon, COUNT(latitude) as count").
		Where("user_id = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", userID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, false, err
	}
	if row.Count == 0 || row.Lat == nil || row.Lon == nil {
		return 0, 0, false, nil
	}
	return *row.Lat, *row.Lon, true, nil
}

func (r *repository) FunnelCounts(ctx context.Context, from, to time.Time) (map[ActionType]int64, error) {
	var results []TypeCount
	err := r.db.WithContext(ctx).Model(&InteractionEvent{}).
		Select("interaction_type, count(*) as count").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("interaction_type").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[ActionType]int64, len(results))
	for _, row := range results {
		counts[row.InteractionType] = row.Count
	}
	return counts, nil
}

func (r *repository) EngagementByUser(ctx context.Context, from, to time.Time, minInteractions int) ([]UserEngagement, error) {
	var results []UserEngagement

	query := `
		SELECT
			user_id,
			COUNT(*) AS total_count,
			COUNT(DISTINCT business_id) AS unique_businesses,
			COUNT(DISTINCT DATE(created_at)) AS active_days,
			COUNT(*) FILTER (WHERE interaction_type IN ('favorite', 'phone_call', 'review', 'collection_add', 'offer_use')) AS high_value_count
		FROM interaction_events
		WHERE created_at >= ? AND created_at < ?
		GROUP BY user_id
		HAVING COUNT(*) >= ?
	`

	err := r.db.WithContext(ctx).Raw(query, from, to, minInteractions).Scan(&results).Error
	return results, err
}

func (r *repository) ActiveBusinessIDsSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	query := `
		SELECT business_id
		FROM interaction_events
		WHERE created_at >= ?
		GROUP BY business_id
		ORDER BY COUNT(*) DESC
		LIMIT ?
	`

	err := r.db.WithContext(ctx).Raw(query, since, limit).Scan(&ids).Error
	return ids, err
}
