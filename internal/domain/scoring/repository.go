package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSnapshotNotFound = errors.New("trending snapshot not found")
)

// similarityBatchSize bounds a single insert statement when replacing an
// edge set.
const similarityBatchSize = 100

// Repository persists similarity edges and trending snapshots.
type Repository interface {
	// ReplaceSimilarities swaps the full edge set of a business in one
	// transaction, clearing edges where it appears on either side so stale
	// inbound edges from peers' earlier runs cannot outlive a recompute.
	// Readers never observe a partially updated set.
	ReplaceSimilarities(ctx context.Context, businessID uuid.UUID, edges []BusinessSimilarity) error
	TopSimilar(ctx context.Context, businessID uuid.UUID, limit int) ([]BusinessSimilarity, error)

	// UpsertSnapshot inserts or refreshes the current snapshot row for
	// (item_type, item_id).
	UpsertSnapshot(ctx context.Context, snapshot *TrendingSnapshot) error
	GetSnapshot(ctx context.Context, itemType string, itemID uuid.UUID) (*TrendingSnapshot, error)
	TopTrending(ctx context.Context, itemType string, limit int) ([]TrendingSnapshot, error)
	TrendScoresFor(ctx context.Context, itemType string, itemIDs []uuid.UUID) (map[uuid.UUID]float64, error)

	// AppendHistory writes daily rollup rows; replayed rollups are no-ops.
	AppendHistory(ctx context.Context, rows []TrendingHistory) error
	SnapshotsCalculatedBefore(ctx context.Context, itemType string, cutoff time.Time, limit int) ([]TrendingSnapshot, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

// similarityEdgeScope filters to every edge where businessID appears on
// either side of the pair.
func similarityEdgeScope(tx *gorm.DB, businessID uuid.UUID) *gorm.DB {
	return tx.Where("business_id = ? OR similar_business_id = ?", businessID, businessID)
}

func (r *repository) ReplaceSimilarities(ctx context.Context, businessID uuid.UUID, edges []BusinessSimilarity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := similarityEdgeScope(tx, businessID).
			Delete(&BusinessSimilarity{}).Error; err != nil {
			return err
		}
		if len(edges) == 0 {
			return nil
		}
		return tx.CreateInBatches(edges, similarityBatchSize).Error
	})
}

func (r *repository) TopSimilar(ctx context.Context, businessID uuid.UUID, limit int) ([]BusinessSimilarity, error) {
	if limit <= 0 {
		limit = 10
	}
	var edges []BusinessSimilarity
	err := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("score DESC").
		Limit(limit).
		Find(&edges).Error
	return edges, err
}

func (r *repository) UpsertSnapshot(ctx context.Context, snapshot *TrendingSnapshot) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_type"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"trend_score", "weighted_score", "growth_rate", "velocity",
			"total_interactions", "today_interactions", "calculated_at",
		}),
	}).Create(snapshot).Error
}

func (r *repository) GetSnapshot(ctx context.Context, itemType string, itemID uuid.UUID) (*TrendingSnapshot, error) {
	var snapshot TrendingSnapshot
	result := r.db.WithContext(ctx).
		Where("item_type = ? AND item_id = ?", itemType, itemID).
		First(&snapshot)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, result.Error
	}
	return &snapshot, nil
}

func (r *repository) TopTrending(ctx context.Context, itemType string, limit int) ([]TrendingSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	var snapshots []TrendingSnapshot
	err := r.db.WithContext(ctx).
		Where("item_type = ?", itemType).
		Order("trend_score DESC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}

func (r *repository) TrendScoresFor(ctx context.Context, itemType string, itemIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	if len(itemIDs) == 0 {
		return map[uuid.UUID]float64{}, nil
	}

	var rows []struct {
		ItemID     uuid.UUID
		TrendScore float64
	}
	err := r.db.WithContext(ctx).Model(&TrendingSnapshot{}).
		Select("item_id, trend_score").
		Where("item_type = ? AND item_id IN ?", itemType, itemIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	scores := make(map[uuid.UUID]float64, len(rows))
	for _, row := range rows {
		scores[row.ItemID] = row.TrendScore
	}
	return scores, nil
}

func (r *repository) AppendHistory(ctx context.Context, rows []TrendingHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).CreateInBatches(rows, similarityBatchSize).Error
}

func (r *repository) SnapshotsCalculatedBefore(ctx context.Context, itemType string, cutoff time.Time, limit int) ([]TrendingSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var snapshots []TrendingSnapshot
	err := r.db.WithContext(ctx).
		Where("item_type = ? AND calculated_at < ?", itemType, cutoff).
		Order("calculated_at ASC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}
