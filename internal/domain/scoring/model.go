package scoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemTypeBusiness is the only snapshot item type today. The column exists
// so trending can later cover offers and categories without a migration.
const ItemTypeBusiness = "business"

// BusinessSimilarity is one directed similarity edge. The full edge set for
// a business is replaced atomically on every recomputation, so component
// scores are always from the same run.
type BusinessSimilarity struct {
	BusinessID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SimilarBusinessID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Score             float64   `gorm:"not null;index"`
	CategoryScore     float64   `gorm:"not null"`
	LocationScore     float64   `gorm:"not null"`
	BehaviorScore     float64   `gorm:"not null"`
	CalculatedAt      time.Time `gorm:"not null"`
}

// TableName specifies the table name for the BusinessSimilarity model
func (BusinessSimilarity) TableName() string {
	return "business_similarities"
}

// TrendingSnapshot is the current trend state of one item, one mutable row
// per item upserted on every recomputation. History lives in TrendingHistory.
type TrendingSnapshot struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	ItemType          string    `gorm:"size:20;not null;uniqueIndex:idx_trending_item,priority:1"`
	ItemID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_trending_item,priority:2"`
	TrendScore        float64   `gorm:"not null;index"`
	WeightedScore     float64   `gorm:"not null"`
	GrowthRate        float64   `gorm:"not null"`
	Velocity          float64   `gorm:"not null"`
	TotalInteractions int64     `gorm:"not null"`
	TodayInteractions int64     `gorm:"not null"`
	CalculatedAt      time.Time `gorm:"not null"`
}

// TableName specifies the table name for the TrendingSnapshot model
func (TrendingSnapshot) TableName() string {
	return "trending_snapshots"
}

// BeforeCreate is called before inserting a new snapshot row
func (s *TrendingSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TrendingHistory is an append-only daily rollup of snapshot state, written
// by the scheduler. The composite key makes the rollup idempotent.
type TrendingHistory struct {
	ItemType          string    `gorm:"size:20;primaryKey"`
	ItemID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TimeWindow        string    `gorm:"size:10;primaryKey"`
	BucketDate        time.Time `gorm:"type:date;primaryKey"`
	TrendScore        float64   `gorm:"not null"`
	TotalInteractions int64     `gorm:"not null"`
}

// TableName specifies the table name for the TrendingHistory model
func (TrendingHistory) TableName() string {
	return "trending_history"
}

// Rollup windows for TrendingHistory rows.
const (
	WindowDaily = "daily"
)
