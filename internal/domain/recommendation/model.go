package recommendation

import (
	"time"

	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/google/uuid"
)

// Ranking scenarios accepted by the read API.
const (
	ScenarioPersonalized = "personalized"
	ScenarioTrending     = "trending"
	ScenarioSimilar      = "similar"
)

// Default result size when the caller does not specify one.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// UserProfileFast is the lightweight interaction profile: enough to rank,
// cheap to rebuild. Cached under a short TTL and invalidated on every write.
type UserProfileFast struct {
	UserID            uuid.UUID   `json:"user_id"`
	TopCategoryIDs    []uuid.UUID `json:"top_category_ids"`
	RecentBusinessIDs []uuid.UUID `json:"recent_business_ids"`
	CentroidLat       *float64    `json:"centroid_lat,omitempty"`
	CentroidLon       *float64    `json:"centroid_lon,omitempty"`
	GeneratedAt       time.Time   `json:"generated_at"`
}

// HasSignal reports whether the profile carries enough interaction history
// to personalize on. Without signal the ranking falls back to trending.
func (p *UserProfileFast) HasSignal() bool {
	return len(p.TopCategoryIDs) > 0 || len(p.RecentBusinessIDs) > 0
}

// UserProfileFull extends the fast profile with per-type counts and the raw
// recent event trail, for clients that render activity detail.
type UserProfileFull struct {
	UserProfileFast
	CountsByType map[interaction.ActionType]int64 `json:"counts_by_type"`
	RecentEvents []interaction.InteractionEvent   `json:"recent_events"`
}

// RankedBusiness is one entry of a ranked result list. Reason names the
// signal that put it there, for client display and offline evaluation.
type RankedBusiness struct {
	Business catalog.Business `json:"business"`
	Score    float64          `json:"score"`
	Reason   string           `json:"reason"`
}

// Ranking reasons.
const (
	ReasonTrending = "trending"
	ReasonSimilar  = "similar_to_visited"
	ReasonTopRated = "top_rated"
	ReasonPersonal = "personalized"
)
