package events

import (
	"time"

	"github.com/google/uuid"
)

// Personalization event types published on the cache channel.
const (
	EventTypeProfileInvalidate    = "profile_invalidate"
	EventTypeRecommendationWarmed = "recommendation_warmed"
	EventTypeTrendingUpdated      = "trending_updated"
	EventTypeSimilarityUpdated    = "similarity_updated"
)

// ProfileEvent signals that a user's cached personalization state changed.
// Consumers (other nodes, the recommendation warmer) react by dropping or
// rebuilding their cached views.
type ProfileEvent struct {
	EventType  string      `json:"event_type"`
	UserID     uuid.UUID   `json:"user_id"`
	BusinessID uuid.UUID   `json:"business_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Details    interface{} `json:"details,omitempty"`
}
