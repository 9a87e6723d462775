package interaction

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionType classifies a single user action against a business.
type ActionType string

const (
	ActionView             ActionType = "view"
	ActionClick            ActionType = "click"
	ActionFavorite         ActionType = "favorite"
	ActionUnfavorite       ActionType = "unfavorite"
	ActionPhoneCall        ActionType = "phone_call"
	ActionShare            ActionType = "share"
	ActionReview           ActionType = "review"
	ActionCollectionAdd    ActionType = "collection_add"
	ActionCollectionRemove ActionType = "collection_remove"
	ActionOfferView        ActionType = "offer_view"
	ActionOfferUse         ActionType = "offer_use"
	ActionDirectionRequest ActionType = "direction_request"
	ActionWebsiteClick     ActionType = "website_click"
	ActionSearchClick      ActionType = "search_click"
	ActionVisit            ActionType = "visit"
	ActionSave             ActionType = "save"
)

// defaultWeights is the per-type ingestion weight applied when the caller
// does not supply one.
var defaultWeights = map[ActionType]float64{
	ActionView:             1.0,
	ActionClick:            1.5,
	ActionFavorite:         3.0,
	ActionUnfavorite:       0.5,
	ActionPhoneCall:        5.0,
	ActionShare:            3.5,
	ActionReview:           4.0,
	ActionCollectionAdd:    4.5,
	ActionCollectionRemove: 0.5,
	ActionOfferView:        1.2,
	ActionOfferUse:         4.0,
	ActionDirectionRequest: 2.5,
	ActionWebsiteClick:     1.8,
	ActionSearchClick:      1.3,
	ActionVisit:            2.0,
	ActionSave:             2.8,
}

// importantActions trigger similarity and trending recomputation. Distinct
// from highPriorityActions: importance-for-similarity and
// importance-for-caching are separate policy decisions.
var importantActions = map[ActionType]bool{
	ActionFavorite:      true,
	ActionPhoneCall:     true,
	ActionReview:        true,
	ActionCollectionAdd: true,
}

// highPriorityActions trigger a recommendation cache warm.
var highPriorityActions = map[ActionType]bool{
	ActionFavorite:      true,
	ActionPhoneCall:     true,
	ActionCollectionAdd: true,
	ActionOfferUse:      true,
}

// IsValid reports whether the action is a known type.
func (a ActionType) IsValid() bool {
	_, ok := defaultWeights[a]
	return ok
}

// DefaultWeight returns the ingestion weight for the action type.
func (a ActionType) DefaultWeight() float64 {
	if w, ok := defaultWeights[a]; ok {
		return w
	}
	return 1.0
}

// IsImportant reports whether the action triggers scoring recomputation.
func (a ActionType) IsImportant() bool {
	return importantActions[a]
}

// IsHighPriority reports whether the action triggers a cache warm.
func (a ActionType) IsHighPriority() bool {
	return highPriorityActions[a]
}

// Sources tagging degraded fallback records written when queue processing
// exhausts its retries. Events are never dropped silently.
const (
	SourceJobFallback   = "job_fallback"
	SourceBatchFallback = "batch_fallback"
)

// MaxBatchSize bounds a single RecordBatch call.
const MaxBatchSize = 50

// InteractionEvent is one timestamped user action against a business.
// Append-only: rows are never updated or deleted by this service.
type InteractionEvent struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_interaction_user,priority:1"`
	BusinessID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_interaction_business,priority:1"`
	InteractionType ActionType     `gorm:"type:varchar(30);not null;index"`
	Source          string         `gorm:"size:50"`
	Weight          float64        `gorm:"not null;default:1"`
	Context         datatypes.JSON `gorm:"type:jsonb"`
	Latitude        *float64       `gorm:"default:null"`
	Longitude       *float64       `gorm:"default:null"`
	CreatedAt       time.Time      `gorm:"not null;default:current_timestamp;index:idx_interaction_user,priority:2;index:idx_interaction_business,priority:2"`
}

// TableName specifies the table name for the InteractionEvent model
func (InteractionEvent) TableName() string {
	return "interaction_events"
}

// BeforeCreate is called before creating a new interaction record
func (e *InteractionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// RecordInput is the ingestion payload for a single interaction.
type RecordInput struct {
	UserID     uuid.UUID              `json:"user_id"`
	BusinessID uuid.UUID              `json:"business_id"`
	Action     ActionType             `json:"action"`
	Source     string                 `json:"source,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Weight     *float64               `json:"weight,omitempty"`
	Latitude   *float64               `json:"latitude,omitempty"`
	Longitude  *float64               `json:"longitude,omitempty"`
}

// BatchItem is one entry of a RecordBatch call.
type BatchItem struct {
	BusinessID uuid.UUID              `json:"business_id"`
	Action     ActionType             `json:"action"`
	Source     string                 `json:"source,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Weight     *float64               `json:"weight,omitempty"`
}

// BatchResult summarizes a processed batch.
type BatchResult struct {
	Recorded int      `json:"recorded"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// HourBucket is an (elapsed-hour, count) pair over the trailing 24h window,
// input to the velocity regression.
type HourBucket struct {
	Hour  int
	Count int64
}

// TypeCount pairs an interaction type with an aggregate count.
type TypeCount struct {
	InteractionType ActionType
	Count           int64
}

// UserEngagement is the per-user aggregate the analytics rollup consumes.
type UserEngagement struct {
	UserID           uuid.UUID
	TotalCount       int64
	UniqueBusinesses int64
	ActiveDays       int64
	HighValueCount   int64
}
