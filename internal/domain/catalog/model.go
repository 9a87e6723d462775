package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval states for a business listing.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Business is the catalog read model the scoring pipeline consumes. Listing
// management (creation, moderation, media) lives outside this service; only
// the fields the jobs and recommendation reads need are mapped.
type Business struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Name           string     `gorm:"size:255;not null"`
	LocationArea   string     `gorm:"size:100;index"`
	Latitude       float64    `gorm:"not null"`
	Longitude      float64    `gorm:"not null"`
	ApprovalStatus string     `gorm:"size:20;not null;default:'pending';index"`
	Rating         float64    `gorm:"default:0;not null"`
	ReviewCount    int        `gorm:"default:0;not null"`
	Categories     []Category `gorm:"many2many:business_categories"`
	CreatedAt      time.Time  `gorm:"not null;default:current_timestamp"`
	UpdatedAt      time.Time  `gorm:"not null;default:current_timestamp;autoUpdateTime"`
}

// TableName specifies the table name for the Business model
func (Business) TableName() string {
	return "businesses"
}

// BeforeCreate is called before creating a new business record
func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Category is a business category.
type Category struct {
	ID   uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Name string    `gorm:"size:100;not null;unique"`
	Slug string    `gorm:"size:100;not null;unique"`
}

// TableName specifies the table name for the Category model
func (Category) TableName() string {
	return "categories"
}

// BusinessCategory is the join row between businesses and categories.
type BusinessCategory struct {
	BusinessID uuid.UUID `gorm:"type:uuid;primaryKey"`
	CategoryID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

// TableName specifies the table name for the join model
func (BusinessCategory) TableName() string {
	return "business_categories"
}

// CategoryIDs returns the ids of the business's categories.
func (b *Business) CategoryIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.Categories))
	for _, c := range b.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}
