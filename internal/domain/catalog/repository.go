package catalog

import (
	"context"
	"errors"

	"github.com/Naimur404/5str-backend-go/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBusinessNotFound = errors.New("business not found")
)

// Repository is the read-side port over the business catalog. The catalog is
// owned by the listing service; this module only queries it.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Business, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Business, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// FindCandidatesSharingCategories returns up to limit approved
	// businesses sharing at least one of the given categories, excluding
	// the given business. Sampling bound, not a completeness guarantee.
	FindCandidatesSharingCategories(ctx context.Context, categoryIDs []uuid.UUID, exclude uuid.UUID, limit int) ([]Business, error)

	// TopRatedApproved returns approved businesses ordered by rating, for
	// recommendation fallbacks when no trend data exists.
	TopRatedApproved(ctx context.Context, area string, limit int) ([]Business, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Business, error) {
	var business Business
	result := r.db.WithContext(ctx).Preload("Categories").First(&business, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, result.Error
	}
	return &business, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Business, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var businesses []Business
	err := r.db.WithContext(ctx).
		Preload("Categories").
		Where("id IN ?", ids).
		Find(&businesses).Error
	return businesses, err
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Business{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindCandidatesSharingCategories(ctx context.Context, categoryIDs []uuid.UUID, exclude uuid.UUID, limit int) ([]Business, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var businesses []Business
	err := r.db.WithContext(ctx).
		Preload("Categories").
		Joins("JOIN business_categories bc ON bc.business_id = businesses.id").
		Where("bc.category_id IN ?", categoryIDs).
		Where("businesses.id <> ?", exclude).
		Where("businesses.approval_status = ?", ApprovalApproved).
		Group("businesses.id").
		Limit(limit).
		Find(&businesses).Error
	return businesses, err
}

func (r *repository) TopRatedApproved(ctx context.Context, area string, limit int) ([]Business, error) {
	query := r.db.WithContext(ctx).
		Preload("Categories").
		Where("approval_status = ?", ApprovalApproved)

	if area != "" {
		query = query.Where("location_area = ?", area)
	}

	var businesses []Business
	err := query.Order("rating DESC, review_count DESC").
		Limit(limit).
		Find(&businesses).Error
	return businesses, err
}
