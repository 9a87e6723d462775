package analytics

import (
	"context"

	"github.com/Naimur404/5str-backend-go/internal/infrastructure/persistence/postgres/connection"
)

// Repository persists metric events. The log is append-only: rows are never
// updated or deleted by this service.
type Repository interface {
	Append(ctx context.Context, event *MetricEvent) error
	ListRecent(ctx context.Context, timeframe string, limit int) ([]MetricEvent, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Append(ctx context.Context, event *MetricEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListRecent(ctx context.Context, timeframe string, limit int) ([]MetricEvent, error) {
	if limit <= 0 {
		limit = 24
	}
	var events []MetricEvent
	query := r.db.WithContext(ctx).Where("event_name = ?", EventAnalyticsReport)
	if timeframe != "" {
		query = query.Where("timeframe = ?", timeframe)
	}
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
