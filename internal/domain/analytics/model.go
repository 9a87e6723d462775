package analytics

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Timeframes accepted by the rollup job. Each names a trailing window ending
// at the moment the job runs.
const (
	Timeframe1h  = "1h"
	Timeframe24h = "24h"
	Timeframe7d  = "7d"
	Timeframe30d = "30d"
)

var timeframeDurations = map[string]time.Duration{
	Timeframe1h:  time.Hour,
	Timeframe24h: 24 * time.Hour,
	Timeframe7d:  7 * 24 * time.Hour,
	Timeframe30d: 30 * 24 * time.Hour,
}

// TimeframeDuration resolves a timeframe name to its window length.
func TimeframeDuration(timeframe string) (time.Duration, bool) {
	d, ok := timeframeDurations[timeframe]
	return d, ok
}

// EventAnalyticsReport names the metric event rows written by the rollup job.
const EventAnalyticsReport = "analytics_report"

// MetricEvent is one append-only personalization metric record. Rows are
// written once and never mutated; two runs over the same window produce two
// rows with identical payloads apart from timestamps.
type MetricEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	EventName   string         `gorm:"size:40;not null;index"`
	Timeframe   string         `gorm:"size:10;not null;index"`
	PeriodStart time.Time      `gorm:"not null"`
	PeriodEnd   time.Time      `gorm:"not null;index"`
	EventData   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time      `gorm:"not null;default:current_timestamp"`
}

// TableName specifies the table name for the MetricEvent model
func (MetricEvent) TableName() string {
	return "personalization_metric_events"
}

// BeforeCreate is called before inserting a new metric event row
func (e *MetricEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ReportPayload is the event_data body of one rollup run: both aggregates
// over the same window, embedded together.
type ReportPayload struct {
	Funnel     FunnelPayload     `json:"funnel"`
	Engagement EngagementPayload `json:"engagement"`
}

// FunnelPayload holds per-type counts and the derived conversion ratios.
type FunnelPayload struct {
	Counts      map[string]int64 `json:"counts"`
	TotalEvents int64            `json:"total_events"`

	ViewToClick     float64 `json:"view_to_click"`
	ClickToFavorite float64 `json:"click_to_favorite"`
	ViewToCall      float64 `json:"view_to_call"`
	// OverallConversion is (favorites + calls) / views.
	OverallConversion float64 `json:"overall_conversion"`
}

// EngagementPayload summarizes per-user engagement across the window,
// restricted to users with enough in-window interactions.
type EngagementPayload struct {
	ActiveUsers       int64   `json:"active_users"`
	TotalInteractions int64   `json:"total_interactions"`
	AvgPerUser        float64 `json:"avg_per_user"`
	AvgUniqueBusiness float64 `json:"avg_unique_businesses"`
	AvgActiveDays     float64 `json:"avg_active_days"`
	// AvgEngagementScore averages each user's share of high-value actions.
	AvgEngagementScore float64 `json:"avg_engagement_score"`
	// HighEngagementRate is the share of active users whose engagement
	// score clears the high-engagement bar.
	HighEngagementRate float64 `json:"high_engagement_rate"`
}
