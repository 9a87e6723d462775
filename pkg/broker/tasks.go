package broker

import "github.com/google/uuid"

// Task names dispatched through the queue lanes. Producers and consumers
// live in different domain packages, so the names and cross-package payloads
// are declared here on the transport.
const (
	TaskRecordInteraction      = "interactions.record"
	TaskRecordInteractionBatch = "interactions.record_batch"
	TaskComputeSimilarity      = "scoring.similarity"
	TaskComputeTrending        = "scoring.trending"
	TaskWarmRecommendations    = "recommendations.warm"
	TaskAnalyticsReport        = "analytics.report"
)

// SimilarityTaskPayload triggers similarity recomputation for one business.
type SimilarityTaskPayload struct {
	BusinessID uuid.UUID `json:"business_id"`
}

// TrendingTaskPayload triggers a trending snapshot refresh for one business.
// Action records which interaction type caused the refresh; it is carried
// for logging only.
type TrendingTaskPayload struct {
	BusinessID uuid.UUID `json:"business_id"`
	Action     string    `json:"action,omitempty"`
}

// WarmTaskPayload triggers a recommendation cache warm for one user.
type WarmTaskPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason,omitempty"`
}

// ReportTaskPayload triggers an analytics rollup over the named trailing
// timeframe: "1h", "24h", "7d" or "30d".
type ReportTaskPayload struct {
	Window string `json:"window"`
}
