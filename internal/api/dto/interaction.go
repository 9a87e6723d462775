package dto

import (
	"github.com/google/uuid"
)

// RecordInteractionRequest is the body of POST /api/interactions.
type RecordInteractionRequest struct {
	UserID     uuid.UUID              `json:"user_id" binding:"required"`
	BusinessID uuid.UUID              `json:"business_id" binding:"required"`
	Action     string                 `json:"action" binding:"required"`
	Source     string                 `json:"source,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Weight     *float64               `json:"weight,omitempty"`
	Latitude   *float64               `json:"latitude,omitempty"`
	Longitude  *float64               `json:"longitude,omitempty"`
}

// BatchInteractionItem is one entry of a batch request.
type BatchInteractionItem struct {
	BusinessID uuid.UUID              `json:"business_id" binding:"required"`
	Action     string                 `json:"action" binding:"required"`
	Source     string                 `json:"source,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Weight     *float64               `json:"weight,omitempty"`
}

// BatchInteractionRequest is the body of POST /api/interactions/batch.
type BatchInteractionRequest struct {
	UserID uuid.UUID              `json:"user_id" binding:"required"`
	Items  []BatchInteractionItem `json:"items" binding:"required,min=1,max=50"`
}

// AcceptedResponse acknowledges an enqueued write.
type AcceptedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}
