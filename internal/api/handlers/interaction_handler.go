package handlers

import (
	"errors"
	"net/http"

	"github.com/Naimur404/5str-backend-go/internal/api/dto"
	"github.com/Naimur404/5str-backend-go/internal/domain/catalog"
	"github.com/Naimur404/5str-backend-go/internal/domain/interaction"
	"github.com/gin-gonic/gin"
)

// InteractionHandler handles HTTP requests for interaction ingestion.
// Writes are acknowledged with 202: validation happens inline, persistence
// and the scoring fan-out run on the queue.
type InteractionHandler struct {
	service interaction.Service
}

// NewInteractionHandler creates a new InteractionHandler instance
func NewInteractionHandler(service interaction.Service) *InteractionHandler {
	return &InteractionHandler{service: service}
}

// Record accepts a single interaction.
func (h *InteractionHandler) Record(c *gin.Context) {
	var req dto.RecordInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID, err := h.service.Submit(c.Request.Context(), interaction.RecordInput{
		UserID:     req.UserID,
		BusinessID: req.BusinessID,
		Action:     interaction.ActionType(req.Action),
		Source:     req.Source,
		Context:    req.Context,
		Weight:     req.Weight,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.AcceptedResponse{TaskID: taskID, Status: "accepted"})
}

// RecordBatch accepts up to 50 interactions for one user.
func (h *InteractionHandler) RecordBatch(c *gin.Context) {
	var req dto.BatchInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]interaction.BatchItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = interaction.BatchItem{
			BusinessID: item.BusinessID,
			Action:     interaction.ActionType(item.Action),
			Source:     item.Source,
			Context:    item.Context,
			Weight:     item.Weight,
		}
	}

	taskID, err := h.service.SubmitBatch(c.Request.Context(), req.UserID, items)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.AcceptedResponse{TaskID: taskID, Status: "accepted"})
}

func (h *InteractionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrBusinessNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, interaction.ErrInvalidAction),
		errors.Is(err, interaction.ErrMissingUser),
		errors.Is(err, interaction.ErrEmptyBatch),
		errors.Is(err, interaction.ErrBatchTooLarge):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process interaction"})
	}
}
