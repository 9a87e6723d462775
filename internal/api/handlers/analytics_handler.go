package handlers

import (
	"net/http"
	"strconv"

	"github.com/Naimur404/5str-backend-go/internal/domain/analytics"
	"github.com/gin-gonic/gin"
)

// AnalyticsHandler exposes the materialized metric events.
type AnalyticsHandler struct {
	repo analytics.Repository
}

// NewAnalyticsHandler creates a new AnalyticsHandler instance
func NewAnalyticsHandler(repo analytics.Repository) *AnalyticsHandler {
	return &AnalyticsHandler{repo: repo}
}

// Reports serves GET /api/analytics/reports.
func (h *AnalyticsHandler) Reports(c *gin.Context) {
	timeframe := c.DefaultQuery("timeframe", analytics.Timeframe24h)
	if _, ok := analytics.TimeframeDuration(timeframe); !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown timeframe"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "24"))

	events, err := h.repo.ListRecent(c.Request.Context(), timeframe, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
