package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Naimur404/5str-backend-go/internal/api/dto"
	"github.com/Naimur404/5str-backend-go/internal/domain/recommendation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RecommendationHandler handles HTTP requests for the personalization reads.
type RecommendationHandler struct {
	service recommendation.Service
}

// NewRecommendationHandler creates a new RecommendationHandler instance
func NewRecommendationHandler(service recommendation.Service) *RecommendationHandler {
	return &RecommendationHandler{service: service}
}

// Recommendations serves GET /api/recommendations.
func (h *RecommendationHandler) Recommendations(c *gin.Context) {
	var query dto.RecommendationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := uuid.Parse(query.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	results, err := h.service.Recommendations(c.Request.Context(), userID, query.Scenario, query.Limit)
	if err != nil {
		if errors.Is(err, recommendation.ErrUnknownScenario) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build recommendations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// Trending serves GET /api/trending.
func (h *RecommendationHandler) Trending(c *gin.Context) {
	var query dto.TrendingQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.service.Trending(c.Request.Context(), query.Area, query.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build trending list"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// Similar serves GET /api/businesses/:id/similar.
func (h *RecommendationHandler) Similar(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid business id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	results, err := h.service.Similar(c.Request.Context(), businessID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load similar businesses"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// Profile serves GET /api/users/:id/profile. The detail query switches
// between the fast and full variants.
func (h *RecommendationHandler) Profile(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if c.DefaultQuery("detail", "fast") == "full" {
		profile, err := h.service.ProfileFull(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build profile"})
			return
		}
		c.JSON(http.StatusOK, profile)
		return
	}

	profile, err := h.service.ProfileFast(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}
