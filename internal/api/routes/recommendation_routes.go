package routes

import (
	"github.com/Naimur404/5str-backend-go/internal/api/handlers"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

type RecommendationRoutes struct {
	handler   *handlers.RecommendationHandler
	analytics *handlers.AnalyticsHandler
}

func NewRecommendationRoutes(handler *handlers.RecommendationHandler, analytics *handlers.AnalyticsHandler) *RecommendationRoutes {
	return &RecommendationRoutes{handler: handler, analytics: analytics}
}

// RegisterRoutes registers the personalization read endpoints. List
// responses get gzip; they are the largest payloads the service serves.
func (r *RecommendationRoutes) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/recommendations", gzip.Gzip(gzip.DefaultCompression), r.handler.Recommendations)
	api.GET("/trending", gzip.Gzip(gzip.DefaultCompression), r.handler.Trending)
	api.GET("/businesses/:id/similar", gzip.Gzip(gzip.DefaultCompression), r.handler.Similar)
	api.GET("/users/:id/profile", r.handler.Profile)

	api.GET("/analytics/reports", r.analytics.Reports)
}
