package routes

import (
	"github.com/Naimur404/5str-backend-go/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

type InteractionRoutes struct {
	handler *handlers.InteractionHandler
}

func NewInteractionRoutes(handler *handlers.InteractionHandler) *InteractionRoutes {
	return &InteractionRoutes{handler: handler}
}

// RegisterRoutes registers the ingestion endpoints
func (r *InteractionRoutes) RegisterRoutes(router *gin.Engine) {
	interactions := router.Group("/api/interactions")

	interactions.POST("", r.handler.Record)
	interactions.POST("/batch", r.handler.RecordBatch)
}
