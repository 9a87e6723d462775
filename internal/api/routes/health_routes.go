package routes

import (
	"net/http"
	"time"

	"github.com/Naimur404/5str-backend-go/internal/infrastructure/cache"
	"github.com/Naimur404/5str-backend-go/internal/infrastructure/persistence/postgres/connection"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// SetupHealthRoutes registers the health, readiness and metrics endpoints.
// Liveness is unconditional; readiness verifies the database and Redis.
func SetupHealthRoutes(router *gin.Engine, db *connection.Database, redisClient *cache.RedisClient) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
		})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		checks := map[string]string{"database": "ok", "redis": "ok"}
		status := http.StatusOK

		if sqlDB, err := db.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
		if err := redisClient.HealthCheck(c.Request.Context()); err != nil {
			checks["redis"] = "unreachable"
			status = http.StatusServiceUnavailable
		}

		state := "ready"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, HealthResponse{
			Status:    state,
			Timestamp: time.Now().UTC(),
			Checks:    checks,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/metrics/cache", func(c *gin.Context) {
		c.JSON(http.StatusOK, redisClient.GetMetrics())
	})
}
