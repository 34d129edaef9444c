package http

import (
	"github.com/gin-gonic/gin"

	"github.com/shelfmatch/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", handler.StartRun)
			runs.GET("/:id", handler.GetRun)
			runs.GET("/:id/decisions", handler.GetRunDecisions)
			runs.GET("/:id/events", handler.StreamRun)
			runs.POST("/:id/stop", handler.StopRun)
		}

		v1.POST("/match", handler.MatchItem)
	}

	return router
}
