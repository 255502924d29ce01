package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/stablebridge/bridge_service/internal/api/handlers"
	"github.com/stablebridge/bridge_service/internal/api/middleware"
	"github.com/stablebridge/bridge_service/internal/infrastructure/di"
	"github.com/stablebridge/bridge_service/pkg/tracing"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	if container.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(container.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	coreHandlers := handlers.NewCoreHandlers(container.DB, container.Logger)
	transferHandlers := handlers.NewTransferHandlers(container.Orchestrator, container.Logger.Zap())

	router.GET("/health", coreHandlers.Health)
	router.GET("/live", coreHandlers.Live)
	router.GET("/metrics", coreHandlers.Metrics)

	v1 := router.Group("/api/v1")
	{
		transfers := v1.Group("/transfers")
		{
			transfers.POST("", transferHandlers.Submit)
			transfers.GET("/:id", transferHandlers.Get)
			transfers.GET("/:id/events", transferHandlers.Events)
			transfers.POST("/:id/resume", transferHandlers.Resume)
			transfers.POST("/:id/cancel", transferHandlers.Cancel)
		}
	}

	return router
}
