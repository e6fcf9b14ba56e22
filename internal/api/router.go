package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/api/handlers"
	"github.com/haven-automation/haven-hub/internal/api/middleware"
	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/websocket"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, h *handlers.Handlers, logger *logrus.Logger, wsHub *websocket.Hub, promRegistry *prometheus.Registry) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.ErrorResponseMiddleware(logger))

	// Public endpoints
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))
	router.GET("/ws", websocket.HandleWebSocketGin(wsHub))

	api := router.Group("/api/v1")

	// Webhooks authenticate by ID possession, never by token
	api.POST("/webhook/:id", h.HandleWebhook)
	api.PUT("/webhook/:id", h.HandleWebhook)

	protected := api.Group("/")
	if cfg.Auth.Enabled {
		protected.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	}
	{
		entities := protected.Group("/entities")
		{
			entities.GET("", h.GetEntities)
			entities.GET("/:id", h.GetEntity)
			entities.POST("/:id/action", h.ExecuteEntityAction)
		}

		entries := protected.Group("/entries")
		{
			entries.GET("", h.GetEntries)
			entries.GET("/:id", h.GetEntry)
			entries.POST("/:id/reload", h.ReloadEntry)
			entries.DELETE("/:id", h.DeleteEntry)
		}

		flows := protected.Group("/flows")
		{
			flows.GET("", h.GetFlows)
			flows.POST("", h.StartFlow)
			flows.POST("/:flow_id", h.ConfigureFlow)
			flows.DELETE("/:flow_id", h.AbortFlow)
		}

		protected.GET("/devices", h.GetDevices)
		protected.GET("/domains", h.GetDomains)
		protected.GET("/adapters", h.GetAdapters)

		system := protected.Group("/system")
		{
			system.GET("/info", h.GetSystemInfo)
			system.GET("/stats", h.GetStats)
			system.GET("/backups", h.GetBackups)
			system.POST("/backups", h.CreateBackup)
		}
	}

	return router
}
