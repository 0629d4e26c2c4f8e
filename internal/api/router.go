// Package api exposes the operational HTTP surface: health probes,
// Prometheus metrics, manual backup triggers, result listings and
// scheduler introspection. Device administration lives elsewhere; this
// API never writes device rows.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/slinky-software/devicevault/internal/middleware"
	"github.com/slinky-software/devicevault/pkg/config"
)

// SetupRouter builds the Gin engine with all routes and middleware
func SetupRouter(
	healthHandler *HealthHandler,
	prometheusHandler *PrometheusHandler,
	backupHandler *BackupHandler,
	schedulerHandler *SchedulerHandler,
	pluginHandler *PluginHandler,
	eventsHandler *EventsHandler,
	cfg *config.Config,
) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.RateLimitMiddleware(middleware.GlobalRateLimiter))

	// Health check endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// Prometheus scrape endpoint
	router.GET("/metrics", prometheusHandler.MetricsEndpoint)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/devices/:id/backup",
			middleware.RateLimitMiddleware(middleware.TriggerRateLimiter),
			backupHandler.TriggerBackup)

		v1.GET("/results", backupHandler.ListResults)
		v1.GET("/stored-backups", backupHandler.ListStoredBackups)

		v1.GET("/scheduler/state", schedulerHandler.GetState)
		v1.GET("/scheduler/lock", schedulerHandler.GetLock)
		v1.DELETE("/scheduler/lock", schedulerHandler.ClearLock)

		v1.GET("/plugins", pluginHandler.ListPlugins)
		v1.GET("/events", eventsHandler.ListEvents)
	}

	return router
}
