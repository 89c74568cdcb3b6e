package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/moviecache/internal/app"
	"github.com/charlesng35/moviecache/internal/handlers"
	"github.com/charlesng35/moviecache/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	handler := handlers.NewHealthHandler(manager)

	if !cfg.Monitoring.Health.Enabled || !handler.Enabled() {
		registerHealthEndpoints(r, handlers.Disabled, handlers.Disabled, handlers.Disabled)
		registerHealthEndpoints(r.Group("/api"), handlers.Disabled, handlers.Disabled, handlers.Disabled)
		return
	}

	registerHealthEndpoints(r, handler.Summary, handler.Live, handler.Ready)
	registerHealthEndpoints(r.Group("/api"), handler.Summary, handler.Live, handler.Ready)
}

func registerHealthEndpoints(router gin.IRouter, summary, live, ready gin.HandlerFunc) {
	router.GET("/health", summary)
	router.GET("/health/live", live)
	router.GET("/health/ready", ready)
}
