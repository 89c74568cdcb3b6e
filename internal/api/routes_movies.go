package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/moviecache/internal/handlers"
)

// registerMovieRoutes mounts the lookup at /movies and at the legacy /api/movies path.
func registerMovieRoutes(r *gin.Engine, handler *handlers.MovieHandler) {
	r.GET("/movies/:id", handler.Get)
	r.GET("/api/movies/:id", handler.Get)
}
