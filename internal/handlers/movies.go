package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/moviecache/internal/middleware"
	apperrors "github.com/charlesng35/moviecache/pkg/errors"
	"github.com/charlesng35/moviecache/pkg/logger"
	"github.com/charlesng35/moviecache/pkg/response"
)

// MovieLookup resolves an identifier to a movie document.
type MovieLookup interface {
	Get(ctx context.Context, imdbID string) (json.RawMessage, error)
}

// MovieHandler serves GET /movies/:id.
type MovieHandler struct {
	svc MovieLookup
	log *zap.Logger
}

// NewMovieHandler constructs a MovieHandler.
func NewMovieHandler(svc MovieLookup) (*MovieHandler, error) {
	if svc == nil {
		return nil, errors.New("movie handler: service is required")
	}
	return &MovieHandler{svc: svc, log: logger.WithModule("movies")}, nil
}

// Get returns the movie document verbatim, or the JSON error envelope.
// Identifiers are forwarded untouched; upstream rejects malformed ones.
func (h *MovieHandler) Get(c *gin.Context) {
	id := c.Param("id")
	payload, err := h.svc.Get(requestContext(c), id)
	if err != nil {
		h.logFailure(c, id, err)
		response.Error(c, err)
		return
	}

	response.Raw(c, http.StatusOK, payload)
}

func (h *MovieHandler) logFailure(c *gin.Context, id string, err error) {
	fields := []zap.Field{
		zap.String("imdb_id", id),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	}

	if errors.Is(err, apperrors.ErrMovieNotFound) {
		h.log.Info("movie not found", fields...)
		return
	}
	h.log.Error("movie lookup failed", fields...)
}

// requestContext returns the request context, falling back to Background for bare test contexts.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
