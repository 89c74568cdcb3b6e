package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charlesng35/moviecache/internal/models"
)

// MovieStore persists upstream payloads keyed by IMDb identifier.
type MovieStore interface {
	// Get returns the stored row, or nil when the identifier has never been cached.
	Get(ctx context.Context, imdbID string) (*models.CachedMovie, error)
	// Upsert inserts or replaces the row for imdbID, stamping it with at.
	Upsert(ctx context.Context, imdbID string, payload json.RawMessage, at time.Time) error
	// CountByFreshness splits the table into rows updated after cutoff and the rest.
	CountByFreshness(ctx context.Context, cutoff time.Time) (fresh int64, stale int64, err error)
}
