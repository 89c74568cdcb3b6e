package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/moviecache/internal/cache"
	"github.com/charlesng35/moviecache/internal/omdb"
	appErrors "github.com/charlesng35/moviecache/pkg/errors"
	"github.com/charlesng35/moviecache/pkg/logger"
	"github.com/charlesng35/moviecache/pkg/metrics"
)

// DefaultCacheTTL is how long a cached payload is served before it is refetched.
const DefaultCacheTTL = 7 * 24 * time.Hour

// MovieFetcher retrieves a movie document from the upstream API.
type MovieFetcher interface {
	FetchMovie(ctx context.Context, imdbID string) (json.RawMessage, error)
}

// MovieServiceOption customises a MovieService.
type MovieServiceOption func(*MovieService)

// WithCacheTTL overrides the freshness window.
func WithCacheTTL(ttl time.Duration) MovieServiceOption {
	return func(s *MovieService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for freshness checks and write timestamps.
func WithClock(now func() time.Time) MovieServiceOption {
	return func(s *MovieService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithServiceLogger overrides the service logger.
func WithServiceLogger(log *zap.Logger) MovieServiceOption {
	return func(s *MovieService) {
		if log != nil {
			s.log = log
		}
	}
}

// MovieService serves movie documents from the cache, falling back to upstream.
type MovieService struct {
	store   cache.MovieStore
	fetcher MovieFetcher
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewMovieService wires the cache store and upstream fetcher. The store may be nil,
// in which case every lookup goes upstream.
func NewMovieService(store cache.MovieStore, fetcher MovieFetcher, opts ...MovieServiceOption) (*MovieService, error) {
	if fetcher == nil {
		return nil, errors.New("movie service: fetcher is required")
	}

	svc := &MovieService{
		store:   store,
		fetcher: fetcher,
		ttl:     DefaultCacheTTL,
		now:     time.Now,
		log:     logger.WithModule("movies"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Get returns the movie document for imdbID. A fresh cache row is returned as is;
// otherwise upstream is queried and a successful result is written back.
// Upstream failures surface as appErrors.ErrMovieNotFound.
func (s *MovieService) Get(ctx context.Context, imdbID string) (json.RawMessage, error) {
	if s == nil {
		return nil, errors.New("movie service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if payload, ok := s.lookup(ctx, imdbID); ok {
		return payload, nil
	}

	payload, err := s.fetcher.FetchMovie(ctx, imdbID)
	if err != nil {
		if errors.Is(err, omdb.ErrNotFound) {
			return nil, appErrors.ErrMovieNotFound.WithInternal(err)
		}
		return nil, appErrors.ErrInternalServer.WithInternal(err)
	}

	s.writeBack(ctx, imdbID, payload)
	return payload, nil
}

// lookup reports a usable cached payload. Store failures count as a miss.
func (s *MovieService) lookup(ctx context.Context, imdbID string) (json.RawMessage, bool) {
	if s.store == nil {
		return nil, false
	}

	entry, err := s.store.Get(ctx, imdbID)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("cache read failed",
			zap.String("imdb_id", imdbID),
			zap.Error(err),
		)
		return nil, false
	case entry == nil:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	case !entry.IsFresh(s.now(), s.ttl):
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return json.RawMessage(entry.Data), true
}

// writeBack writes the payload back. Failures are logged and otherwise ignored.
// The write ignores caller cancellation.
func (s *MovieService) writeBack(ctx context.Context, imdbID string, payload json.RawMessage) {
	if s.store == nil {
		return
	}

	if err := s.store.Upsert(context.WithoutCancel(ctx), imdbID, payload, s.now()); err != nil {
		metrics.CacheWrites.WithLabelValues("failure").Inc()
		s.log.Warn("cache write failed",
			zap.String("imdb_id", imdbID),
			zap.Error(err),
		)
		return
	}
	metrics.CacheWrites.WithLabelValues("success").Inc()
}
