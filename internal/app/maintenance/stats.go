// Package maintenance hosts background jobs that observe the movie cache.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/charlesng35/moviecache/internal/cache"
	"github.com/charlesng35/moviecache/pkg/logger"
	"github.com/charlesng35/moviecache/pkg/metrics"
)

const (
	defaultStatsSpec = "@every 5m"
	defaultTTL       = 7 * 24 * time.Hour
	runTimeout       = 30 * time.Second
)

// CacheStats is the outcome of one reporter run.
type CacheStats struct {
	Fresh int64
	Stale int64
}

// StatsReporter periodically counts fresh and stale cache rows and publishes them
// as gauges. It never deletes rows; expiry stays lazy at read time.
type StatsReporter struct {
	store    cache.MovieStore
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	ttl      time.Duration
	schedule string

	mu      sync.RWMutex
	lastRun time.Time
	lastErr error
}

// Option customises the StatsReporter.
type Option func(*StatsReporter)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(r *StatsReporter) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithNow overrides the clock used for freshness comparisons.
func WithNow(now func() time.Time) Option {
	return func(r *StatsReporter) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTTL sets the freshness window used to split rows.
func WithTTL(ttl time.Duration) Option {
	return func(r *StatsReporter) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithSchedule overrides the cron specification.
func WithSchedule(spec string) Option {
	return func(r *StatsReporter) {
		if spec != "" {
			r.schedule = spec
		}
	}
}

// WithLogger overrides the reporter logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *StatsReporter) {
		if log != nil {
			r.log = log
		}
	}
}

// NewStatsReporter constructs a reporter. A nil store disables the job.
func NewStatsReporter(store cache.MovieStore, opts ...Option) *StatsReporter {
	reporter := &StatsReporter{
		store:    store,
		now:      time.Now,
		ttl:      defaultTTL,
		schedule: defaultStatsSpec,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(reporter)
	}

	if reporter.cron == nil {
		reporter.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return reporter
}

// Start registers the job with the scheduler and launches it.
func (r *StatsReporter) Start() error {
	if r.store == nil {
		return nil
	}

	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("cache stats run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (r *StatsReporter) Stop() context.Context {
	if r.cron == nil {
		return context.Background()
	}
	return r.cron.Stop()
}

// RunOnce counts rows and updates the cached_movies gauge.
func (r *StatsReporter) RunOnce(ctx context.Context) (CacheStats, error) {
	if r.store == nil {
		return CacheStats{}, errors.New("maintenance: cache store not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now()
	fresh, stale, err := r.store.CountByFreshness(ctx, now.Add(-r.ttl))
	r.record(now, err)
	if err != nil {
		return CacheStats{}, fmt.Errorf("maintenance: count cached movies: %w", err)
	}

	metrics.CachedMovies.WithLabelValues("fresh").Set(float64(fresh))
	metrics.CachedMovies.WithLabelValues("stale").Set(float64(stale))

	r.log.Debug("cache stats",
		zap.Int64("fresh", fresh),
		zap.Int64("stale", stale),
	)
	return CacheStats{Fresh: fresh, Stale: stale}, nil
}

// LastRun reports when the job last ran and the error it returned, if any.
func (r *StatsReporter) LastRun() (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun, r.lastErr
}

func (r *StatsReporter) record(at time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRun = at
	r.lastErr = err
}
