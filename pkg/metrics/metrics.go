package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moviecache_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// CacheLookups counts cache reads by outcome (hit|miss|stale|error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviecache_cache_lookups_total",
			Help: "Total number of movie cache lookups",
		},
		[]string{"result"},
	)

	// CacheWrites counts cache upserts by outcome (success|failure).
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviecache_cache_writes_total",
			Help: "Total number of movie cache writes",
		},
		[]string{"result"},
	)

	// UpstreamRequests counts OMDB calls by outcome (found|not_found|error).
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moviecache_upstream_requests_total",
			Help: "Total number of upstream movie API requests",
		},
		[]string{"result"},
	)

	// CachedMovies tracks stored rows split by freshness (fresh|stale).
	CachedMovies = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moviecache_cached_movies",
			Help: "Number of cached movies by freshness",
		},
		[]string{"state"},
	)
)
