package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/charlesng35/moviecache/internal/api"
	"github.com/charlesng35/moviecache/internal/app"
	"github.com/charlesng35/moviecache/internal/cache"
	sharedtestutil "github.com/charlesng35/moviecache/internal/database/testutil"
	"github.com/charlesng35/moviecache/internal/monitoring"
	"github.com/charlesng35/moviecache/internal/monitoring/checks"
	"github.com/charlesng35/moviecache/internal/omdb"
	"github.com/charlesng35/moviecache/internal/services"
	"github.com/charlesng35/moviecache/pkg/logger"
	"github.com/charlesng35/moviecache/pkg/response"
)

// TestAPIKey is the key the fake upstream expects.
const TestAPIKey = "test-api-key"

// Clock is a settable time source shared by the service under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database and
// a fake OMDb server for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Config   *app.Config
	Upstream *httptest.Server
	Clock    *Clock
	Logs     *observer.ObservedLogs

	upstreamCalls atomic.Int64
	mu            sync.RWMutex
	movies        map[string]string
}

// Option customises NewEnv.
type Option func(*envOptions)

type envOptions struct {
	configure func(*app.Config)
	store     cache.MovieStore
}

// WithConfig mutates the configuration before the router is built.
func WithConfig(fn func(*app.Config)) Option {
	return func(o *envOptions) {
		o.configure = fn
	}
}

// WithStore replaces the database-backed cache store.
func WithStore(store cache.MovieStore) Option {
	return func(o *envOptions) {
		o.store = store
	}
}

// NewEnv provisions a fresh handler test environment. It replaces the global
// logger with an observer for the duration of the test, so callers must not run
// in parallel.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.Replace(zap.New(core)))

	env := &Env{
		T:      t,
		DB:     sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate()),
		Clock:  &Clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		Logs:   logs,
		movies: make(map[string]string),
	}

	env.Upstream = httptest.NewServer(http.HandlerFunc(env.serveUpstream))
	t.Cleanup(env.Upstream.Close)

	cfg := &app.Config{
		Server: app.ServerConfig{
			Port: 5000,
			CORS: app.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Database: app.DatabaseConfig{Driver: "sqlite"},
		OMDB: app.OMDBConfig{
			APIKey:  TestAPIKey,
			BaseURL: env.Upstream.URL,
			Timeout: 2 * time.Second,
		},
		Cache: app.CacheConfig{TTL: services.DefaultCacheTTL},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	if options.configure != nil {
		options.configure(cfg)
	}
	env.Config = cfg

	var store cache.MovieStore = cache.NewDatabaseStore(env.DB)
	if options.store != nil {
		store = options.store
	}

	client := omdb.NewClient(cfg.OMDB.BaseURL, cfg.OMDB.APIKey, omdb.WithTimeout(cfg.OMDB.Timeout))
	svc, err := services.NewMovieService(store, client,
		services.WithCacheTTL(cfg.Cache.TTL),
		services.WithClock(env.Clock.Now),
	)
	require.NoError(t, err)

	health := monitoring.NewHealthManager()
	health.RegisterReadiness(checks.Database(env.DB, time.Second))

	router, err := api.NewRouter(api.Dependencies{
		Config: cfg,
		Movies: svc,
		Health: health,
	})
	require.NoError(t, err)
	env.Router = router

	return env
}

// AddMovie makes the fake upstream answer imdbID with body.
func (e *Env) AddMovie(imdbID, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.movies[imdbID] = body
}

// UpstreamCalls reports how many requests reached the fake upstream.
func (e *Env) UpstreamCalls() int {
	return int(e.upstreamCalls.Load())
}

// StopUpstream shuts the fake upstream down so lookups hit transport errors.
func (e *Env) StopUpstream() {
	e.Upstream.Close()
}

func (e *Env) serveUpstream(w http.ResponseWriter, r *http.Request) {
	e.upstreamCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Query().Get("apikey") != TestAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"Response":"False","Error":"Invalid API key!"}`))
		return
	}

	e.mu.RLock()
	body, ok := e.movies[r.URL.Query().Get("i")]
	e.mu.RUnlock()
	if !ok {
		_, _ = w.Write([]byte(`{"Response":"False","Error":"Movie not found!"}`))
		return
	}
	_, _ = w.Write([]byte(body))
}

// APIResponse represents the canonical API envelope returned on errors.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// Request executes a request against the test router.
func (e *Env) Request(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(method, path, nil)
	require.NoError(e.T, err)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
