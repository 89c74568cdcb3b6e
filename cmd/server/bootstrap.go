package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/moviecache/internal/api"
	"github.com/charlesng35/moviecache/internal/app"
	"github.com/charlesng35/moviecache/internal/app/maintenance"
	"github.com/charlesng35/moviecache/internal/cache"
	"github.com/charlesng35/moviecache/internal/database"
	"github.com/charlesng35/moviecache/internal/monitoring"
	"github.com/charlesng35/moviecache/internal/monitoring/checks"
	"github.com/charlesng35/moviecache/internal/omdb"
	"github.com/charlesng35/moviecache/internal/services"
	"github.com/charlesng35/moviecache/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Store    cache.MovieStore
	Movies   *services.MovieService
	Reporter *maintenance.StatsReporter
	Health   *monitoring.HealthManager
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, upstream client, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	switch {
	case errors.Is(err, database.ErrUnsupportedDriver):
		return nil, err
	case err != nil:
		// Lookups fail open to the upstream; readiness reports the missing store.
		log.Warn("cache store unavailable, serving from upstream only", zap.Error(err))
	default:
		stack.Store = cache.NewDatabaseStore(stack.DB)
	}

	client := omdb.NewClient(cfg.OMDB.BaseURL, cfg.OMDB.APIKey, omdb.WithTimeout(cfg.OMDB.Timeout))

	stack.Movies, err = services.NewMovieService(stack.Store, client, services.WithCacheTTL(cfg.Cache.TTL))
	if err != nil {
		return nil, fmt.Errorf("initialise movie service: %w", err)
	}

	stack.Health = monitoring.NewHealthManager()
	stack.Health.RegisterReadiness(checks.Database(stack.DB, 0))

	if cfg.Monitoring.Stats.Enabled && stack.Store != nil {
		stack.Reporter = maintenance.NewStatsReporter(stack.Store,
			maintenance.WithTTL(cfg.Cache.TTL),
			maintenance.WithSchedule(cfg.Monitoring.Stats.Schedule),
		)
		if err := stack.Reporter.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		if _, err := stack.Reporter.RunOnce(ctx); err != nil {
			log.Warn("initial cache stats run failed", zap.Error(err))
		}
		stack.Health.RegisterLiveness(checks.Maintenance("cache_stats", stack.Reporter, 0))
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config: cfg,
		Movies: stack.Movies,
		Health: stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources. Failures are logged.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if err := s.close(ctx); err != nil {
		log.Warn("runtime shutdown", zap.Error(err))
	}
}

func (s *runtimeStack) close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Reporter != nil {
		select {
		case <-s.Reporter.Stop().Done():
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("stop maintenance jobs: %w", ctx.Err()))
		}
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
	}

	return errs
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db.WithContext(ctx)); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
