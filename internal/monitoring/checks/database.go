package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/moviecache/internal/models"
	"github.com/charlesng35/moviecache/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a readiness probe that pings the database handle.
// A failed ping only degrades the service because cache reads fail open.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "database not configured",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return degraded(monitoring.ResultFromError("database", err, time.Since(start)))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return degraded(monitoring.ResultFromError("database", err, time.Since(start)))
		}

		if !db.WithContext(probeCtx).Migrator().HasTable(&models.CachedMovie{}) {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "movie_cache table missing",
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}

func degraded(result monitoring.ProbeResult) monitoring.ProbeResult {
	if result.Status == monitoring.StatusDown {
		result.Status = monitoring.StatusDegraded
	}
	return result
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
