package checks

import (
	"context"
	"time"

	"github.com/charlesng35/moviecache/internal/monitoring"
)

const defaultMaintenanceMaxAge = 30 * time.Minute

// RunTracker exposes the outcome of the most recent background run.
type RunTracker interface {
	LastRun() (time.Time, error)
}

// Maintenance verifies that a background job ran successfully within maxAge.
// A zero maxAge selects a 30 minute window.
func Maintenance(name string, tracker RunTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if tracker == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "job not registered",
				Duration: time.Since(start),
			}
		}

		lastRun, err := tracker.LastRun()
		switch {
		case lastRun.IsZero():
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "pending first run",
				Duration: time.Since(start),
			}
		case err != nil:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		case time.Since(lastRun) > maxAge:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "stale run " + lastRun.UTC().Format(time.RFC3339),
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}
