package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/moviecache/internal/cache"
	testutil "github.com/charlesng35/moviecache/internal/database/testutil"
	"github.com/charlesng35/moviecache/internal/models"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*models.CachedMovie, error) { return nil, nil }

func (brokenStore) Upsert(context.Context, string, json.RawMessage, time.Time) error { return nil }

func (brokenStore) CountByFreshness(context.Context, time.Time) (int64, int64, error) {
	return 0, 0, errors.New("database is locked")
}

func TestStatsReporterRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)
	payload := json.RawMessage(`{"Title":"Movie","Response":"True"}`)

	require.NoError(t, store.Upsert(context.Background(), "tt0000001", payload, now.Add(-time.Hour)))
	require.NoError(t, store.Upsert(context.Background(), "tt0000002", payload, now.Add(-8*24*time.Hour)))
	require.NoError(t, store.Upsert(context.Background(), "tt0000003", payload, now.Add(-30*24*time.Hour)))

	reporter := NewStatsReporter(store, WithNow(func() time.Time { return now }))

	lastRun, err := reporter.LastRun()
	require.True(t, lastRun.IsZero())
	require.NoError(t, err)

	stats, err := reporter.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, CacheStats{Fresh: 1, Stale: 2}, stats)

	lastRun, err = reporter.LastRun()
	require.NoError(t, err)
	require.True(t, now.Equal(lastRun))

	var count int64
	require.NoError(t, db.Model(&models.CachedMovie{}).Count(&count).Error)
	require.EqualValues(t, 3, count, "reporter must never delete rows")
}

func TestStatsReporterCustomTTL(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(context.Background(), "tt0000001", json.RawMessage(`{}`), now.Add(-2*time.Hour)))

	reporter := NewStatsReporter(store,
		WithNow(func() time.Time { return now }),
		WithTTL(time.Hour),
	)

	stats, err := reporter.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, CacheStats{Fresh: 0, Stale: 1}, stats)
}

func TestStatsReporterRecordsFailures(t *testing.T) {
	reporter := NewStatsReporter(brokenStore{})

	_, err := reporter.RunOnce(context.Background())
	require.Error(t, err)

	lastRun, lastErr := reporter.LastRun()
	require.False(t, lastRun.IsZero())
	require.Error(t, lastErr)
}

func TestStatsReporterWithoutStore(t *testing.T) {
	reporter := NewStatsReporter(nil)
	require.NoError(t, reporter.Start())

	_, err := reporter.RunOnce(context.Background())
	require.Error(t, err)

	<-reporter.Stop().Done()
}

func TestStatsReporterStartRegistersJob(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	reporter := NewStatsReporter(store, WithCron(c), WithSchedule("@every 1h"))

	require.NoError(t, reporter.Start())
	t.Cleanup(func() {
		<-reporter.Stop().Done()
	})

	require.Len(t, c.Entries(), 1)
}

func TestStatsReporterRejectsInvalidSchedule(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	reporter := NewStatsReporter(cache.NewDatabaseStore(db), WithSchedule("not a schedule"))

	require.Error(t, reporter.Start())
}
