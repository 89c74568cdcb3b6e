package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/datatypes"

	"github.com/charlesng35/moviecache/internal/cache"
	"github.com/charlesng35/moviecache/internal/database/testutil"
	"github.com/charlesng35/moviecache/internal/models"
	"github.com/charlesng35/moviecache/internal/omdb"
	appErrors "github.com/charlesng35/moviecache/pkg/errors"
)

const (
	shawshankID   = "tt0111161"
	shawshankBody = `{"Title":"The Shawshank Redemption","Year":"1994","imdbID":"tt0111161","Response":"True"}`
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	payload json.RawMessage
	err     error
	onFetch func()
}

func (f *fakeFetcher) FetchMovie(_ context.Context, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingStore struct {
	getErr    error
	upsertErr error
	upserts   int
}

func (s *failingStore) Get(context.Context, string) (*models.CachedMovie, error) {
	return nil, s.getErr
}

func (s *failingStore) Upsert(context.Context, string, json.RawMessage, time.Time) error {
	s.upserts++
	return s.upsertErr
}

func (s *failingStore) CountByFreshness(context.Context, time.Time) (int64, int64, error) {
	return 0, 0, s.getErr
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestMovieService(t *testing.T, store cache.MovieStore, fetcher MovieFetcher, opts ...MovieServiceOption) *MovieService {
	t.Helper()
	svc, err := NewMovieService(store, fetcher, opts...)
	require.NoError(t, err)
	return svc
}

func TestMovieServiceFreshHitSkipsUpstream(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(context.Background(), shawshankID, json.RawMessage(`{"Title":"Cached","Response":"True"}`), now.Add(-6*24*time.Hour)))

	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody)}
	svc := newTestMovieService(t, store, fetcher, WithClock(fixedClock(now)))

	payload, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.JSONEq(t, `{"Title":"Cached","Response":"True"}`, string(payload))
	require.Zero(t, fetcher.Calls())
}

func TestMovieServiceStaleRowRefetches(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(context.Background(), shawshankID, json.RawMessage(`{"Title":"Cached","Response":"True"}`), now.Add(-DefaultCacheTTL)))

	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody)}
	svc := newTestMovieService(t, store, fetcher, WithClock(fixedClock(now)))

	payload, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.Equal(t, shawshankBody, string(payload))
	require.Equal(t, 1, fetcher.Calls())

	entry, err := store.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.JSONEq(t, shawshankBody, string(entry.Data))
	require.True(t, now.Equal(entry.UpdatedAt))
}

func TestMovieServiceMissThenHit(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody)}
	svc := newTestMovieService(t, store, fetcher)

	first, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)

	require.Equal(t, shawshankBody, string(first))
	require.JSONEq(t, shawshankBody, string(second))
	require.Equal(t, 1, fetcher.Calls())
}

func TestMovieServiceWriteSurvivesCallerCancellation(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody), onFetch: cancel}
	svc := newTestMovieService(t, store, fetcher)

	payload, err := svc.Get(ctx, shawshankID)
	require.NoError(t, err)
	require.Equal(t, shawshankBody, string(payload))
	require.Error(t, ctx.Err())

	entry, err := store.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.NotNil(t, entry, "row must be written after the caller went away")
	require.JSONEq(t, shawshankBody, string(entry.Data))
}

func TestMovieServiceNotFoundCreatesNoRow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	fetcher := &fakeFetcher{err: fmt.Errorf("%w: Movie not found!", omdb.ErrNotFound)}
	svc := newTestMovieService(t, store, fetcher)

	payload, err := svc.Get(context.Background(), "tt0000000")
	require.Nil(t, payload)
	require.ErrorIs(t, err, appErrors.ErrMovieNotFound)

	var appErr *appErrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 404, appErr.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.CachedMovie{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestMovieServiceUnexpectedFetchErrorIsInternal(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("boom")}
	svc := newTestMovieService(t, nil, fetcher)

	_, err := svc.Get(context.Background(), shawshankID)
	require.ErrorIs(t, err, appErrors.ErrInternalServer)
}

func TestMovieServiceStoreReadFailureFailsOpen(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &failingStore{getErr: errors.New("connection refused")}
	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody)}
	svc := newTestMovieService(t, store, fetcher, WithServiceLogger(zap.New(core)))

	payload, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.Equal(t, shawshankBody, string(payload))
	require.Equal(t, 1, fetcher.Calls())
	require.Equal(t, 1, logs.FilterMessage("cache read failed").Len())
}

func TestMovieServiceStoreWriteFailureStillReturnsPayload(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &failingStore{upsertErr: errors.New("read-only database")}
	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody)}
	svc := newTestMovieService(t, store, fetcher, WithServiceLogger(zap.New(core)))

	payload, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.Equal(t, shawshankBody, string(payload))
	require.Equal(t, 1, store.upserts)

	entries := logs.FilterMessage("cache write failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, shawshankID, entries[0].ContextMap()["imdb_id"])
}

func TestMovieServiceClosedDatabaseFailsOpen(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)
	testutil.CloseDB(t, db)

	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody)}
	svc := newTestMovieService(t, store, fetcher, WithServiceLogger(zap.NewNop()))

	payload, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.Equal(t, shawshankBody, string(payload))
}

func TestMovieServiceCustomTTL(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.CachedMovie{
		IMDbID:    shawshankID,
		Data:      datatypes.JSON(`{"Title":"Cached","Response":"True"}`),
		UpdatedAt: now.Add(-2 * time.Hour),
	}).Error)

	fetcher := &fakeFetcher{payload: json.RawMessage(shawshankBody)}
	svc := newTestMovieService(t, cache.NewDatabaseStore(db), fetcher,
		WithClock(fixedClock(now)),
		WithCacheTTL(time.Hour),
	)

	_, err := svc.Get(context.Background(), shawshankID)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.Calls())
}

func TestNewMovieServiceRequiresFetcher(t *testing.T) {
	_, err := NewMovieService(nil, nil)
	require.Error(t, err)
}
