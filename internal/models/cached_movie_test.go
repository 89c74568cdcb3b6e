package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCachedMovieIsFresh(t *testing.T) {
	ttl := 7 * 24 * time.Hour
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		updated time.Time
		want    bool
	}{
		{name: "just written", updated: now, want: true},
		{name: "one second short of window", updated: now.Add(-ttl + time.Second), want: true},
		{name: "exactly at window", updated: now.Add(-ttl), want: false},
		{name: "well past window", updated: now.Add(-30 * 24 * time.Hour), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			movie := &CachedMovie{IMDbID: "tt0111161", UpdatedAt: tc.updated}
			require.Equal(t, tc.want, movie.IsFresh(now, ttl))
		})
	}
}

func TestCachedMovieNilIsNotFresh(t *testing.T) {
	var movie *CachedMovie
	require.False(t, movie.IsFresh(time.Now(), time.Hour))
}

func TestCachedMovieTableName(t *testing.T) {
	require.Equal(t, "movie_cache", CachedMovie{}.TableName())
}
