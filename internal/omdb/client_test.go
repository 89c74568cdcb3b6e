package omdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const shawshank = `{"Title":"The Shawshank Redemption","Year":"1994","imdbID":"tt0111161","Response":"True"}`

func TestFetchMovieReturnsRawBody(t *testing.T) {
	var gotPath, gotID, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.URL.Query().Get("i")
		gotKey = r.URL.Query().Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(shawshank))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	body, err := client.FetchMovie(context.Background(), "tt0111161")
	require.NoError(t, err)
	require.Equal(t, shawshank, string(body))
	require.Equal(t, "/", gotPath)
	require.Equal(t, "tt0111161", gotID)
	require.Equal(t, "secret", gotKey)
}

func TestFetchMovieEscapesIdentifier(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.URL.Query().Get("i")
		_, _ = w.Write([]byte(shawshank))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret")
	_, err := client.FetchMovie(context.Background(), "tt01&apikey=other")
	require.NoError(t, err)
	require.Equal(t, "tt01&apikey=other", gotID)
}

func TestFetchMovieNotFoundCases(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "response false", status: http.StatusOK, body: `{"Response":"False","Error":"Incorrect IMDb ID."}`},
		{name: "missing title", status: http.StatusOK, body: `{"Response":"True"}`},
		{name: "blank title", status: http.StatusOK, body: `{"Response":"True","Title":"  "}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"Response":"False","Error":"boom"}`},
		{name: "unauthorised", status: http.StatusUnauthorized, body: `{"Response":"False","Error":"Invalid API key!"}`},
		{name: "invalid json", status: http.StatusOK, body: `<html>oops</html>`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret")
			body, err := client.FetchMovie(context.Background(), "tt0000000")
			require.ErrorIs(t, err, ErrNotFound)
			require.Nil(t, body)
		})
	}
}

func TestFetchMovieTransportFailureIsLoggedWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	client := NewClient(url, "top-secret", WithLogger(zap.New(core)))

	_, err := client.FetchMovie(context.Background(), "tt0111161")
	require.ErrorIs(t, err, ErrNotFound)

	entries := logs.FilterMessage("upstream lookup failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "tt0111161", entries[0].ContextMap()["imdb_id"])
	require.False(t, strings.Contains(err.Error(), "top-secret"))
	require.False(t, strings.Contains(entries[0].ContextMap()["error"].(string), "top-secret"))
}

func TestFetchMovieHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "secret", WithTimeout(50*time.Millisecond))
	_, err := client.FetchMovie(context.Background(), "tt0111161")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchMovieHonoursContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(shawshank))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "secret")
	_, err := client.FetchMovie(ctx, "tt0111161")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, errors.Is(err, context.Canceled))
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("", "key")
	require.Equal(t, DefaultBaseURL, client.baseURL)
	require.Equal(t, defaultTimeout, client.http.Timeout)

	custom := &http.Client{Timeout: time.Second}
	client = NewClient("http://example.test/", "key", WithHTTPClient(custom))
	require.Equal(t, "http://example.test", client.baseURL)
	require.Same(t, custom, client.http)
}
