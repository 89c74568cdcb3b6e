// Package omdb is a thin client for the OMDb metadata API.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/moviecache/pkg/logger"
	"github.com/charlesng35/moviecache/pkg/metrics"
)

const (
	// DefaultBaseURL is the public OMDb endpoint.
	DefaultBaseURL = "https://www.omdbapi.com"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// ErrNotFound is returned for every upstream failure: transport errors, non-2xx
// statuses, undecodable bodies and OMDb's own "Response":"False" replies.
var ErrNotFound = errors.New("omdb: movie not found")

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for upstream calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// WithLogger overrides the logger used for upstream diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Client fetches movie documents from OMDb.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

// NewClient constructs a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logger.WithModule("omdb"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// envelope holds the fields used to judge whether a reply describes a movie.
type envelope struct {
	Response string `json:"Response"`
	Title    string `json:"Title"`
	Error    string `json:"Error"`
}

// FetchMovie returns the raw OMDb document for imdbID. The body is returned
// exactly as received so callers can cache and replay it unchanged.
func (c *Client) FetchMovie(ctx context.Context, imdbID string) (json.RawMessage, error) {
	body, err := c.fetch(ctx, imdbID)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(resultLabel(err)).Inc()
		c.log.Warn("upstream lookup failed",
			zap.String("imdb_id", imdbID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	metrics.UpstreamRequests.WithLabelValues("found").Inc()
	return body, nil
}

func (c *Client) fetch(ctx context.Context, imdbID string) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint, err := c.endpoint(imdbID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the api key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if env.Response != "True" || strings.TrimSpace(env.Title) == "" {
		return nil, &rejectedError{reason: env.Error}
	}

	return json.RawMessage(body), nil
}

func (c *Client) endpoint(imdbID string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	query := base.Query()
	query.Set("i", imdbID)
	query.Set("apikey", c.apiKey)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

type rejectedError struct {
	reason string
}

func (e *rejectedError) Error() string {
	if e.reason == "" {
		return "upstream returned no movie"
	}
	return "upstream rejected lookup: " + e.reason
}

func resultLabel(err error) string {
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return "not_found"
	}
	return "error"
}
