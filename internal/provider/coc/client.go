// Package coc provides the HTTP client for the Clash of Clans API.
//
// The API uses bearer-token auth, cursor-based pagination on list endpoints
// and per-token rate limits. Outbound requests go through a token bucket
// limiter; 429 and 5xx responses are retried with exponential backoff that
// honors Retry-After.
package coc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 30
	defaultMaxRetries        = 3
	defaultConcurrency       = 10
	defaultBackoff           = 500 * time.Millisecond
	maxBackoff               = 10 * time.Second
)

var (
	// ErrNotFound is returned when the API answers 404 for a tag.
	ErrNotFound = errors.New("coc: not found")
	// ErrDecode is returned when a 200 response does not match the expected shape.
	ErrDecode = errors.New("coc: decode response")
)

// StatusError is a non-200, non-404 response.
type StatusError struct {
	Path       string
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("CoC %s returned %d: %s", e.Path, e.Code, e.Body)
}

// Temporary reports whether retrying the same request can succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client is the HTTP client for Clash of Clans endpoints.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	limiter     *rate.Limiter
	maxRetries  int
	concurrency int
	backoff     time.Duration
	logger      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithRequestsPerSecond sets the outbound token bucket rate.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithMaxRetries sets how many times a temporary failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithConcurrency bounds in-flight requests issued by Stream.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBackoff sets the first retry delay; later delays double. Zero retries
// immediately.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a CoC client with rate limiting.
func NewClient(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		token:       token,
		limiter:     rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		maxRetries:  defaultMaxRetries,
		concurrency: defaultConcurrency,
		backoff:     defaultBackoff,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// paging is the cursor wrapper of list endpoints.
type paging struct {
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
}

// get performs a single rate-limited GET request.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	default:
		return nil, &StatusError{
			Path:       path,
			Code:       resp.StatusCode,
			Body:       truncate(body, 200),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
}

// getJSON performs get with retries for temporary failures and decodes the
// body into v.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay(attempt, lastErr)
			c.logger.Debug("Retrying CoC request", "path", path, "attempt", attempt, "wait", wait, "error", lastErr)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		body, err := c.get(ctx, path, params)
		if err == nil {
			if err := json.Unmarshal(body, v); err != nil {
				return fmt.Errorf("%w %s: %w", ErrDecode, path, err)
			}
			return nil
		}
		lastErr = err
		if !c.retryable(ctx, err) {
			return err
		}
	}
	return lastErr
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	// Transport failures.
	return true
}

func (c *Client) retryDelay(attempt int, err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return min(se.RetryAfter, maxBackoff)
	}
	if c.backoff <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift >= 32 || c.backoff > maxBackoff>>shift {
		return maxBackoff
	}
	return c.backoff << shift
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
