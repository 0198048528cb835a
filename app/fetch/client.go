// Package fetch is the HTTP collaborator consumed by source adapters.
// It owns retries, backoff and timeouts; adapters only see a Result.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 30 * time.Second
)

// Result is the outcome of a single fetch. Exhausted retries surface as
// Success=false with Err set; callers treat that as a non-fatal failure
// of the one fetch and continue with whatever partial data they have.
type Result struct {
	Success    bool
	StatusCode int
	Body       []byte
	Err        error
}

func (r *Result) Text() string {
	return string(r.Body)
}

// DecodeJSON unmarshals the body into v. Calling it on a failed result
// returns the fetch error.
func (r *Result) DecodeJSON(v any) error {
	if !r.Success {
		return fmt.Errorf("fetch failed: %w", r.Err)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return nil
}

// Client wraps net/http with a configured User-Agent, per-request
// timeout and bounded retries with jittered backoff.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxAttempts int
	timeout     time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(userAgent string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		userAgent:   userAgent,
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url, retrying transient failures up to the attempt limit.
// It never returns a nil result.
func (c *Client) Get(ctx context.Context, url string) *Result {
	return c.do(ctx, http.MethodGet, url, nil)
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string) *Result {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(1<<uint(attempt-2)) * time.Second
			delay += time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-ctx.Done():
				return &Result{Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, status, err := c.once(ctx, method, url, headers)
		if err == nil {
			return &Result{Success: true, StatusCode: status, Body: body}
		}

		lastErr = err
		slog.Warn("Fetch attempt failed", "url", url, "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	return &Result{Err: lastErr}
}

func (c *Client) once(ctx context.Context, method, url string, headers map[string]string) ([]byte, int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, method, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}
