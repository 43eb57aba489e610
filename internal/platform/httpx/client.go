// Package httpx is the JSON-over-HTTP transport shared by the platform
// clients. Transient failures (network errors, 429, 5xx) are retried with
// backoff; everything else fails on the first response.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/resilience"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Options tunes a Client. Zero values take defaults.
type Options struct {
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	// Headers are set on every request, e.g. API keys.
	Headers map[string]string
}

// Client sends JSON requests to one base URL.
type Client struct {
	baseURL string
	http    *http.Client
	opts    Options
	logger  *slog.Logger
}

// New creates a Client for baseURL.
func New(baseURL string, opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 150 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		logger:  logger,
	}
}

// BaseURL returns the configured root.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON issues a GET for path (which may carry a query string).
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues a POST with in encoded as the JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Do sends one logical request, retrying transient failures. A nil out
// discards the body.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("httpx: marshal request: %w", err)
		}
		payload = b
	}

	body, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context, _ int) ([]byte, error) {
		return c.once(ctx, method, path, payload)
	}, c.opts.Attempts, c.opts.RetryDelay,
		resilience.WithMaxDelay(c.opts.MaxDelay),
		resilience.WithJitter(0.2),
		resilience.RetryIf(retryable),
		resilience.OnRetry(func(attempt int, err error, delay time.Duration) {
			c.logger.DebugContext(ctx, "retrying request",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("httpx: empty response body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpx: decode response: %w", err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("httpx: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.opts.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpx: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpx: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// IsStatus reports whether err carries HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
