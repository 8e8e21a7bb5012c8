// Package grid fetches trends through the scraping broker, a remote service
// that renders the trending page on our behalf.
package grid

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

	"github.com/kalambet/trendsync/internal/parser"
	"github.com/kalambet/trendsync/internal/retry"
	"github.com/kalambet/trendsync/internal/trend"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
	secretHeader   = "x-grid-secret"
)

// ErrNotConfigured is returned by Fetch when the broker URL or secret is missing.
var ErrNotConfigured = errors.New("grid broker not configured")

// ErrEmpty is returned when the broker answered but nothing could be parsed.
var ErrEmpty = errors.New("grid broker returned no trend items")

// StatusError reports a non-2xx broker response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("grid broker returned HTTP %d: %s", e.Status, e.Body)
}

type searchRequest struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

// Client talks to the broker's search endpoint.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	parser     *parser.Parser
	attempts   int
	sleep      retry.SleepFunc
	logger     *slog.Logger
}

// NewClient creates a broker client. A non-positive timeout defaults to 30s.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		parser:     parser.New(),
		attempts:   retry.DefaultAttempts,
		sleep:      retry.Sleep,
		logger:     slog.Default(),
	}
}

// Configured reports whether both the broker URL and its shared secret are set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.secret != ""
}

// Fetch queries the broker, retrying failed attempts with capped exponential
// backoff. The last attempt's error is returned when all attempts fail.
func (c *Client) Fetch(ctx context.Context) ([]trend.Item, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var lastErr error
	for attempt := range c.attempts {
		items, err := c.fetchOnce(ctx)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < c.attempts-1 {
			delay := retry.Delay(attempt)
			c.logger.Warn("grid fetch failed",
				"attempt", attempt+1,
				"max_attempts", c.attempts,
				"retry_in", delay,
				"error", err,
			)
			if err := c.sleep(ctx, delay); err != nil {
				break
			}
		}
	}
	return nil, fmt.Errorf("grid fetch failed after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) ([]trend.Item, error) {
	body, err := json.Marshal(searchRequest{Type: trend.Platform, Query: "trending"})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/html;q=0.9")
	req.Header.Set(secretHeader, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(payload)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: snippet}
	}

	items, strategy := c.parser.Parse(resp.Header.Get("Content-Type"), payload)
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	c.logger.Debug("grid broker response parsed", "items", len(items), "strategy", strategy)
	return items, nil
}
