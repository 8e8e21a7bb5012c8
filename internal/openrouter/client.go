// Package openrouter is a chat-completion client for the OpenRouter API, used
// as the managed tagging model backend.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/trendsync/internal/ollama"
	"github.com/kalambet/trendsync/internal/retry"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	requestTimeout = 60 * time.Second
	chatAttempts   = 3
)

// Client is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	sleep      retry.SleepFunc
}

// NewClient returns a client for the public OpenRouter endpoint.
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, defaultBaseURL)
}

// NewClientWithBaseURL points the client at another OpenRouter-compatible
// endpoint.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		sleep:      retry.Sleep,
	}
}

// throttledError is a 429. wait is the server's Retry-After, when given.
type throttledError struct {
	wait time.Duration
}

func (e *throttledError) Error() string {
	return "openrouter: rate limited"
}

// Chat returns the first choice's content. With a schema the answer is held
// to strict JSON matching it. 429s are retried with the shared backoff, any
// other failure is returned at once.
func (c *Client) Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error) {
	req := chatRequest{Model: model, Messages: messages}
	if jsonSchema != nil {
		req.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &namedSchema{Name: "tags", Strict: true, Schema: jsonSchema},
		}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	var throttled *throttledError
	for attempt := 0; ; attempt++ {
		content, err := c.complete(ctx, payload)
		if !errors.As(err, &throttled) {
			return content, err
		}
		if attempt == chatAttempts-1 {
			return "", fmt.Errorf("giving up after %d attempts: %w", chatAttempts, err)
		}

		wait := retry.Delay(attempt)
		if throttled.wait > wait {
			wait = throttled.wait
		}
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

func (c *Client) complete(ctx context.Context, payload []byte) (string, error) {
	resp, err := c.call(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", &throttledError{wait: retryAfter(resp.Header.Get("Retry-After"))}
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("openrouter chat: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openrouter chat: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// retryAfter reads the delay-seconds form of Retry-After.
func retryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Models lists the models the account can use.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	resp, err := c.call(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter models: status %d", resp.StatusCode)
	}

	var list struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	return list.Data, nil
}

// CheckModel reports an error when model is not in the account's model list.
func (c *Client) CheckModel(ctx context.Context, model string) error {
	models, err := c.Models(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m.ID == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not offered by OpenRouter", model)
}

func (c *Client) call(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/kalambet/trendsync")
	req.Header.Set("X-Title", "trendsync")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter %s: %w", path, err)
	}
	return resp, nil
}
