package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook posts {"text": msg} to a URL. The payload shape is accepted by
// Slack-compatible incoming webhooks.
type Webhook struct {
	url        string
	httpClient *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, httpClient: &http.Client{Timeout: sendTimeout}}
}

func (w *Webhook) Name() string { return "webhook" }

type webhookPayload struct {
	Text      string `json:"text"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
}

func (w *Webhook) Send(ctx context.Context, msg string) error {
	body, err := json.Marshal(webhookPayload{Text: msg, Service: "trendsync", Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
