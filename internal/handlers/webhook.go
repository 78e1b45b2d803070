package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookPayload is the payload shape for the built-in "webhook" job type:
// deliver a JSON body to a URL.
type WebhookPayload struct {
	URL     string            `json:"url"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// NewWebhook returns a handler that POSTs the payload body to the payload
// URL. Non-2xx responses count as failures so the queue's retry and dead
// letter machinery applies.
func NewWebhook(client *http.Client) func(ctx context.Context, payload []byte) error {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(ctx context.Context, payload []byte) error {
		var p WebhookPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("invalid webhook payload: %w", err)
		}
		if p.URL == "" {
			return fmt.Errorf("webhook payload missing url")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(p.Body))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range p.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook delivery failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook delivery returned HTTP %d", resp.StatusCode)
		}
		return nil
	}
}
