package driftq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a driftq ops API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new driftq client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Stats mirrors the queue's live counters.
type Stats struct {
	TotalJobs        int    `json:"total_jobs"`
	CompletedJobs    int    `json:"completed_jobs"`
	FailedJobs       int    `json:"failed_jobs"`
	CurrentQueueSize int    `json:"current_queue_size"`
	Processing       bool   `json:"processing"`
	SuccessRate      string `json:"success_rate"`
}

// DeadLetterEntry is one permanently-failed job record.
type DeadLetterEntry struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Payload       []byte    `json:"payload,omitempty"`
	Error         string    `json:"error"`
	ErrorCategory string    `json:"error_category"`
	Retries       int       `json:"retries"`
	FailedAt      time.Time `json:"failed_at"`
}

// EnqueueOptions for enqueuing jobs
type EnqueueOptions struct {
	MaxRetries   int
	RetryDelayMs int64
}

// Enqueue adds a job of a server-registered type to the queue
func (c *Client) Enqueue(ctx context.Context, jobType string, payload interface{}, opts *EnqueueOptions) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req := map[string]interface{}{
		"type":    jobType,
		"payload": json.RawMessage(payloadBytes),
	}
	if opts != nil {
		if opts.MaxRetries > 0 {
			req["max_retries"] = opts.MaxRetries
		}
		if opts.RetryDelayMs > 0 {
			req["retry_delay_ms"] = opts.RetryDelayMs
		}
	}

	var resp struct {
		JobID string `json:"job_id"`
	}

	if err := c.doRequest(ctx, "POST", "/v1/jobs", req, &resp); err != nil {
		return "", err
	}

	return resp.JobID, nil
}

// Stats returns the queue's live statistics
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.doRequest(ctx, "GET", "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Clear discards all pending jobs and returns the count discarded
func (c *Client) Clear(ctx context.Context) (int, error) {
	var resp struct {
		Discarded int `json:"discarded"`
	}
	if err := c.doRequest(ctx, "DELETE", "/v1/jobs", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Discarded, nil
}

// DeadLetters lists the dead letter entries
func (c *Client) DeadLetters(ctx context.Context) ([]*DeadLetterEntry, error) {
	var resp struct {
		Entries []*DeadLetterEntry `json:"entries"`
	}
	if err := c.doRequest(ctx, "GET", "/v1/dlq", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ClearDeadLetters empties the dead letter queue
func (c *Client) ClearDeadLetters(ctx context.Context) error {
	return c.doRequest(ctx, "DELETE", "/v1/dlq", nil, nil)
}

// RequeueDeadLetter pops a dead letter entry and re-enqueues it
func (c *Client) RequeueDeadLetter(ctx context.Context, id string) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.doRequest(ctx, "POST", fmt.Sprintf("/v1/dlq/%s/requeue", id), nil, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// Health checks if the server is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, "GET", "/healthz", nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server error (%d)", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
