package deadletter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Alerter fires a best-effort webhook notification when a job is
// dead-lettered. Delivery failures are logged and never affect the store.
type Alerter struct {
	url        string
	httpClient *http.Client
}

// NewAlerter creates an Alerter posting to the given webhook URL.
func NewAlerter(url string) *Alerter {
	return &Alerter{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type alertPayload struct {
	Text string `json:"text"`
}

// Fire posts a text summary of the entry to the webhook.
func (a *Alerter) Fire(entry Entry) {
	body, err := json.Marshal(alertPayload{
		Text: fmt.Sprintf("job %s (%s) dead-lettered after %d attempts: %s",
			entry.ID, entry.Type, entry.Retries, entry.Error),
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal alert payload")
		return
	}

	resp, err := a.httpClient.Post(a.url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("job_id", entry.ID).Msg("failed to deliver dead letter alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("job_id", entry.ID).Msg("dead letter alert rejected")
	}
}
