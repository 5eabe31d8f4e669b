package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to a configured endpoint, for
// feeding the bot's divergence and signal alerts into dashboards or
// automation that Telegram doesn't reach.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload is the wire shape of one delivered alert.
type webhookPayload struct {
	Severity string `json:"severity"` // INFO | WARNING | CRITICAL
	Title    string `json:"title"`
	Body     string `json:"body"`
	SentAt   string `json:"sent_at"` // RFC 3339, UTC
}

// NewWebhookNotifier creates a notifier that delivers to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers one alert. Any 2xx response counts as delivered; the
// response body is ignored.
func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Severity: string(alert.Level),
		Title:    alert.Title,
		Body:     alert.Message,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[webhook] delivered alert: %s", alert.Title)
	return nil
}
