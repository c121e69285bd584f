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

// WebhookPayload is the JSON body POSTed for every alert. Series fields are
// empty for alerts not tied to a series.
type WebhookPayload struct {
	Severity  AlertLevel `json:"severity"`
	Event     string     `json:"event"`
	Country   string     `json:"country,omitempty"`
	Indicator string     `json:"indicator,omitempty"`
	SeriesKey string     `json:"series_key,omitempty"`

	// ServingStale is true when dashboards still show an older copy.
	ServingStale bool   `json:"serving_stale"`
	Summary      string `json:"summary"`
	Detail       string `json:"detail,omitempty"`
	Error        string `json:"error,omitempty"`
	SentAt       string `json:"sent_at"`
}

func newWebhookPayload(a Alert, now time.Time) WebhookPayload {
	p := WebhookPayload{
		Severity:     a.Level,
		Event:        a.Event,
		ServingStale: a.Stale,
		Summary:      a.Title,
		Detail:       a.Message,
		Error:        a.Err,
		SentAt:       now.UTC().Format(time.RFC3339),
	}
	if p.Event == "" {
		p.Event = "alert"
	}
	if a.Series != nil {
		p.Country = a.Series.Entity
		p.Indicator = a.Series.Indicator
		p.SeriesKey = a.Series.String()
	}
	return p
}

// WebhookNotifier POSTs a WebhookPayload per alert to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(newWebhookPayload(alert, w.now()))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook: %s returned status %d", alert.Key, resp.StatusCode)
	}

	log.Printf("[webhook] %s %s delivered", alert.Level, alert.Title)
	return nil
}
