package approvals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/venuedesk/venuedesk/common/retry"
)

// WebhookNotifier posts queued drafts as JSON envelopes to an external
// endpoint (chat bridge, ticketing system, whatever the venue wired up).
type WebhookNotifier struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewWebhookNotifier creates a notifier posting to the given URL.  Token is
// optional and sent as a bearer credential when set.
func NewWebhookNotifier(url, token string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Token:  token,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// draftEvent is the normalised envelope posted to the webhook.
type draftEvent struct {
	Type    string    `json:"type"`
	TS      time.Time `json:"ts"`
	DraftID string    `json:"draft_id"`
	Booking string    `json:"booking_id"`
	Step    int       `json:"step"`
	Body    string    `json:"body"`
	Expires time.Time `json:"expires_at"`
}

// DraftQueued sends a single draft envelope to the webhook endpoint,
// retrying transient delivery failures with backoff.
func (n *WebhookNotifier) DraftQueued(ctx context.Context, d *Draft) error {
	evt := draftEvent{
		Type:    "draft.queued",
		TS:      time.Now().UTC(),
		DraftID: d.ID,
		Booking: d.BookingID,
		Step:    d.Step,
		Body:    d.Body,
		Expires: d.ExpiresAt,
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal draft event: %w", err)
	}

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if n.Token != "" {
			req.Header.Set("Authorization", "Bearer "+n.Token)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("POST %s: %w", n.URL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned HTTP %d for %s", resp.StatusCode, n.URL)
		}

		return nil
	})
}
