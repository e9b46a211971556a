package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Nudge-Signature"

// WebhookNotifier POSTs a JSON payload to an arbitrary endpoint.
type WebhookNotifier struct {
	name   string
	url    string
	secret []byte
	client *http.Client
}

type webhookPayload struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Deadline  time.Time `json:"deadline"`
	Remaining string    `json:"remaining"`
	Message   string    `json:"message"`
}

// NewWebhook creates a webhook notifier. An empty secret disables signing.
func NewWebhook(name, url, secret string) *WebhookNotifier {
	w := &WebhookNotifier{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
	if secret != "" {
		w.secret = []byte(secret)
	}
	return w
}

func (w *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(webhookPayload{
		Type:      "deadline.approaching",
		TaskID:    event.TaskID,
		Title:     event.Title,
		Deadline:  event.Deadline,
		Remaining: event.Remaining.Round(time.Second).String(),
		Message:   event.Body(),
	})
	if err != nil {
		return fmt.Errorf("webhook %s: encoding payload: %w", w.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: building request: %w", w.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != nil {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status %d", w.name, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex-encoded HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
