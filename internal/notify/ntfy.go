package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NtfyNotifier publishes notifications to an ntfy topic.
type NtfyNotifier struct {
	client   *http.Client
	endpoint string
	token    string
	priority string
	tags     []string
}

// NewNtfy creates a notifier publishing to server/topic.
func NewNtfy(server, topic, token, priority string, tags []string) *NtfyNotifier {
	return &NtfyNotifier{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: strings.TrimRight(server, "/") + "/" + topic,
		token:    token,
		priority: priority,
		tags:     tags,
	}
}

func (n *NtfyNotifier) Notify(ctx context.Context, event Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(event.Body()))
	if err != nil {
		return fmt.Errorf("ntfy: building request: %w", err)
	}
	req.Header.Set("Title", event.Headline())
	if n.priority != "" {
		req.Header.Set("Priority", n.priority)
	}
	if len(n.tags) > 0 {
		req.Header.Set("Tags", strings.Join(n.tags, ","))
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ntfy: unexpected status %d", resp.StatusCode)
	}
	return nil
}
