package notify

import (
	"context"
	"time"
)

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier pushes deadline notifications to connected MCP clients as
// notifications/message log entries.
type MCPNotifier struct {
	sender MCPSender
}

// NewMCPNotifier creates an MCPNotifier broadcasting through sender.
func NewMCPNotifier(sender MCPSender) *MCPNotifier {
	return &MCPNotifier{sender: sender}
}

// Notify broadcasts the event. Delivery to MCP sessions is best-effort, so a
// broadcast with no connected client still counts as sent.
func (n *MCPNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := map[string]any{
		"level":  "warning",
		"logger": "nudge",
		"data": map[string]any{
			"type":      "deadline.approaching",
			"task_id":   event.TaskID,
			"title":     event.Title,
			"deadline":  event.Deadline.Format(time.RFC3339),
			"remaining": event.Remaining.Round(time.Second).String(),
			"message":   event.Body(),
		},
	}
	n.sender.SendNotificationToAllClients("notifications/message", params)
	return nil
}
