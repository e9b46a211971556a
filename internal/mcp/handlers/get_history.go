package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/nudge/internal/store"
)

// HistoryReader reads the pass audit log.
type HistoryReader interface {
	ListPasses(limit int) ([]store.PassRecord, error)
	ListNotifications(f store.NotificationFilter) ([]store.NotificationRecord, error)
}

// GetHistory returns a handler that lists past notifications or passes.
func GetHistory(h HistoryReader) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		limit := 20
		if l, ok := args["limit"].(float64); ok && l > 0 {
			limit = min(int(l), 200)
		}

		kind, _ := args["kind"].(string)
		if kind == "passes" {
			return listPasses(h, limit)
		}
		if kind != "" && kind != "notifications" {
			return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q (use notifications or passes)", kind)), nil
		}

		filter := store.NotificationFilter{Limit: limit}
		filter.TaskID, _ = args["task_id"].(string)
		filter.Status, _ = args["status"].(string)
		if since, ok := args["since_hours"].(float64); ok && since > 0 {
			filter.Since = time.Now().Add(-time.Duration(since * float64(time.Hour)))
		}

		records, err := h.ListNotifications(filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Reading history: %s", err)), nil
		}
		if len(records) == 0 {
			return mcp.NewToolResultText("No notifications found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "📜 Notifications (%d found)\n\n", len(records))
		for _, r := range records {
			icon := "✅"
			if r.Status == store.NotificationFailed {
				icon = "❌"
			}
			fmt.Fprintf(&sb, "%s **%s** %s\n", icon, r.TaskID, r.Title)
			fmt.Fprintf(&sb, "  Deadline: %s | At: %s\n",
				r.Deadline.Format(time.RFC3339), r.CreatedAt.Format(time.RFC3339))
			if r.Error != "" {
				fmt.Fprintf(&sb, "  Error: %s\n", r.Error)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func listPasses(h HistoryReader, limit int) (*mcp.CallToolResult, error) {
	passes, err := h.ListPasses(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reading history: %s", err)), nil
	}
	if len(passes) == 0 {
		return mcp.NewToolResultText("No passes recorded yet."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 Passes (%d found)\n\n", len(passes))
	for _, p := range passes {
		fmt.Fprintf(&sb, "%s %s at %s (%s)\n", passIcon(p.Status), p.ID, p.StartedAt.Format(time.RFC3339), p.Status)
		fmt.Fprintf(&sb, "  Fetched: %d | Notified: %d | Re-armed: %d | Pruned: %d | Failed: %d\n",
			p.Fetched, p.Notified, p.Rearmed, p.Pruned, p.Failed)
		if p.Error != "" {
			fmt.Fprintf(&sb, "  Error: %s\n", p.Error)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}
