package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/nudge/internal/poller"
	"github.com/btouchard/nudge/internal/store"
	"github.com/btouchard/nudge/internal/task"
)

// StatusProvider exposes a snapshot of the poller.
type StatusProvider interface {
	Status() poller.Status
}

// ListNotified returns a handler that lists the task IDs already notified
// together with the poller state.
func ListNotified(sp StatusProvider) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := sp.Status()

		var sb strings.Builder
		fmt.Fprintf(&sb, "🔔 Notified tasks (%d)\n\n", len(st.Notified))
		for _, id := range st.Notified {
			fmt.Fprintf(&sb, "- %s\n", id)
		}
		if len(st.Notified) == 0 {
			sb.WriteString("No task has been notified yet.\n")
		}

		fmt.Fprintf(&sb, "\nWindow: %s | Schedule: %s\n", task.FormatRemaining(st.Window), st.Schedule)
		if !st.NextRun.IsZero() {
			fmt.Fprintf(&sb, "Next pass: %s\n", st.NextRun.Format(time.RFC3339))
		}
		if st.PassInProgress {
			sb.WriteString("A pass is running right now.\n")
		}
		if st.LastPass != nil {
			sb.WriteString("\nLast pass:\n")
			writePass(&sb, *st.LastPass)
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func writePass(sb *strings.Builder, res poller.PassResult) {
	fmt.Fprintf(sb, "%s %s at %s (%s)\n",
		passIcon(res.Status()), res.ID, res.StartedAt.Format(time.RFC3339), res.Status())

	if res.Skipped {
		if res.FetchErr != nil {
			fmt.Fprintf(sb, "  Skipped: %s\n", res.FetchErr)
		} else {
			sb.WriteString("  Skipped: source returned no tasks\n")
		}
		return
	}

	r := res.Report
	fmt.Fprintf(sb, "  Fetched: %d | Notified: %d | Re-armed: %d | Pruned: %d\n",
		res.Fetched, len(r.Notified), len(r.Rearmed), len(r.Pruned))
	for _, f := range r.Failed {
		fmt.Fprintf(sb, "  Failed: %s (%s)\n", f.TaskID, f.Err)
	}
	for _, f := range r.Malformed {
		fmt.Fprintf(sb, "  Malformed: %s\n", f.Err)
	}
}

func passIcon(status string) string {
	switch status {
	case store.PassOK:
		return "✅"
	case store.PassPartial:
		return "⚠️"
	case store.PassSkipped:
		return "⏭️"
	default:
		return "❓"
	}
}
