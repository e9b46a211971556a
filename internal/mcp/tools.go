package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/nudge/internal/mcp/handlers"
)

// RegisterTools adds the nudge tools to s.
func RegisterTools(s *server.MCPServer, deps *Deps) {
	// list_notified — Tasks already notified and poller state
	s.AddTool(
		mcp.NewTool("list_notified",
			mcp.WithDescription("List the tasks that have already been notified for their approaching deadline, with the notification window, schedule and last pass summary."),
		),
		handlers.ListNotified(deps.Status),
	)

	// run_pass — Poll the task source now
	s.AddTool(
		mcp.NewTool("run_pass",
			mcp.WithDescription("Fetch the task list now and send notifications for deadlines inside the window. Fails if a pass is already running."),
		),
		handlers.RunPass(deps.Runner),
	)

	// get_history — Notification and pass audit log
	if deps.History != nil {
		s.AddTool(
			mcp.NewTool("get_history",
				mcp.WithDescription("Get the history of sent and failed notifications, or of polling passes."),
				mcp.WithString("kind",
					mcp.Description("What to list (default: notifications)"),
					mcp.Enum("notifications", "passes"),
				),
				mcp.WithString("task_id",
					mcp.Description("Only notifications for this task"),
				),
				mcp.WithString("status",
					mcp.Description("Filter notifications by outcome"),
					mcp.Enum("sent", "failed", "all"),
				),
				mcp.WithNumber("since_hours",
					mcp.Description("Only entries from the last N hours"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Maximum entries to return (default: 20, max: 200)"),
				),
			),
			handlers.GetHistory(deps.History),
		)
	}
}
