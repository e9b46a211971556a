package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/nudge/internal/poller"
)

// PassRunner triggers a pass on demand.
type PassRunner interface {
	RunPass(ctx context.Context) (poller.PassResult, error)
}

// RunPass returns a handler that runs one pass immediately. The pass
// outlives the request: a client hanging up does not abort deliveries.
func RunPass(pr PassRunner) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := pr.RunPass(context.WithoutCancel(ctx))
		if errors.Is(err, poller.ErrPassInProgress) {
			return mcp.NewToolResultError("A pass is already running. Try again in a moment."), nil
		}

		var sb strings.Builder
		writePass(&sb, res)
		if len(res.Report.Notified) > 0 {
			fmt.Fprintf(&sb, "\nNotified: %s\n", strings.Join(res.Report.Notified, ", "))
		}
		if err != nil {
			return mcp.NewToolResultError(sb.String()), nil
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
