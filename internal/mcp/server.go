package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/nudge/internal/mcp/handlers"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Status  handlers.StatusProvider
	Runner  handlers.PassRunner
	History handlers.HistoryReader
}

// NewServer creates the MCP server. It is usable as a notify.MCPSender right
// away; tools are added with RegisterTools once the poller exists.
func NewServer(version string) *server.MCPServer {
	return server.NewMCPServer(
		"Nudge",
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)
}
