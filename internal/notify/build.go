package notify

import (
	"fmt"
	"log/slog"

	"github.com/btouchard/nudge/internal/config"
)

// FromConfig assembles the configured sinks into a rate-limited Hub.
// mcp may be nil when no MCP server runs (CLI one-shot passes).
func FromConfig(cfg config.NotificationsConfig, mcp MCPSender) (Notifier, error) {
	var sinks []Notifier

	if cfg.Log {
		sinks = append(sinks, NewLogNotifier(nil))
	}
	if cfg.Ntfy.Enabled {
		sinks = append(sinks, NewNtfy(cfg.Ntfy.Server, cfg.Ntfy.Topic, cfg.Ntfy.Token, cfg.Ntfy.Priority, cfg.Ntfy.Tags))
	}
	for i, wh := range cfg.Webhooks {
		name := wh.Name
		if name == "" {
			name = fmt.Sprintf("webhook-%d", i)
		}
		sinks = append(sinks, NewWebhook(name, wh.URL, wh.Secret))
	}
	if cfg.Telegram.Enabled {
		tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.ThreadID, cfg.Telegram.APIURL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	if cfg.MCP && mcp != nil {
		sinks = append(sinks, NewMCPNotifier(mcp))
	}

	if len(sinks) == 0 {
		slog.Warn("no notification sinks configured, falling back to log output")
		sinks = append(sinks, NewLogNotifier(nil))
	}

	slog.Info("notification sinks ready", "count", len(sinks))
	return NewRateLimited(NewHub(sinks...), cfg.RatePerSec, cfg.Burst), nil
}
