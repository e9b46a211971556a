package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier; a nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.LogAttrs(ctx, slog.LevelWarn, event.Headline(),
		slog.String("task_id", event.TaskID),
		slog.Time("deadline", event.Deadline),
		slog.Duration("remaining", event.Remaining))
	return nil
}
