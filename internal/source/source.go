package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btouchard/nudge/internal/config"
	"github.com/btouchard/nudge/internal/task"
)

// ErrFetch marks a task source that could not produce a task list.
// A pass that sees it must leave the tracker untouched.
var ErrFetch = errors.New("fetching tasks")

// Source returns the current upstream task list.
type Source interface {
	Fetch(ctx context.Context) ([]task.Task, error)
}

// New builds the Source selected by cfg.Type. Zone-less deadlines are
// interpreted in loc.
func New(ctx context.Context, cfg config.SourceConfig, loc *time.Location) (Source, error) {
	switch cfg.Type {
	case config.SourceHTTP:
		return NewHTTP(ctx, cfg, loc), nil
	case config.SourceGoogleTasks:
		return NewGoogleTasks(ctx, cfg.Google, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

func fetchError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFetch, fmt.Sprintf(format, args...))
}
