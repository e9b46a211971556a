package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gtasks "google.golang.org/api/tasks/v1"

	"github.com/btouchard/nudge/internal/config"
	"github.com/btouchard/nudge/internal/task"
)

// GoogleTasksSource reads open tasks from one Google Tasks list.
type GoogleTasksSource struct {
	srv  *gtasks.Service
	list string
}

// NewGoogleTasks authenticates with the stored OAuth token and builds the
// Tasks API client. The token must have been obtained beforehand; a
// background poller cannot run the interactive consent flow.
func NewGoogleTasks(ctx context.Context, cfg config.GoogleTasksConfig, timeout time.Duration) (*GoogleTasksSource, error) {
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials %s: %w", cfg.CredentialsFile, err)
	}

	oc, err := google.ConfigFromJSON(creds, gtasks.TasksReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading google token %s: %w", cfg.TokenFile, err)
	}

	client := oc.Client(ctx, tok)
	client.Timeout = timeout

	return NewGoogleTasksWithOptions(ctx, cfg.TaskList, option.WithHTTPClient(client))
}

// NewGoogleTasksWithOptions builds the source from explicit client options.
func NewGoogleTasksWithOptions(ctx context.Context, list string, opts ...option.ClientOption) (*GoogleTasksSource, error) {
	srv, err := gtasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating tasks service: %w", err)
	}
	return &GoogleTasksSource{srv: srv, list: list}, nil
}

// Fetch lists open tasks. Tasks without a due date cannot approach a
// deadline and are left out.
func (s *GoogleTasksSource) Fetch(ctx context.Context) ([]task.Task, error) {
	var out []task.Task

	call := s.srv.Tasks.List(s.list).
		ShowCompleted(false).
		ShowHidden(false).
		MaxResults(100)

	err := call.Pages(ctx, func(page *gtasks.Tasks) error {
		for _, item := range page.Items {
			if t, ok := convertGoogleTask(item); ok {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: google tasks: %w", ErrFetch, err)
	}
	if out == nil {
		out = []task.Task{}
	}
	return out, nil
}

func convertGoogleTask(item *gtasks.Task) (task.Task, bool) {
	if item == nil || item.Deleted || item.Status == "completed" {
		return task.Task{}, false
	}
	if item.Due == "" {
		slog.Debug("skipping google task without due date", "task_id", item.Id)
		return task.Task{}, false
	}

	t := task.Task{ID: item.Id, Title: item.Title}
	due, err := time.Parse(time.RFC3339, item.Due)
	if err != nil {
		slog.Warn("ignoring unparseable google due date", "task_id", item.Id, "due", item.Due, "error", err)
	} else {
		t.Deadline = due
	}
	return t, true
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}
