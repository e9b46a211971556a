package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/btouchard/nudge/internal/config"
	"github.com/btouchard/nudge/internal/task"
)

const maxBodySize = 8 << 20

// HTTPSource fetches tasks from a JSON HTTP endpoint.
type HTTPSource struct {
	client  *http.Client
	url     string
	headers map[string]string
	fields  config.FieldsConfig
	loc     *time.Location
}

// NewHTTP creates an HTTPSource. Authentication, in order of preference:
// OAuth2 client credentials, static bearer token, none.
func NewHTTP(ctx context.Context, cfg config.SourceConfig, loc *time.Location) *HTTPSource {
	var client *http.Client
	switch {
	case cfg.OAuth2.TokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		client = cc.Client(ctx)
	case cfg.Token != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	default:
		client = &http.Client{}
	}
	client.Timeout = cfg.Timeout

	if loc == nil {
		loc = time.UTC
	}
	return &HTTPSource{
		client:  client,
		url:     cfg.URL,
		headers: cfg.Headers,
		fields:  cfg.Fields,
		loc:     loc,
	}
}

// Fetch downloads and decodes the task list.
func (s *HTTPSource) Fetch(ctx context.Context) ([]task.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fetchError("unexpected status %d from %s", resp.StatusCode, s.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetch, err)
	}

	return s.decode(body)
}

func (s *HTTPSource) decode(body []byte) ([]task.Task, error) {
	if !gjson.ValidBytes(body) {
		return nil, fetchError("response is not valid JSON")
	}

	list := gjson.ParseBytes(body)
	if s.fields.List != "" {
		list = list.Get(s.fields.List)
	}
	if !list.IsArray() {
		return nil, fetchError("expected a JSON array of tasks, got %s", list.Type)
	}

	var tasks []task.Task
	list.ForEach(func(_, item gjson.Result) bool {
		t := task.Task{
			ID:    item.Get(s.fields.ID).String(),
			Title: item.Get(s.fields.Title).String(),
		}
		if v := item.Get(s.fields.Deadline); v.Exists() && v.Type != gjson.Null {
			deadline, err := ParseDeadline(v, s.loc)
			if err != nil {
				slog.Warn("ignoring unparseable deadline", "task_id", t.ID, "error", err)
			} else {
				t.Deadline = deadline
			}
		}
		tasks = append(tasks, t)
		return true
	})

	return tasks, nil
}
