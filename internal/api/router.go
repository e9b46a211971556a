package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/btouchard/nudge/internal/auth"
	"github.com/btouchard/nudge/internal/config"
	"github.com/btouchard/nudge/internal/poller"
	"github.com/btouchard/nudge/internal/tracker"
)

// Poller is the part of the poller the API drives.
type Poller interface {
	Status() poller.Status
	RunPass(ctx context.Context) (poller.PassResult, error)
}

// Deps holds what the router needs.
type Deps struct {
	Poller    Poller
	MCP       http.Handler
	Tokens    *auth.Verifier
	RateLimit config.RateLimitConfig
	Version   string
}

// NewRouter builds the HTTP API. Everything except /health requires a
// bearer API token.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": d.Version})
	})

	r.Group(func(r chi.Router) {
		r.Use(IPRateLimit(d.RateLimit.RequestsPerMinute, d.RateLimit.Burst))
		r.Use(BearerAuth(d.Tokens))

		r.Get("/status", handleStatus(d.Poller))
		r.Post("/passes", handleRunPass(d.Poller))
		if d.MCP != nil {
			r.Handle("/mcp", d.MCP)
		}
	})

	return r
}

type failureJSON struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

type passJSON struct {
	ID         string        `json:"id"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Window     string        `json:"window"`
	Fetched    int           `json:"fetched"`
	Notified   []string      `json:"notified"`
	Rearmed    []string      `json:"rearmed"`
	Pruned     []string      `json:"pruned"`
	Failed     []failureJSON `json:"failed"`
	Malformed  []failureJSON `json:"malformed"`
	Error      string        `json:"error,omitempty"`
}

type statusJSON struct {
	Scheduled      bool       `json:"scheduled"`
	PassInProgress bool       `json:"pass_in_progress"`
	Window         string     `json:"window"`
	WindowSeconds  float64    `json:"window_seconds"`
	Schedule       string     `json:"schedule"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	Notified       []string   `json:"notified"`
	LastPass       *passJSON  `json:"last_pass,omitempty"`
}

func toPassJSON(res poller.PassResult) *passJSON {
	p := &passJSON{
		ID:         res.ID,
		Status:     res.Status(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Window:     res.Window.String(),
		Fetched:    res.Fetched,
		Notified:   nonNil(res.Report.Notified),
		Rearmed:    nonNil(res.Report.Rearmed),
		Pruned:     nonNil(res.Report.Pruned),
		Failed:     toFailures(res.Report.Failed),
		Malformed:  toFailures(res.Report.Malformed),
	}
	if res.FetchErr != nil {
		p.Error = res.FetchErr.Error()
	}
	return p
}

func toFailures(in []tracker.Failure) []failureJSON {
	out := make([]failureJSON, 0, len(in))
	for _, f := range in {
		out = append(out, failureJSON{TaskID: f.TaskID, Error: f.Err.Error()})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func handleStatus(p Poller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := p.Status()
		out := statusJSON{
			Scheduled:      st.Scheduled,
			PassInProgress: st.PassInProgress,
			Window:         st.Window.String(),
			WindowSeconds:  st.Window.Seconds(),
			Schedule:       st.Schedule.String(),
			Notified:       nonNil(st.Notified),
		}
		if !st.NextRun.IsZero() {
			next := st.NextRun
			out.NextRun = &next
		}
		if st.LastPass != nil {
			out.LastPass = toPassJSON(*st.LastPass)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleRunPass(p Poller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A client hanging up must not abort deliveries mid-pass.
		res, err := p.RunPass(context.WithoutCancel(r.Context()))
		switch {
		case errors.Is(err, poller.ErrPassInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case err != nil:
			writeJSON(w, http.StatusBadGateway, toPassJSON(res))
		default:
			writeJSON(w, http.StatusOK, toPassJSON(res))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}
