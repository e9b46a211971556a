package task

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned by Validate for tasks missing an ID or a deadline.
var ErrMalformed = errors.New("malformed task")

// Task is one upstream task-list entry, rebuilt from the source on every pass.
type Task struct {
	ID       string
	Title    string
	Deadline time.Time
}

// Validate reports whether the task carries the fields the tracker needs.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if t.Deadline.IsZero() {
		return fmt.Errorf("%w: task %q has no deadline", ErrMalformed, t.ID)
	}
	return nil
}

// Until returns the time left before the deadline, negative once it has passed.
func (t Task) Until(now time.Time) time.Duration {
	return t.Deadline.Sub(now)
}

// Label returns the title, falling back to the ID for untitled tasks.
func (t Task) Label() string {
	if t.Title != "" {
		return t.Title
	}
	return t.ID
}

// IDs returns the identifiers of tasks in list order.
func IDs(tasks []Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// FormatRemaining renders a duration the way notifications display it
// ("2h15m", "45m", "due now").
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "due now"
	}
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "<1m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h >= 24:
		days := h / 24
		h %= 24
		if h == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd%dh", days, h)
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
