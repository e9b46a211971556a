package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btouchard/nudge/internal/task"
)

// ErrDelivery wraps every failure to hand a notification to a sink.
var ErrDelivery = errors.New("notification delivery failed")

// Event describes a task whose deadline entered the notification window.
type Event struct {
	TaskID    string
	Title     string
	Deadline  time.Time
	Remaining time.Duration
}

// NewEvent builds the Event for t as seen at now.
func NewEvent(t task.Task, now time.Time) Event {
	return Event{
		TaskID:    t.ID,
		Title:     t.Label(),
		Deadline:  t.Deadline,
		Remaining: t.Until(now),
	}
}

// Headline is the one-line summary shared by every sink.
func (e Event) Headline() string {
	return fmt.Sprintf("Deadline approaching: %s", e.Title)
}

// Body is the human-readable detail line shared by every sink.
func (e Event) Body() string {
	return fmt.Sprintf("%s is due in %s (%s)",
		e.Title, task.FormatRemaining(e.Remaining), e.Deadline.Format("Mon 02 Jan 15:04 MST"))
}

// Notifier delivers deadline notifications. Implementations must return an
// error when the notification was not handed off, so the task is retried.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Hub delivers events to every registered notifier in order.
//
// Delivery is all-or-nothing per event: when one sink fails the event fails,
// the task stays unmarked, and the next pass sends it again to every sink,
// including the ones that already accepted it. A sink that stays down
// therefore causes repeated notifications on the healthy sinks until it
// recovers or is removed from the configuration.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Len returns the number of registered notifiers.
func (h *Hub) Len() int {
	return len(h.notifiers)
}

// Notify sends the event to all registered notifiers. Every sink is tried;
// the returned error joins all sink failures and wraps ErrDelivery.
func (h *Hub) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range h.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
}
