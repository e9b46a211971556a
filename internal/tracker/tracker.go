package tracker

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/btouchard/nudge/internal/task"
)

// NotifyFunc delivers the deadline notification for one task.
// A non-nil error leaves the task unmarked so the next pass retries it.
type NotifyFunc func(ctx context.Context, t task.Task) error

// Tracker owns the set of task IDs that have already been notified.
//
// Mutation happens only inside Evaluate, Reset and ReconcileDeleted; callers
// must not run two passes at once. The mutex keeps read-only snapshots taken
// from other goroutines (status endpoints) consistent with a running pass.
type Tracker struct {
	mu       sync.RWMutex
	order    []string
	notified map[string]struct{}
}

// New creates a Tracker with an empty notified set.
func New() *Tracker {
	return &Tracker{notified: make(map[string]struct{})}
}

// ShouldNotify reports whether t is not yet notified and its deadline lies
// within [now, now+window], both bounds inclusive.
func (tr *Tracker) ShouldNotify(t task.Task, now time.Time, window time.Duration) bool {
	if tr.Contains(t.ID) {
		return false
	}
	d := t.Until(now)
	return d >= 0 && d <= window
}

// DidMoveOutOfWindow reports whether t was notified and its deadline has since
// been pushed to or beyond the window edge.
func (tr *Tracker) DidMoveOutOfWindow(t task.Task, now time.Time, window time.Duration) bool {
	if !tr.Contains(t.ID) {
		return false
	}
	return t.Until(now) >= window
}

// ReconcileDeleted drops every notified ID that is absent from current and
// returns the dropped IDs. Remaining IDs keep their relative order.
func (tr *Tracker) ReconcileDeleted(current []task.Task) []string {
	present := make(map[string]struct{}, len(current))
	for _, t := range current {
		if t.ID != "" {
			present[t.ID] = struct{}{}
		}
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	var pruned []string
	kept := tr.order[:0]
	for _, id := range tr.order {
		if _, ok := present[id]; ok {
			kept = append(kept, id)
			continue
		}
		delete(tr.notified, id)
		pruned = append(pruned, id)
	}
	tr.order = kept
	return pruned
}

// Evaluate runs one pass over tasks in list order: notify tasks entering the
// window, re-arm notified tasks whose deadline moved out, then prune IDs that
// vanished upstream. The returned Report describes every transition.
func (tr *Tracker) Evaluate(ctx context.Context, tasks []task.Task, now time.Time, window time.Duration, notify NotifyFunc) Report {
	rep := Report{Evaluated: len(tasks)}

	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			slog.Warn("skipping malformed task", "task_id", t.ID, "error", err)
			rep.Malformed = append(rep.Malformed, Failure{TaskID: t.ID, Err: err})
			continue
		}

		switch {
		case tr.ShouldNotify(t, now, window):
			if err := ctx.Err(); err != nil {
				rep.Failed = append(rep.Failed, Failure{TaskID: t.ID, Err: err})
				continue
			}
			if err := notify(ctx, t); err != nil {
				slog.Error("deadline notification failed",
					"task_id", t.ID,
					"deadline", t.Deadline,
					"error", err)
				rep.Failed = append(rep.Failed, Failure{TaskID: t.ID, Err: err})
				continue
			}
			tr.add(t.ID)
			rep.Notified = append(rep.Notified, t.ID)
			slog.Info("deadline notification sent",
				"task_id", t.ID,
				"remaining", t.Until(now).Round(time.Second))

		case tr.DidMoveOutOfWindow(t, now, window):
			tr.remove(t.ID)
			rep.Rearmed = append(rep.Rearmed, t.ID)
			slog.Info("deadline moved out of window, re-armed",
				"task_id", t.ID,
				"deadline", t.Deadline)
		}
	}

	rep.Pruned = tr.ReconcileDeleted(tasks)
	for _, id := range rep.Pruned {
		slog.Debug("forgetting deleted task", "task_id", id)
	}
	return rep
}

// Contains reports whether id is in the notified set.
func (tr *Tracker) Contains(id string) bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	_, ok := tr.notified[id]
	return ok
}

// Notified returns a copy of the notified IDs in insertion order.
func (tr *Tracker) Notified() []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return slices.Clone(tr.order)
}

// Len returns the number of notified IDs.
func (tr *Tracker) Len() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.order)
}

// Reset empties the notified set.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	tr.order = nil
	tr.notified = make(map[string]struct{})
	tr.mu.Unlock()
}

func (tr *Tracker) add(id string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.notified[id]; ok {
		return
	}
	tr.notified[id] = struct{}{}
	tr.order = append(tr.order, id)
}

func (tr *Tracker) remove(id string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.notified[id]; !ok {
		return
	}
	delete(tr.notified, id)
	tr.order = slices.DeleteFunc(tr.order, func(s string) bool { return s == id })
}
