package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/nudge/internal/task"
)

const window = 24 * time.Hour

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func seeded(ids ...string) *Tracker {
	tr := New()
	for _, id := range ids {
		tr.add(id)
	}
	return tr
}

func due(id string, in time.Duration) task.Task {
	return task.Task{ID: id, Title: "Todo " + id, Deadline: now.Add(in)}
}

// recorder collects notify calls and fails for IDs listed in fail.
type recorder struct {
	calls []string
	fail  map[string]error
}

func (r *recorder) notify(_ context.Context, t task.Task) error {
	r.calls = append(r.calls, t.ID)
	if err, ok := r.fail[t.ID]; ok {
		return err
	}
	return nil
}

// --- ShouldNotify ---

func TestShouldNotify_WithinWindowAndUnknown_ReturnsTrue(t *testing.T) {
	t.Parallel()
	tr := New()

	for _, in := range []time.Duration{0, time.Minute, 12 * time.Hour, window} {
		assert.True(t, tr.ShouldNotify(due("1", in), now, window), "deadline in %s", in)
	}
}

func TestShouldNotify_PastDue_ReturnsFalse(t *testing.T) {
	t.Parallel()

	assert.False(t, New().ShouldNotify(due("1", -time.Second), now, window))
	assert.False(t, seeded("1").ShouldNotify(due("1", -time.Hour), now, window))
}

func TestShouldNotify_BeyondWindow_ReturnsFalse(t *testing.T) {
	t.Parallel()

	assert.False(t, New().ShouldNotify(due("1", window+time.Second), now, window))
}

func TestShouldNotify_AlreadyNotifiedInWindow_ReturnsFalse(t *testing.T) {
	t.Parallel()
	tr := seeded("1")

	assert.False(t, tr.ShouldNotify(due("1", time.Hour), now, window))
	assert.False(t, tr.ShouldNotify(due("1", 0), now, window))
}

func TestShouldNotify_ZeroWindow_OnlyExactDeadline(t *testing.T) {
	t.Parallel()
	tr := New()

	assert.True(t, tr.ShouldNotify(due("1", 0), now, 0))
	assert.False(t, tr.ShouldNotify(due("1", time.Nanosecond), now, 0))
}

// --- DidMoveOutOfWindow ---

func TestDidMoveOutOfWindow_NotifiedAndPushedOut_ReturnsTrue(t *testing.T) {
	t.Parallel()
	tr := seeded("1")

	assert.True(t, tr.DidMoveOutOfWindow(due("1", 48*time.Hour), now, window))
	assert.True(t, tr.DidMoveOutOfWindow(due("1", window), now, window), "window edge counts as moved out")
}

func TestDidMoveOutOfWindow_NotifiedStillInside_ReturnsFalse(t *testing.T) {
	t.Parallel()
	tr := seeded("1")

	assert.False(t, tr.DidMoveOutOfWindow(due("1", window-time.Second), now, window))
	assert.False(t, tr.DidMoveOutOfWindow(due("1", -time.Hour), now, window))
}

func TestDidMoveOutOfWindow_Unknown_ReturnsFalse(t *testing.T) {
	t.Parallel()

	assert.False(t, New().DidMoveOutOfWindow(due("1", 48*time.Hour), now, window))
}

// --- ReconcileDeleted ---

func TestReconcileDeleted_RemovesMissingIDs(t *testing.T) {
	t.Parallel()
	tr := seeded("1", "2", "3")

	pruned := tr.ReconcileDeleted([]task.Task{{ID: "1"}, {ID: "2"}})

	assert.Equal(t, []string{"3"}, pruned)
	assert.Equal(t, []string{"1", "2"}, tr.Notified())
}

func TestReconcileDeleted_PreservesOrder(t *testing.T) {
	t.Parallel()
	tr := seeded("c", "a", "x", "b")

	tr.ReconcileDeleted([]task.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	assert.Equal(t, []string{"c", "a", "b"}, tr.Notified())
}

func TestReconcileDeleted_Idempotent(t *testing.T) {
	t.Parallel()
	current := []task.Task{{ID: "2"}, {ID: "9"}}
	once := seeded("1", "2", "3")
	twice := seeded("1", "2", "3")

	once.ReconcileDeleted(current)
	twice.ReconcileDeleted(current)
	again := twice.ReconcileDeleted(current)

	assert.Empty(t, again)
	assert.Equal(t, once.Notified(), twice.Notified())
}

// --- Evaluate ---

func TestEvaluate_ScenarioA_NotifiesTaskDueNow(t *testing.T) {
	t.Parallel()
	tr := New()
	rec := &recorder{}

	rep := tr.Evaluate(context.Background(), []task.Task{due("1", 0)}, now, window, rec.notify)

	assert.Equal(t, []string{"1"}, rec.calls)
	assert.Equal(t, []string{"1"}, rep.Notified)
	assert.True(t, tr.Contains("1"))
	assert.True(t, rep.OK())
}

func TestEvaluate_ScenarioB_SecondPassDoesNotRenotify(t *testing.T) {
	t.Parallel()
	tr := New()
	rec := &recorder{}
	tasks := []task.Task{due("1", 0)}

	tr.Evaluate(context.Background(), tasks, now, window, rec.notify)
	rep := tr.Evaluate(context.Background(), tasks, now, window, rec.notify)

	assert.Equal(t, []string{"1"}, rec.calls, "notify must fire exactly once")
	assert.Empty(t, rep.Notified)
	assert.False(t, tr.ShouldNotify(tasks[0], now, window))
}

func TestEvaluate_ScenarioC_DeadlinePushedOutRearms(t *testing.T) {
	t.Parallel()
	tr := New()
	rec := &recorder{}

	tr.Evaluate(context.Background(), []task.Task{due("1", time.Hour)}, now, window, rec.notify)
	require.True(t, tr.Contains("1"))

	rep := tr.Evaluate(context.Background(), []task.Task{due("1", 48*time.Hour)}, now, window, rec.notify)

	assert.Equal(t, []string{"1"}, rep.Rearmed)
	assert.False(t, tr.Contains("1"))
}

func TestEvaluate_ScenarioD_PrunesDeletedTask(t *testing.T) {
	t.Parallel()
	tr := seeded("A")
	rec := &recorder{}

	tr.Evaluate(context.Background(), []task.Task{due("A", time.Hour), due("B", time.Hour)}, now, window, rec.notify)
	require.Equal(t, []string{"A", "B"}, tr.Notified())

	rep := tr.Evaluate(context.Background(), []task.Task{due("B", time.Hour)}, now, window, rec.notify)

	assert.Equal(t, []string{"A"}, rep.Pruned)
	assert.Equal(t, []string{"B"}, tr.Notified())
}

func TestEvaluate_RoundTrip_ReentersWindowAndNotifiesAgain(t *testing.T) {
	t.Parallel()
	tr := New()
	rec := &recorder{}
	ctx := context.Background()

	tr.Evaluate(ctx, []task.Task{due("1", time.Hour)}, now, window, rec.notify)
	tr.Evaluate(ctx, []task.Task{due("1", 72*time.Hour)}, now, window, rec.notify)
	assert.False(t, tr.Contains("1"))

	rep := tr.Evaluate(ctx, []task.Task{due("1", 2*time.Hour)}, now, window, rec.notify)

	assert.Equal(t, []string{"1"}, rep.Notified)
	assert.Equal(t, []string{"1", "1"}, rec.calls)
	assert.True(t, tr.Contains("1"))
}

func TestEvaluate_NotifyFailure_DoesNotMarkAndContinues(t *testing.T) {
	t.Parallel()
	tr := New()
	boom := errors.New("smtp down")
	rec := &recorder{fail: map[string]error{"2": boom}}

	rep := tr.Evaluate(context.Background(),
		[]task.Task{due("1", time.Hour), due("2", time.Hour), due("3", time.Hour)},
		now, window, rec.notify)

	assert.Equal(t, []string{"1", "2", "3"}, rec.calls)
	assert.Equal(t, []string{"1", "3"}, tr.Notified())
	assert.False(t, rep.OK())
	assert.Equal(t, []string{"2"}, rep.FailedIDs())
	assert.ErrorIs(t, rep.Failed[0].Err, boom)

	// the failed task is retried on the next pass
	rec.fail = nil
	rep = tr.Evaluate(context.Background(),
		[]task.Task{due("1", time.Hour), due("2", time.Hour), due("3", time.Hour)},
		now, window, rec.notify)
	assert.Equal(t, []string{"2"}, rep.Notified)
}

func TestEvaluate_MalformedTaskSkipped(t *testing.T) {
	t.Parallel()
	tr := New()
	rec := &recorder{}

	rep := tr.Evaluate(context.Background(),
		[]task.Task{{Title: "no id", Deadline: now}, {ID: "2"}, due("3", 0)},
		now, window, rec.notify)

	assert.Equal(t, []string{"3"}, rec.calls)
	require.Len(t, rep.Malformed, 2)
	assert.ErrorIs(t, rep.Malformed[0].Err, task.ErrMalformed)
	assert.Equal(t, "2", rep.Malformed[1].TaskID)
}

func TestEvaluate_MalformedTaskWithIDIsNotPruned(t *testing.T) {
	t.Parallel()
	tr := seeded("2")

	rep := tr.Evaluate(context.Background(), []task.Task{{ID: "2"}}, now, window, (&recorder{}).notify)

	assert.Empty(t, rep.Pruned)
	assert.True(t, tr.Contains("2"))
}

func TestEvaluate_CancelledContextSkipsNotifyButReconciles(t *testing.T) {
	t.Parallel()
	tr := seeded("gone")
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := tr.Evaluate(ctx, []task.Task{due("1", 0)}, now, window, rec.notify)

	assert.Empty(t, rec.calls)
	assert.False(t, tr.Contains("1"))
	assert.ErrorIs(t, rep.Failed[0].Err, context.Canceled)
	assert.Equal(t, []string{"gone"}, rep.Pruned)
}

func TestEvaluate_MixedPass_ReportsEveryTransition(t *testing.T) {
	t.Parallel()
	tr := seeded("moved", "stale", "steady")
	rec := &recorder{}

	rep := tr.Evaluate(context.Background(), []task.Task{
		due("new", 3*time.Hour),
		due("moved", 30*24*time.Hour),
		due("steady", 5*time.Hour),
		due("far", 7*24*time.Hour),
		due("overdue", -time.Hour),
	}, now, window, rec.notify)

	want := Report{
		Evaluated: 5,
		Notified:  []string{"new"},
		Rearmed:   []string{"moved"},
		Pruned:    []string{"stale"},
	}
	if diff := cmp.Diff(want, rep, cmpopts.EquateEmpty(), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"steady", "new"}, tr.Notified())
}

func TestEvaluate_DuplicateIDsNotifyOnce(t *testing.T) {
	t.Parallel()
	tr := New()
	rec := &recorder{}

	tr.Evaluate(context.Background(), []task.Task{due("1", time.Hour), due("1", time.Hour)}, now, window, rec.notify)

	assert.Equal(t, []string{"1"}, rec.calls)
	assert.Equal(t, 1, tr.Len())
}

func TestReset_EmptiesSet(t *testing.T) {
	t.Parallel()
	tr := seeded("1", "2")

	tr.Reset()

	assert.Zero(t, tr.Len())
	assert.False(t, tr.Contains("1"))
	assert.Empty(t, tr.Notified())
}

func TestNotified_ReturnsCopy(t *testing.T) {
	t.Parallel()
	tr := seeded("1", "2")

	snap := tr.Notified()
	snap[0] = "mutated"

	assert.Equal(t, []string{"1", "2"}, tr.Notified())
}
