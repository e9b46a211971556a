package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/btouchard/nudge/internal/notify"
	"github.com/btouchard/nudge/internal/source"
	"github.com/btouchard/nudge/internal/store"
	"github.com/btouchard/nudge/internal/task"
	"github.com/btouchard/nudge/internal/tracker"
)

// ErrPassInProgress is returned by RunPass when another pass holds the lock.
var ErrPassInProgress = errors.New("a pass is already running")

// Recorder persists the audit trail of passes. Defined consumer-side.
type Recorder interface {
	RecordPass(p *store.PassRecord) error
	RecordNotification(n *store.NotificationRecord) error
}

// Deps wires a Poller. Source, Tracker and Notifier are required.
type Deps struct {
	Source   source.Source
	Tracker  *tracker.Tracker
	Notifier notify.Notifier
	Recorder Recorder
	Clock    Clock

	Window        time.Duration
	NotifyTimeout time.Duration
	Schedule      Schedule
	Location      *time.Location
}

// PassResult describes one pass.
type PassResult struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Window     time.Duration
	Fetched    int
	Skipped    bool
	FetchErr   error
	Report     tracker.Report
}

// Status maps the result to the stored pass status.
func (r PassResult) Status() string {
	switch {
	case r.Skipped:
		return store.PassSkipped
	case !r.Report.OK():
		return store.PassPartial
	default:
		return store.PassOK
	}
}

// Status is a point-in-time view of the poller.
type Status struct {
	Scheduled      bool
	PassInProgress bool
	Window         time.Duration
	Schedule       Schedule
	NextRun        time.Time
	LastPass       *PassResult
	Notified       []string
}

// Poller runs passes: fetch the task list, evaluate it against the tracker,
// deliver notifications. Passes never overlap.
type Poller struct {
	src           source.Source
	tracker       *tracker.Tracker
	notifier      notify.Notifier
	recorder      Recorder
	clock         Clock
	notifyTimeout time.Duration
	loc           *time.Location

	passMu  sync.Mutex
	running atomic.Bool
	startup sync.WaitGroup

	mu       sync.RWMutex
	window   time.Duration
	schedule Schedule
	last     *PassResult
	cron     *cron.Cron
	entry    cron.EntryID
	baseCtx  context.Context
}

// New creates a Poller. It does not start the scheduler.
func New(d Deps) *Poller {
	clock := d.Clock
	if clock == nil {
		clock = SystemClock
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &Poller{
		src:           d.Source,
		tracker:       d.Tracker,
		notifier:      d.Notifier,
		recorder:      d.Recorder,
		clock:         clock,
		notifyTimeout: d.NotifyTimeout,
		loc:           loc,
		window:        d.Window,
		schedule:      d.Schedule,
	}
}

// RunPass runs one pass now. It returns ErrPassInProgress without doing
// anything when a pass is already running, and the fetch error when the
// source could not be read; in that case the tracker is left untouched.
func (p *Poller) RunPass(ctx context.Context) (PassResult, error) {
	if !p.passMu.TryLock() {
		return PassResult{}, ErrPassInProgress
	}
	defer p.passMu.Unlock()

	p.running.Store(true)
	defer p.running.Store(false)

	res, attempts := p.pass(ctx)

	p.record(res, attempts)

	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()

	return res, res.FetchErr
}

func (p *Poller) pass(ctx context.Context) (PassResult, []store.NotificationRecord) {
	now := p.clock.Now()
	res := PassResult{
		ID:        uuid.NewString(),
		StartedAt: now,
		Window:    p.Window(),
	}
	log := slog.With("pass_id", res.ID)

	tasks, err := p.src.Fetch(ctx)
	if err != nil {
		if !errors.Is(err, source.ErrFetch) {
			err = fmt.Errorf("%w: %w", source.ErrFetch, err)
		}
		log.Warn("task fetch failed, skipping pass", "error", err)
		res.Skipped = true
		res.FetchErr = err
		res.FinishedAt = p.clock.Now()
		return res, nil
	}
	if len(tasks) == 0 {
		log.Info("source returned no tasks, skipping pass")
		res.Skipped = true
		res.FinishedAt = p.clock.Now()
		return res, nil
	}

	var attempts []store.NotificationRecord
	deliver := func(ctx context.Context, t task.Task) error {
		if p.notifyTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.notifyTimeout)
			defer cancel()
		}

		err := p.notifier.Notify(ctx, notify.NewEvent(t, now))

		rec := store.NotificationRecord{
			PassID:    res.ID,
			TaskID:    t.ID,
			Title:     t.Label(),
			Deadline:  t.Deadline,
			Status:    store.NotificationSent,
			CreatedAt: p.clock.Now(),
		}
		if err != nil {
			rec.Status = store.NotificationFailed
			rec.Error = err.Error()
		}
		attempts = append(attempts, rec)
		return err
	}

	res.Fetched = len(tasks)
	res.Report = p.tracker.Evaluate(ctx, tasks, now, res.Window, deliver)
	res.FinishedAt = p.clock.Now()

	log.Info("pass complete",
		"fetched", res.Fetched,
		"notified", len(res.Report.Notified),
		"rearmed", len(res.Report.Rearmed),
		"pruned", len(res.Report.Pruned),
		"failed", len(res.Report.Failed),
		"malformed", len(res.Report.Malformed))

	return res, attempts
}

// record writes the pass audit trail. Failures are logged only: the store
// is history, not state.
func (p *Poller) record(res PassResult, attempts []store.NotificationRecord) {
	if p.recorder == nil {
		return
	}

	rec := &store.PassRecord{
		ID:         res.ID,
		Status:     res.Status(),
		Fetched:    res.Fetched,
		Notified:   len(res.Report.Notified),
		Rearmed:    len(res.Report.Rearmed),
		Pruned:     len(res.Report.Pruned),
		Failed:     len(res.Report.Failed),
		Malformed:  len(res.Report.Malformed),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.FetchErr != nil {
		rec.Error = res.FetchErr.Error()
	}
	if err := p.recorder.RecordPass(rec); err != nil {
		slog.Error("recording pass failed", "pass_id", res.ID, "error", err)
		return
	}

	for i := range attempts {
		if err := p.recorder.RecordNotification(&attempts[i]); err != nil {
			slog.Error("recording notification failed",
				"pass_id", res.ID,
				"task_id", attempts[i].TaskID,
				"error", err)
		}
	}
}

// Start launches the scheduler. Scheduled passes run with ctx until Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return errors.New("poller already started")
	}

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(p.loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	sched, err := p.schedule.parse()
	if err != nil {
		return err
	}

	p.baseCtx = ctx
	p.entry = c.Schedule(sched, cron.FuncJob(p.tick))
	p.cron = c
	c.Start()

	slog.Info("poller started",
		"schedule", p.schedule.String(),
		"window", p.window,
		"tz", p.loc.String())

	if p.schedule.RunOnStart {
		p.startup.Add(1)
		go func() {
			defer p.startup.Done()
			p.tick()
		}()
	}
	return nil
}

// Stop halts the scheduler and waits for running scheduled passes,
// including the start-up pass.
func (p *Poller) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	p.startup.Wait()
	slog.Info("poller stopped")
}

func (p *Poller) tick() {
	p.mu.RLock()
	ctx := p.baseCtx
	p.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	if _, err := p.RunPass(ctx); errors.Is(err, ErrPassInProgress) {
		slog.Debug("scheduled pass skipped, previous pass still running")
	}
}

// Apply changes the window and schedule. The window takes effect on the next
// pass; a new trigger replaces the scheduled entry. An invalid schedule is
// rejected and leaves the current one in place.
func (p *Poller) Apply(window time.Duration, schedule Schedule) error {
	if window < 0 {
		return fmt.Errorf("window must be >= 0, got %s", window)
	}
	sched, err := schedule.parse()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if window != p.window {
		slog.Info("notification window changed", "from", p.window, "to", window)
		p.window = window
	}
	if p.schedule.sameTrigger(schedule) {
		p.schedule = schedule
		return nil
	}

	if p.cron != nil {
		p.cron.Remove(p.entry)
		p.entry = p.cron.Schedule(sched, cron.FuncJob(p.tick))
	}
	slog.Info("poll schedule changed", "from", p.schedule.String(), "to", schedule.String())
	p.schedule = schedule
	return nil
}

// Window returns the current notification window.
func (p *Poller) Window() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.window
}

// Status returns a snapshot of the poller and its tracker.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Status{
		Scheduled:      p.cron != nil,
		PassInProgress: p.running.Load(),
		Window:         p.window,
		Schedule:       p.schedule,
		Notified:       p.tracker.Notified(),
	}
	if p.last != nil {
		last := *p.last
		st.LastPass = &last
	}
	if p.cron != nil {
		st.NextRun = p.cron.Entry(p.entry).Next
	}
	return st
}
