// Package timer drives the work/break countdown for the active task. The
// remaining time is always derived from the wall-clock instant the current
// phase started, so late or missed ticks never drift.
package timer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/journey"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/metrics"
	"github.com/nadmax/pomodoro/internal/notify"
	"github.com/nadmax/pomodoro/internal/store"
	"github.com/nadmax/pomodoro/internal/task"
)

const (
	DefaultStaleAfter      = 30 * time.Minute
	DefaultPersistInterval = 10 * time.Second
	DefaultFreeSessions    = 4
	DefaultTickInterval    = time.Second
)

var errTaskGone = errors.New("active task no longer exists")

// TaskStore is the part of the task store the engine needs.
type TaskStore interface {
	Get(id string) (task.Task, bool)
	Apply(ctx context.Context, fn func(tasks *[]task.Task) error) ([]task.Task, error)
}

type Options struct {
	Clock           Clock
	Journey         journey.Journey
	Notifier        notify.Notifier
	State           store.LocalCache
	StaleAfter      time.Duration
	PersistInterval time.Duration
	TickInterval    time.Duration
	FreeSessions    int
	Logger          *log.Logger
}

type Engine struct {
	tasks    TaskStore
	clock    Clock
	journey  journey.Journey
	notifier notify.Notifier
	states   store.LocalCache
	opts     Options
	l        *log.Logger

	mu        sync.Mutex
	state     State
	phase     Phase
	phaseLeft time.Duration
	anchor    time.Time
	completed int
	total     int
	taskID    string
}

func New(tasks TaskStore, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Journey == nil {
		opts.Journey = journey.NewMemory(nil, opts.Clock.Now)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	if opts.State == nil {
		opts.State = store.NewMemoryCache()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.PersistInterval <= 0 {
		opts.PersistInterval = DefaultPersistInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.FreeSessions <= 0 {
		opts.FreeSessions = DefaultFreeSessions
	}

	return &Engine{
		tasks:     tasks,
		clock:     opts.Clock,
		journey:   opts.Journey,
		notifier:  opts.Notifier,
		states:    opts.State,
		opts:      opts,
		l:         logging.OrDiscard(opts.Logger),
		state:     StateIdle,
		phase:     PhaseWork,
		phaseLeft: task.WorkDuration,
		total:     opts.FreeSessions,
	}
}

// StartTask attaches the task and starts its next work session from a full
// countdown.
func (e *Engine) StartTask(ctx context.Context, id string) error {
	t, ok := e.tasks.Get(id)
	if !ok {
		return ErrTaskNotFound
	}
	if t.IsComplete() {
		return ErrTaskCompleted
	}

	e.mu.Lock()
	e.taskID = t.ID
	e.completed = t.CompletedSessions
	e.total = t.TotalSessions
	e.resetLocked()
	e.runLocked()
	e.mu.Unlock()

	e.l.Info("task started", "task", t.Name, "session", t.CompletedSessions+1, "of", t.TotalSessions)
	return nil
}

// Start begins or resumes the countdown. Once every session is exhausted, or
// the attached task was completed or deleted meanwhile, a new untracked cycle
// begins.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateRunning:
		return nil
	case StateCompleted:
		e.freeCycleLocked()
	case StateIdle:
		if e.completed >= e.total || !e.attachedPendingLocked() {
			e.freeCycleLocked()
		}
	}
	e.runLocked()
	e.l.Debug("timer started", "phase", e.phase, "left", e.phaseLeft)
	return nil
}

func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return ErrNoActiveTimer
	}
	e.phaseLeft = e.leftLocked(e.clock.Now())
	e.state = StatePaused
	metrics.SetTimerRunning(false)
	e.l.Debug("timer paused", "phase", e.phase, "left", e.phaseLeft)
	return nil
}

func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return ErrNoActiveTimer
	}
	e.runLocked()
	e.l.Debug("timer resumed", "phase", e.phase, "left", e.phaseLeft)
	return nil
}

// Reset returns to an idle work phase with a full countdown. The active
// task stays attached.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetLocked()
	e.l.Debug("timer reset")
	return nil
}

// Skip abandons the current phase without crediting it: work moves to
// break, break moves to the next work session.
func (e *Engine) Skip(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning && e.state != StatePaused {
		return ErrNoActiveTimer
	}
	metrics.RecordPhaseSkipped(string(e.phase))
	if e.phase == PhaseWork {
		e.phase = PhaseBreak
	} else {
		e.phase = PhaseWork
	}
	e.phaseLeft = e.phase.Duration()
	e.anchor = e.clock.Now()
	e.l.Debug("phase skipped", "now", e.phase)
	return nil
}

// Detach drops the task reference when the task is deleted. A running
// countdown keeps going as an untracked session.
func (e *Engine) Detach(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.taskID == id {
		e.taskID = ""
	}
}

// Tick recomputes the remaining time and performs every phase transition
// that is due.
func (e *Engine) Tick(ctx context.Context) Snapshot {
	now := e.clock.Now()

	e.mu.Lock()
	var fx effects
	e.advanceLocked(ctx, now, &fx)
	snap := e.snapshotLocked(now)
	e.mu.Unlock()

	e.apply(ctx, fx)
	return snap
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock.Now())
}

// ActiveTaskID returns the attached task, empty for free sessions.
func (e *Engine) ActiveTaskID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.taskID
}

func (e *Engine) runLocked() {
	e.state = StateRunning
	e.anchor = e.clock.Now()
	metrics.SetTimerRunning(true)
}

func (e *Engine) resetLocked() {
	e.state = StateIdle
	e.phase = PhaseWork
	e.phaseLeft = task.WorkDuration
	e.anchor = time.Time{}
	metrics.SetTimerRunning(false)
}

// attachedPendingLocked reports whether the attached task still exists with
// sessions left. Free cycles always count as pending.
func (e *Engine) attachedPendingLocked() bool {
	if e.taskID == "" {
		return true
	}
	t, ok := e.tasks.Get(e.taskID)
	return ok && !t.IsComplete()
}

func (e *Engine) freeCycleLocked() {
	e.taskID = ""
	e.completed = 0
	e.total = e.opts.FreeSessions
	e.resetLocked()
}

func (e *Engine) leftLocked(now time.Time) time.Duration {
	if e.state != StateRunning {
		return e.phaseLeft
	}
	left := e.phaseLeft - now.Sub(e.anchor)
	if left < 0 {
		return 0
	}
	return left
}

// advanceLocked runs every transition whose boundary lies at or before now.
// Each new phase starts at the instant the previous one ended.
func (e *Engine) advanceLocked(ctx context.Context, now time.Time, fx *effects) {
	for e.state == StateRunning {
		end := e.anchor.Add(e.phaseLeft)
		if now.Before(end) {
			return
		}
		e.finishPhaseLocked(ctx, end, fx)
	}
}

func (e *Engine) finishPhaseLocked(ctx context.Context, at time.Time, fx *effects) {
	if e.phase == PhaseBreak {
		if e.completed >= e.total {
			e.completeLocked()
			return
		}
		e.phase = PhaseWork
		e.phaseLeft = task.WorkDuration
		e.anchor = at
		fx.notify(e.event(notify.KindBreakOver, at))
		return
	}

	if more := e.creditLocked(ctx, at, fx); more {
		e.phase = PhaseBreak
		e.phaseLeft = task.BreakDuration
		e.anchor = at
		fx.notify(e.event(notify.KindBreakStarted, at))
		return
	}
	e.completeLocked()
}

func (e *Engine) completeLocked() {
	e.state = StateCompleted
	e.phase = PhaseWork
	e.phaseLeft = 0
	metrics.SetTimerRunning(false)
	e.l.Info("all sessions completed", "sessions", e.completed)
}

// creditLocked records one finished work session and reports whether more
// sessions remain.
func (e *Engine) creditLocked(ctx context.Context, at time.Time, fx *effects) bool {
	if e.taskID == "" {
		e.completed++
		fx.session(false)
		return e.completed < e.total
	}

	var (
		credited task.Task
		recorded bool
	)
	_, err := e.tasks.Apply(ctx, func(tasks *[]task.Task) error {
		i := task.IndexOf(*tasks, e.taskID)
		if i < 0 {
			return errTaskGone
		}
		recorded = (*tasks)[i].RecordSession()
		credited = (*tasks)[i].Clone()
		return nil
	})
	if err != nil {
		if !errors.Is(err, errTaskGone) {
			e.l.Warn("failed to record session", "task", e.taskID, "error", err)
		} else {
			e.l.Warn("active task was deleted, counting a free session", "task", e.taskID)
		}
		e.taskID = ""
		e.completed++
		fx.session(false)
		return e.completed < e.total
	}

	e.completed = credited.CompletedSessions
	e.total = credited.TotalSessions
	if !recorded {
		e.l.Warn("active task was already complete, counting a free session", "task", e.taskID)
		e.taskID = ""
		fx.session(false)
		return false
	}
	fx.session(true)
	if credited.IsComplete() {
		ev := e.event(notify.KindTaskCompleted, at)
		ev.TaskName = credited.Name
		fx.taskCompleted(ev)
		return false
	}
	return true
}

func (e *Engine) event(kind notify.Kind, at time.Time) notify.Event {
	ev := notify.NewEvent(kind, at)
	ev.TaskID = e.taskID
	if e.taskID != "" {
		if t, ok := e.tasks.Get(e.taskID); ok {
			ev.TaskName = t.Name
		}
	}
	return ev
}

func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	current := e.completed + 1
	if current > e.total {
		current = e.total
	}
	left := e.leftLocked(now)
	return Snapshot{
		TimeLeft:       int((left + time.Second - 1) / time.Second),
		Phase:          e.phase,
		State:          e.state,
		CurrentSession: current,
		TotalSessions:  e.total,
		IsActive:       e.state == StateRunning,
		ActiveTaskID:   e.taskID,
		Timestamp:      now.UnixMilli(),
	}
}

// Persist writes the current snapshot to the state store.
func (e *Engine) Persist(ctx context.Context) error {
	snap := e.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := e.states.Set(ctx, store.KeyTimerState, string(data)); err != nil {
		return err
	}
	e.l.Debug("timer state persisted", "state", snap.State, "left", snap.TimeLeft)
	return nil
}

// Restore loads the persisted snapshot. Snapshots older than the staleness
// threshold are discarded; otherwise an active countdown is fast-forwarded
// through every transition that happened while nothing was ticking.
func (e *Engine) Restore(ctx context.Context) (RestoreOutcome, error) {
	raw, ok, err := e.states.Get(ctx, store.KeyTimerState)
	if err != nil {
		return RestoreNone, err
	}
	if !ok {
		return RestoreNone, nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		e.l.Warn("discarding unreadable timer state", "error", err)
		return RestoreNone, e.states.Delete(ctx, store.KeyTimerState)
	}

	now := e.clock.Now()
	saved := time.UnixMilli(snap.Timestamp)
	if now.Sub(saved) > e.opts.StaleAfter {
		e.mu.Lock()
		e.freeCycleLocked()
		e.mu.Unlock()
		e.l.Info("discarding stale timer state", "age", now.Sub(saved).Round(time.Second))
		return RestoreStale, e.states.Delete(ctx, store.KeyTimerState)
	}

	e.mu.Lock()
	e.loadLocked(snap, saved)
	var fx effects
	outcome := RestoreRestored
	if e.state == StateRunning {
		outcome = RestoreResumed
		e.advanceLocked(ctx, now, &fx)
	}
	e.mu.Unlock()

	e.apply(ctx, fx)
	e.l.Info("timer state restored", "outcome", outcome, "state", e.Snapshot().State)
	return outcome, nil
}

func (e *Engine) loadLocked(snap Snapshot, saved time.Time) {
	e.phase = snap.Phase
	if e.phase != PhaseBreak {
		e.phase = PhaseWork
	}
	e.phaseLeft = time.Duration(snap.TimeLeft) * time.Second
	if e.phaseLeft > e.phase.Duration() || e.phaseLeft < 0 {
		e.phaseLeft = e.phase.Duration()
	}

	e.total = snap.TotalSessions
	if e.total <= 0 {
		e.total = e.opts.FreeSessions
	}
	e.completed = snap.CurrentSession - 1
	if e.completed < 0 {
		e.completed = 0
	}

	e.taskID = ""
	if snap.ActiveTaskID != "" {
		if t, ok := e.tasks.Get(snap.ActiveTaskID); ok {
			e.taskID = t.ID
			e.completed = t.CompletedSessions
			e.total = t.TotalSessions
		}
	}

	switch {
	case snap.State == StateCompleted:
		e.state = StateCompleted
	case snap.IsActive:
		e.state = StateRunning
		e.anchor = saved
		metrics.SetTimerRunning(true)
	case snap.State == StateIdle && e.phaseLeft == e.phase.Duration():
		e.state = StateIdle
	default:
		e.state = StatePaused
	}
}

// Run ticks until ctx is done, persisting the snapshot periodically while
// the countdown runs and once more on exit.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	lastPersist := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			if err := e.Persist(context.Background()); err != nil {
				e.l.Warn("failed to persist timer state", "error", err)
			}
			return
		case <-ticker.C:
			snap := e.Tick(ctx)
			now := e.clock.Now()
			if snap.IsActive && now.Sub(lastPersist) >= e.opts.PersistInterval {
				if err := e.Persist(ctx); err != nil {
					e.l.Warn("failed to persist timer state", "error", err)
				}
				lastPersist = now
			}
		}
	}
}
