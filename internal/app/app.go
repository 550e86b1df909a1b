// Package app owns the application state: it coordinates the scheduler, the
// task store, the timer and the journey ledger behind the command surface
// used by the HTTP API and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/journey"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/metrics"
	"github.com/nadmax/pomodoro/internal/notify"
	"github.com/nadmax/pomodoro/internal/scheduler"
	"github.com/nadmax/pomodoro/internal/store"
	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timeconv"
	"github.com/nadmax/pomodoro/internal/timer"
)

var (
	ErrCapacityExceeded = scheduler.ErrCapacityExceeded
	ErrNotFound         = scheduler.ErrNotFound
	ErrTaskCompleted    = timer.ErrTaskCompleted
)

const WarningPendingSync = "changes pending sync"

type Options struct {
	Scheduler *scheduler.Scheduler
	Store     *store.Store
	Timer     *timer.Engine
	Journey   journey.Journey
	Notifier  notify.Notifier
	Converter timeconv.Converter
	Logger    *log.Logger
	Now       func() time.Time
}

// Upcoming is the next non-completed session at or after now.
type Upcoming struct {
	TaskID   string       `json:"taskId"`
	TaskName string       `json:"taskName"`
	Index    int          `json:"sessionIndex"`
	Session  task.Session `json:"-"`
}

type App struct {
	sched    *scheduler.Scheduler
	store    *store.Store
	timer    *timer.Engine
	journey  journey.Journey
	notifier notify.Notifier
	conv     timeconv.Converter
	l        *log.Logger
	now      func() time.Time

	mu          sync.RWMutex
	snapshot    []task.Task
	unsubscribe func()
}

func New(opts Options) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}

	a := &App{
		sched:    opts.Scheduler,
		store:    opts.Store,
		timer:    opts.Timer,
		journey:  opts.Journey,
		notifier: opts.Notifier,
		conv:     opts.Converter,
		l:        logging.OrDiscard(opts.Logger),
		now:      opts.Now,
		snapshot: opts.Store.Tasks(),
	}
	a.unsubscribe = opts.Store.Subscribe(a.onStoreEvent)
	return a
}

func (a *App) onStoreEvent(ev store.Event) {
	switch ev.Kind {
	case store.EventChanged:
		a.mu.Lock()
		a.snapshot = ev.Tasks
		a.mu.Unlock()
	case store.EventSyncFailed:
		e := notify.NewEvent(notify.KindSyncFailed, a.now())
		if ev.Err != nil {
			e.Message = ev.Err.Error()
		}
		if err := a.notifier.Notify(context.Background(), e); err != nil {
			a.l.Warn("notification failed", "kind", e.Kind, "error", err)
		}
	}
}

// Warning returns the non-blocking persistence warning to show alongside a
// successful mutation, if any.
func (a *App) Warning() string {
	if a.store.Pending() {
		return WarningPendingSync
	}
	return ""
}

func (a *App) Tasks() []task.Task {
	return a.store.Tasks()
}

func (a *App) Task(id string) (task.Task, error) {
	t, ok := a.store.Get(id)
	if !ok {
		return task.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// AddTask creates a task and schedules its sessions from due. Nothing is
// stored when any session would overfill a slot.
func (a *App) AddTask(ctx context.Context, name string, due time.Time, hours float64) (task.Task, error) {
	t, err := task.New(name, timeconv.ToAbsolute(due), hours)
	if err != nil {
		return task.Task{}, err
	}

	_, err = a.store.Apply(ctx, func(tasks *[]task.Task) error {
		if err := a.sched.Schedule(*tasks, t); err != nil {
			return err
		}
		*tasks = append(*tasks, *t)
		return nil
	})
	if err != nil {
		a.rejected("add", err)
		return task.Task{}, err
	}

	a.l.Info("task added", "task", t.Name, "sessions", t.TotalSessions, "due", a.conv.ToWallClock(t.DueDate))
	return t.Clone(), nil
}

// EditTask replaces name, due date and duration, regenerating every session
// from the new due date.
func (a *App) EditTask(ctx context.Context, id, name string, due time.Time, hours float64) (task.Task, error) {
	var edited task.Task
	_, err := a.store.Apply(ctx, func(tasks *[]task.Task) error {
		i := task.IndexOf(*tasks, id)
		if i < 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		edited = (*tasks)[i].Clone()
		if err := edited.Edit(name, timeconv.ToAbsolute(due), hours); err != nil {
			return err
		}
		if err := a.sched.Schedule(*tasks, &edited); err != nil {
			return err
		}
		(*tasks)[i] = edited
		return nil
	})
	if err != nil {
		a.rejected("edit", err)
		return task.Task{}, err
	}

	a.l.Info("task edited", "task", edited.Name, "sessions", edited.TotalSessions)
	return edited.Clone(), nil
}

func (a *App) DeleteTask(ctx context.Context, id string) error {
	var name string
	_, err := a.store.Apply(ctx, func(tasks *[]task.Task) error {
		i := task.IndexOf(*tasks, id)
		if i < 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		name = (*tasks)[i].Name
		*tasks = append((*tasks)[:i], (*tasks)[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	a.timer.Detach(id)
	a.l.Info("task deleted", "task", name)
	return nil
}

// RescheduleTask moves session index to targetHour on targetDate and shifts
// every later pending session by the same wall-clock delta.
func (a *App) RescheduleTask(ctx context.Context, id string, index, targetHour int, targetDate time.Time) (task.Task, error) {
	var (
		moved task.Task
		delta time.Duration
	)
	_, err := a.store.Apply(ctx, func(tasks *[]task.Task) error {
		d, err := a.sched.Reschedule(*tasks, id, index, targetHour, targetDate)
		if err != nil {
			return err
		}
		delta = d
		moved = (*tasks)[task.IndexOf(*tasks, id)].Clone()
		return nil
	})
	if err != nil {
		a.rejected("reschedule", err)
		return task.Task{}, err
	}

	a.l.Info("session rescheduled", "task", moved.Name, "session", index, "delta", delta)
	return moved, nil
}

// CompleteTask marks every session done and awards the task completion.
// A timer running that task is reset.
func (a *App) CompleteTask(ctx context.Context, id string) (task.Task, error) {
	var done task.Task
	_, err := a.store.Apply(ctx, func(tasks *[]task.Task) error {
		i := task.IndexOf(*tasks, id)
		if i < 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if (*tasks)[i].IsComplete() {
			return fmt.Errorf("task %s: %w", id, ErrTaskCompleted)
		}
		(*tasks)[i].Complete()
		done = (*tasks)[i].Clone()
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}

	if a.timer.ActiveTaskID() == id {
		_ = a.timer.Reset(ctx)
	}

	metrics.RecordTaskCompleted()
	points, err := a.journey.AddTaskCompletion(ctx)
	if err != nil {
		a.l.Warn("journey task hook failed", "error", err)
	}
	ev := notify.NewEvent(notify.KindTaskCompleted, a.now())
	ev.TaskID = done.ID
	ev.TaskName = done.Name
	ev.Points = points
	if err := a.notifier.Notify(ctx, ev); err != nil {
		a.l.Warn("notification failed", "kind", ev.Kind, "error", err)
	}

	a.l.Info("task completed", "task", done.Name, "points", points)
	return done, nil
}

func (a *App) StartTask(ctx context.Context, id string) error {
	err := a.timer.StartTask(ctx, id)
	if errors.Is(err, timer.ErrTaskNotFound) {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return err
}

func (a *App) Start(ctx context.Context) error  { return a.timer.Start(ctx) }
func (a *App) Pause(ctx context.Context) error  { return a.timer.Pause(ctx) }
func (a *App) Resume(ctx context.Context) error { return a.timer.Resume(ctx) }
func (a *App) Reset(ctx context.Context) error  { return a.timer.Reset(ctx) }
func (a *App) Skip(ctx context.Context) error   { return a.timer.Skip(ctx) }

func (a *App) Timer() timer.Snapshot {
	return a.timer.Snapshot()
}

// TickTimer advances the timer to now, crediting any boundary crossed since
// the last tick.
func (a *App) TickTimer(ctx context.Context) timer.Snapshot {
	return a.timer.Tick(ctx)
}

// Now reads the clock the app was built with.
func (a *App) Now() time.Time {
	return a.now()
}

func (a *App) Converter() timeconv.Converter {
	return a.conv
}

func (a *App) Journey(ctx context.Context) (journey.Summary, error) {
	return a.journey.Summary(ctx)
}

func (a *App) rejected(op string, err error) {
	if errors.Is(err, ErrCapacityExceeded) {
		metrics.RecordCapacityRejection(op)
		a.l.Warn("rejected: slot full", "operation", op, "error", err)
	}
}

// Upcoming returns the next pending session across all tasks.
func (a *App) Upcoming() (Upcoming, bool) {
	a.mu.RLock()
	tasks := a.snapshot
	a.mu.RUnlock()

	now := a.now()
	var (
		best  Upcoming
		found bool
	)
	for _, t := range tasks {
		for i, s := range t.Sessions {
			if s.Completed || s.StartTime.Before(now) {
				continue
			}
			if !found || s.StartTime.Before(best.Session.StartTime) {
				best = Upcoming{TaskID: t.ID, TaskName: t.Name, Index: i, Session: s}
				found = true
			}
		}
	}
	return best, found
}

// Hidden persists the timer so a later Restore can pick it up.
func (a *App) Hidden(ctx context.Context) error {
	return a.timer.Persist(ctx)
}

// Unload persists the timer and waits for in-flight remote writes.
func (a *App) Unload(ctx context.Context) error {
	return errors.Join(a.timer.Persist(ctx), a.store.Flush(ctx))
}

func (a *App) Close(ctx context.Context) error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return a.Unload(ctx)
}
