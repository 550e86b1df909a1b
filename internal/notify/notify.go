// Package notify delivers user-facing notifications raised by the timer and
// the store.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/logging"
)

type Kind string

const (
	KindBreakStarted  Kind = "break_started"
	KindBreakOver     Kind = "break_over"
	KindTaskCompleted Kind = "task_completed"
	KindSyncFailed    Kind = "sync_failed"
)

var titles = map[Kind]string{
	KindBreakStarted:  "Break time!",
	KindBreakOver:     "Break over! Back to work!",
	KindTaskCompleted: "Task completed!",
	KindSyncFailed:    "Changes pending sync",
}

type Event struct {
	Kind     Kind      `json:"kind"`
	Title    string    `json:"title"`
	Message  string    `json:"message,omitempty"`
	TaskID   string    `json:"taskId,omitempty"`
	TaskName string    `json:"taskName,omitempty"`
	Points   int       `json:"points,omitempty"`
	At       time.Time `json:"at"`
}

// NewEvent fills in the standard title for kind.
func NewEvent(kind Kind, at time.Time) Event {
	return Event{Kind: kind, Title: titles[kind], At: at}
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type LogNotifier struct {
	l *log.Logger
}

func NewLogNotifier(l *log.Logger) *LogNotifier {
	return &LogNotifier{l: logging.OrDiscard(l)}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	kv := []any{"kind", ev.Kind}
	if ev.TaskName != "" {
		kv = append(kv, "task", ev.TaskName)
	}
	if ev.Points > 0 {
		kv = append(kv, "points", ev.Points)
	}
	if ev.Message != "" {
		kv = append(kv, "message", ev.Message)
	}
	if ev.Kind == KindSyncFailed {
		n.l.Warn(ev.Title, kv...)
		return nil
	}
	n.l.Info(ev.Title, kv...)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event it receives.
type Recorder struct {
	events chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

func (r *Recorder) Notify(_ context.Context, ev Event) error {
	select {
	case r.events <- ev:
	default:
	}
	return nil
}

// Events drains the recorded events.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
