package timer

import (
	"context"

	"github.com/nadmax/pomodoro/internal/metrics"
	"github.com/nadmax/pomodoro/internal/notify"
)

type effectKind int

const (
	effectSession effectKind = iota
	effectTask
	effectNotify
)

type effect struct {
	kind    effectKind
	tracked bool
	ev      notify.Event
}

// effects collects the journey and notification calls produced while the
// engine lock is held so they run after it is released.
type effects []effect

func (fx *effects) session(tracked bool) {
	*fx = append(*fx, effect{kind: effectSession, tracked: tracked})
}

func (fx *effects) taskCompleted(ev notify.Event) {
	*fx = append(*fx, effect{kind: effectTask, ev: ev})
}

func (fx *effects) notify(ev notify.Event) {
	*fx = append(*fx, effect{kind: effectNotify, ev: ev})
}

func (e *Engine) apply(ctx context.Context, fx effects) {
	for _, f := range fx {
		switch f.kind {
		case effectSession:
			metrics.RecordSessionCompleted(f.tracked)
			points, err := e.journey.AddSessionCompletion(ctx)
			if err != nil {
				e.l.Warn("journey session hook failed", "error", err)
			}
			e.l.Debug("session completed", "tracked", f.tracked, "points", points)
		case effectTask:
			metrics.RecordTaskCompleted()
			points, err := e.journey.AddTaskCompletion(ctx)
			if err != nil {
				e.l.Warn("journey task hook failed", "error", err)
			}
			f.ev.Points = points
			e.send(ctx, f.ev)
		case effectNotify:
			e.send(ctx, f.ev)
		}
	}
}

func (e *Engine) send(ctx context.Context, ev notify.Event) {
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.l.Warn("notification failed", "kind", ev.Kind, "error", err)
	}
}
