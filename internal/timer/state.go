package timer

import (
	"errors"
	"time"

	"github.com/nadmax/pomodoro/internal/task"
)

var (
	ErrNoActiveTimer = errors.New("no active timer")
	ErrTaskCompleted = errors.New("task already completed")
	ErrTaskNotFound  = errors.New("task not found")
)

type Phase string

const (
	PhaseWork  Phase = "work"
	PhaseBreak Phase = "break"
)

func (p Phase) Duration() time.Duration {
	if p == PhaseBreak {
		return task.BreakDuration
	}
	return task.WorkDuration
}

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// Snapshot is the restorable form of the timer. TimeLeft is in seconds and
// Timestamp in epoch milliseconds.
type Snapshot struct {
	TimeLeft       int    `json:"timeLeft"`
	Phase          Phase  `json:"phase"`
	State          State  `json:"state"`
	CurrentSession int    `json:"currentSession"`
	TotalSessions  int    `json:"totalSessions"`
	IsActive       bool   `json:"isActive"`
	ActiveTaskID   string `json:"activeTaskId,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type RestoreOutcome string

const (
	RestoreNone     RestoreOutcome = "none"
	RestoreStale    RestoreOutcome = "stale"
	RestoreResumed  RestoreOutcome = "resumed"
	RestoreRestored RestoreOutcome = "restored"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
