// Package task defines the pomodoro task domain model shared by the scheduler,
// the store and the timer. It contains task and session definitions, the
// session cadence constants, and the wire codecs for persisted task arrays.
package task

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	WorkDuration       = 25 * time.Minute
	BreakDuration      = 5 * time.Minute
	SessionsPerHour    = 4
	MaxSessionsPerSlot = 2
)

var (
	ErrInvalidName     = errors.New("task name is required")
	ErrInvalidDuration = errors.New("task duration must be greater than zero")
)

type (
	Session struct {
		ID        string
		StartTime time.Time
		EndTime   time.Time
		IsBreak   bool
		Completed bool
	}
	Task struct {
		ID                string
		Name              string
		DueDate           time.Time
		Duration          float64
		TotalSessions     int
		CompletedSessions int
		Sessions          []Session
	}
)

// SessionCount converts requested hours into work sessions, rounding up so a
// tiny task still gets one session.
func SessionCount(hours float64) int {
	if hours <= 0 {
		return 0
	}
	return int(math.Ceil(hours*SessionsPerHour - 1e-9))
}

// New builds a task without sessions; the scheduler fills them in.
func New(name string, due time.Time, hours float64) (*Task, error) {
	t := &Task{ID: uuid.New().String()}
	if err := t.apply(name, due, hours); err != nil {
		return nil, err
	}
	return t, nil
}

// Edit replaces the editable fields and drops every session so they can be
// regenerated from the new anchor.
func (t *Task) Edit(name string, due time.Time, hours float64) error {
	if err := t.apply(name, due, hours); err != nil {
		return err
	}
	t.CompletedSessions = 0
	t.Sessions = nil
	return nil
}

func (t *Task) apply(name string, due time.Time, hours float64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if hours <= 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return ErrInvalidDuration
	}
	t.Name = name
	t.DueDate = due.Truncate(time.Millisecond)
	t.Duration = hours
	t.TotalSessions = SessionCount(hours)
	return nil
}

func (t *Task) IsComplete() bool {
	return t.TotalSessions > 0 && t.CompletedSessions >= t.TotalSessions
}

// RecordSession credits one completed work session and flips the matching
// ordinal session. It reports false when nothing was left to credit.
func (t *Task) RecordSession() bool {
	if t.CompletedSessions >= t.TotalSessions {
		return false
	}
	if t.CompletedSessions < len(t.Sessions) {
		t.Sessions[t.CompletedSessions].Completed = true
	}
	t.CompletedSessions++
	return true
}

// Complete marks the whole task done.
func (t *Task) Complete() {
	for i := range t.Sessions {
		t.Sessions[i].Completed = true
	}
	t.CompletedSessions = t.TotalSessions
}

// NextPending returns the index of the first session not yet completed.
func (t *Task) NextPending() (int, bool) {
	for i, s := range t.Sessions {
		if !s.Completed {
			return i, true
		}
	}
	return -1, false
}

func (t Task) Clone() Task {
	c := t
	if t.Sessions != nil {
		c.Sessions = make([]Session, len(t.Sessions))
		copy(c.Sessions, t.Sessions)
	}
	return c
}

// Equal compares tasks by value, treating times as instants.
func (t Task) Equal(o Task) bool {
	if t.ID != o.ID || t.Name != o.Name || !t.DueDate.Equal(o.DueDate) ||
		t.Duration != o.Duration || t.TotalSessions != o.TotalSessions ||
		t.CompletedSessions != o.CompletedSessions || len(t.Sessions) != len(o.Sessions) {
		return false
	}
	for i := range t.Sessions {
		a, b := t.Sessions[i], o.Sessions[i]
		if a.ID != b.ID || !a.StartTime.Equal(b.StartTime) || !a.EndTime.Equal(b.EndTime) ||
			a.IsBreak != b.IsBreak || a.Completed != b.Completed {
			return false
		}
	}
	return true
}

// EqualCollections compares two task slices element by element.
func EqualCollections(a, b []Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func CloneAll(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// IndexOf returns the position of the task with the given ID, or -1.
func IndexOf(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
