// Package scheduler lays out a task's work sessions inside working hours,
// guards per-hour capacity across all tasks, and moves sessions on
// reschedule while keeping the cadence of the ones that follow.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timeconv"
)

var (
	ErrCapacityExceeded = errors.New("time slot is full")
	ErrNotFound         = errors.New("not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrInvalidTarget    = errors.New("invalid reschedule target")
	ErrInvalidHours     = errors.New("invalid working hours")
)

// WorkingHours is the daily window [Start, End) in wall-clock hours.
type WorkingHours struct {
	Start int
	End   int
}

var DefaultWorkingHours = WorkingHours{Start: 8, End: 20}

func (w WorkingHours) Validate() error {
	if w.Start < 0 || w.End > 24 || w.Start >= w.End {
		return fmt.Errorf("%w: %d-%d", ErrInvalidHours, w.Start, w.End)
	}
	return nil
}

func (w WorkingHours) Contains(hour int) bool {
	return hour >= w.Start && hour < w.End
}

type Scheduler struct {
	hours WorkingHours
	conv  timeconv.Converter
	guard *Guard
	newID func() string
}

func New(hours WorkingHours, conv timeconv.Converter) (*Scheduler, error) {
	if err := hours.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		hours: hours,
		conv:  conv,
		guard: NewGuard(conv),
		newID: uuid.NewString,
	}, nil
}

func (s *Scheduler) Hours() WorkingHours {
	return s.hours
}

func (s *Scheduler) Guard() *Guard {
	return s.guard
}

// GenerateSessions emits count work sessions starting at anchor. Each starts
// inside working hours and the next one begins a work plus break period
// later, rolling to the next day's opening hour when the window is passed.
func (s *Scheduler) GenerateSessions(anchor time.Time, count int) []task.Session {
	sessions := make([]task.Session, 0, max(count, 0))
	cursor := anchor
	for len(sessions) < count {
		cursor = s.clamp(cursor)
		sessions = append(sessions, task.Session{
			ID:        s.newID(),
			StartTime: timeconv.ToAbsolute(cursor),
			EndTime:   timeconv.ToAbsolute(cursor.Add(task.WorkDuration)),
		})
		cursor = cursor.Add(task.WorkDuration + task.BreakDuration)
	}
	return sessions
}

func (s *Scheduler) clamp(cursor time.Time) time.Time {
	wall := s.conv.ToWallClock(cursor)
	switch {
	case wall.Hour() < s.hours.Start:
		return s.conv.At(wall, s.hours.Start)
	case wall.Hour() >= s.hours.End:
		next := time.Date(wall.Year(), wall.Month(), wall.Day()+1, 0, 0, 0, 0, wall.Location())
		return s.conv.At(next, s.hours.Start)
	default:
		return wall
	}
}

// Schedule regenerates the sessions of t from its due date and checks them
// against the rest of the collection. t is left untouched on error.
func (s *Scheduler) Schedule(tasks []task.Task, t *task.Task) error {
	candidate := t.Clone()
	candidate.Sessions = s.GenerateSessions(t.DueDate, t.TotalSessions)
	if err := s.guard.CheckTask(tasks, candidate); err != nil {
		return err
	}
	t.Sessions = candidate.Sessions
	return nil
}
