package scheduler

import (
	"fmt"
	"time"

	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timeconv"
)

// SessionRef identifies one session of one task.
type SessionRef struct {
	TaskID string
	Index  int
}

type Guard struct {
	conv  timeconv.Converter
	limit int
}

func NewGuard(conv timeconv.Converter) *Guard {
	return &Guard{conv: conv, limit: task.MaxSessionsPerSlot}
}

// Count returns the number of non-completed sessions in slot across tasks,
// skipping the excluded session when one is given.
func (g *Guard) Count(tasks []task.Task, slot timeconv.Slot, exclude *SessionRef) int {
	n := 0
	for _, t := range tasks {
		for i, s := range t.Sessions {
			if s.Completed {
				continue
			}
			if exclude != nil && exclude.TaskID == t.ID && exclude.Index == i {
				continue
			}
			if g.conv.SlotOf(s.StartTime) == slot {
				n++
			}
		}
	}
	return n
}

// CanPlace reports whether one more session fits at the given date and hour.
func (g *Guard) CanPlace(tasks []task.Task, date time.Time, hour int, exclude *SessionRef) bool {
	return g.Count(tasks, timeconv.SlotAt(g.conv.ToWallClock(date), hour), exclude) < g.limit
}

// CheckTask verifies that every pending session of candidate fits next to
// the other tasks and to the candidate's own earlier sessions. A task with
// the candidate's ID in tasks is ignored so edits do not count twice.
func (g *Guard) CheckTask(tasks []task.Task, candidate task.Task) error {
	occupied := make(map[timeconv.Slot]int)
	for _, t := range tasks {
		if t.ID == candidate.ID {
			continue
		}
		for _, s := range t.Sessions {
			if !s.Completed {
				occupied[g.conv.SlotOf(s.StartTime)]++
			}
		}
	}

	for _, s := range candidate.Sessions {
		if s.Completed {
			continue
		}
		slot := g.conv.SlotOf(s.StartTime)
		if occupied[slot] >= g.limit {
			return &CapacityError{Slot: slot}
		}
		occupied[slot]++
	}
	return nil
}

// CapacityError carries the slot that was full.
type CapacityError struct {
	Slot timeconv.Slot
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %s already has %d sessions", ErrCapacityExceeded, e.Slot, task.MaxSessionsPerSlot)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}
