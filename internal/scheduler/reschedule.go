package scheduler

import (
	"fmt"
	"time"

	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timeconv"
)

// Reschedule moves session index of the task to targetHour on targetDate and
// shifts every later pending session by the same wall-clock delta. Completed
// sessions never move. The moved session may not start before the previous
// one ends, and every shifted session must fit its slot. tasks is updated in
// place only on success and the applied delta is returned.
func (s *Scheduler) Reschedule(tasks []task.Task, taskID string, index, targetHour int, targetDate time.Time) (time.Duration, error) {
	i := task.IndexOf(tasks, taskID)
	if i < 0 {
		return 0, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	t := &tasks[i]
	if index < 0 || index >= len(t.Sessions) {
		return 0, fmt.Errorf("task %s session %d: %w", taskID, index, ErrNotFound)
	}
	if targetHour < 0 || targetHour > 23 {
		return 0, fmt.Errorf("%w: hour %d", ErrInvalidTarget, targetHour)
	}
	orig := t.Sessions[index]
	if orig.Completed {
		return 0, fmt.Errorf("task %s session %d: %w", taskID, index, ErrSessionCompleted)
	}

	target := s.conv.ToWallClock(targetDate)
	exclude := &SessionRef{TaskID: taskID, Index: index}
	if !s.guard.CanPlace(tasks, target, targetHour, exclude) {
		return 0, &CapacityError{Slot: timeconv.SlotAt(target, targetHour)}
	}

	delta := s.WallClockDelta(orig.StartTime, target, targetHour)
	if index > 0 && orig.StartTime.Add(delta).Before(t.Sessions[index-1].EndTime) {
		return 0, fmt.Errorf("%w: session %d would start before session %d ends", ErrInvalidTarget, index, index-1)
	}

	shifted := t.Clone()
	for j := index; j < len(shifted.Sessions); j++ {
		if shifted.Sessions[j].Completed {
			continue
		}
		shifted.Sessions[j].StartTime = shifted.Sessions[j].StartTime.Add(delta)
		shifted.Sessions[j].EndTime = shifted.Sessions[j].EndTime.Add(delta)
	}
	if err := s.guard.CheckTask(tasks, shifted); err != nil {
		return 0, err
	}

	*t = shifted
	return delta, nil
}

// WallClockDelta is the whole-hour distance from the calendar hour of from
// to targetHour on targetDate: day difference times 24h plus hour
// difference. Minutes within the hour are preserved.
func (s *Scheduler) WallClockDelta(from time.Time, targetDate time.Time, targetHour int) time.Duration {
	wall := s.conv.ToWallClock(from)
	days := s.conv.DaysBetween(wall, targetDate)
	hours := days*24 + targetHour - wall.Hour()
	return time.Duration(hours) * time.Hour
}
