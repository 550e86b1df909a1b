package app

import (
	"sort"
	"time"

	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timeconv"
)

type SlotEntry struct {
	TaskID   string    `json:"taskId"`
	TaskName string    `json:"taskName"`
	Index    int       `json:"sessionIndex"`
	Start    time.Time `json:"startTime"`
	End      time.Time `json:"endTime"`
}

type HourBlock struct {
	Hour     int         `json:"hour"`
	Slot     string      `json:"slot"`
	Sessions []SlotEntry `json:"sessions"`
	Free     int         `json:"free"`
}

type DayView struct {
	Date  string      `json:"date"`
	Hours []HourBlock `json:"hours"`
}

// DayView lists, per working hour of date, the pending sessions holding
// that slot.
func (a *App) DayView(date time.Time) DayView {
	a.mu.RLock()
	tasks := a.snapshot
	a.mu.RUnlock()
	return a.dayView(tasks, a.conv.Date(date))
}

// WeekView is seven consecutive day views starting at weekStart.
func (a *App) WeekView(weekStart time.Time) []DayView {
	a.mu.RLock()
	tasks := a.snapshot
	a.mu.RUnlock()

	first := a.conv.Date(weekStart)
	days := make([]DayView, 0, 7)
	for i := range 7 {
		days = append(days, a.dayView(tasks, first.AddDate(0, 0, i)))
	}
	return days
}

func (a *App) dayView(tasks []task.Task, day time.Time) DayView {
	bySlot := make(map[timeconv.Slot][]SlotEntry)
	for _, t := range tasks {
		for i, s := range t.Sessions {
			if s.Completed {
				continue
			}
			slot := a.conv.SlotOf(s.StartTime)
			bySlot[slot] = append(bySlot[slot], SlotEntry{
				TaskID:   t.ID,
				TaskName: t.Name,
				Index:    i,
				Start:    a.conv.ToWallClock(s.StartTime),
				End:      a.conv.ToWallClock(s.EndTime),
			})
		}
	}

	hours := a.sched.Hours()
	view := DayView{Date: day.Format("2006-01-02")}
	for h := hours.Start; h < hours.End; h++ {
		slot := timeconv.SlotAt(day, h)
		entries := bySlot[slot]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
		if entries == nil {
			entries = []SlotEntry{}
		}
		free := task.MaxSessionsPerSlot - len(entries)
		if free < 0 {
			free = 0
		}
		view.Hours = append(view.Hours, HourBlock{Hour: h, Slot: slot.String(), Sessions: entries, Free: free})
	}
	return view
}
