// Package journey tracks productivity points earned by completing work
// sessions and tasks.
package journey

import (
	"context"
	"time"
)

const (
	PointsPerSession  = 5
	PointsPerTask     = 10
	BonusPoints       = 20
	BonusSessionCount = 4
	MinutesPerSession = 25
)

const (
	EventKindSession = "session"
	EventKindBonus   = "bonus"
	EventKindTask    = "task"
)

const dayLayout = "2006-01-02"

// Journey is invoked once per completed work session and once per fully
// completed task. The returned points are informational.
type Journey interface {
	AddSessionCompletion(ctx context.Context) (int, error)
	AddTaskCompletion(ctx context.Context) (int, error)
	Summary(ctx context.Context) (Summary, error)
}

type Level struct {
	Number int    `json:"level"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

var Levels = []Level{
	{Number: 1, Name: "Beginner", Points: 0},
	{Number: 2, Name: "Focused", Points: 100},
	{Number: 3, Name: "Dedicated", Points: 250},
	{Number: 4, Name: "Productive", Points: 500},
	{Number: 5, Name: "Master", Points: 1000},
	{Number: 6, Name: "Expert", Points: 2000},
	{Number: 7, Name: "Guru", Points: 3500},
	{Number: 8, Name: "Legend", Points: 5000},
	{Number: 9, Name: "Unstoppable", Points: 7500},
	{Number: 10, Name: "Productivity Wizard", Points: 10000},
}

// LevelFor returns the highest level reached with points and the one after
// it, which is nil at the top.
func LevelFor(points int) (Level, *Level) {
	current := 0
	for i, l := range Levels {
		if points >= l.Points {
			current = i
		}
	}
	if current+1 < len(Levels) {
		next := Levels[current+1]
		return Levels[current], &next
	}
	return Levels[current], nil
}

type Summary struct {
	TotalPoints    int     `json:"totalPoints"`
	TodayPoints    int     `json:"todayPoints"`
	Sessions       int     `json:"sessions"`
	TasksCompleted int     `json:"tasksCompleted"`
	FocusMinutes   int     `json:"focusMinutes"`
	Streak         int     `json:"streak"`
	Level          Level   `json:"level"`
	NextLevel      *Level  `json:"nextLevel,omitempty"`
	Progress       float64 `json:"progress"`
}

func newSummary(total, today, sessions, tasks, streak int) Summary {
	level, next := LevelFor(total)
	progress := 100.0
	if next != nil {
		progress = float64(total-level.Points) / float64(next.Points-level.Points) * 100
	}
	return Summary{
		TotalPoints:    total,
		TodayPoints:    today,
		Sessions:       sessions,
		TasksCompleted: tasks,
		FocusMinutes:   sessions * MinutesPerSession,
		Streak:         streak,
		Level:          level,
		NextLevel:      next,
		Progress:       progress,
	}
}

// streak counts consecutive active days ending today or yesterday. days must
// be sorted newest first.
func streak(days []string, today time.Time) int {
	if len(days) == 0 {
		return 0
	}
	cursor := today
	if days[0] != cursor.Format(dayLayout) {
		cursor = cursor.AddDate(0, 0, -1)
	}
	n := 0
	for _, d := range days {
		if d != cursor.Format(dayLayout) {
			break
		}
		n++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return n
}

func dayOf(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	w := now.In(loc)
	return time.Date(w.Year(), w.Month(), w.Day(), 0, 0, 0, 0, loc)
}
