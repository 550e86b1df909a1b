// Package dashboard serves aggregate progress figures for the task
// collection and the journey ledger.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/httputil"
	"github.com/nadmax/pomodoro/internal/journey"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/task"
)

// TaskSource is the part of the task store the dashboard reads.
type TaskSource interface {
	Tasks() []task.Task
	Pending() bool
}

type Dashboard struct {
	tasks   TaskSource
	journey journey.Journey
	now     func() time.Time
	l       *log.Logger
}

type Stats struct {
	TotalTasks        int              `json:"total_tasks"`
	PendingTasks      int              `json:"pending_tasks"`
	InProgressTasks   int              `json:"in_progress_tasks"`
	CompletedTasks    int              `json:"completed_tasks"`
	TotalSessions     int              `json:"total_sessions"`
	CompletedSessions int              `json:"completed_sessions"`
	FocusMinutes      int              `json:"focus_minutes"`
	PendingSync       bool             `json:"pending_sync"`
	Journey           *journey.Summary `json:"journey,omitempty"`
	LastUpdated       time.Time        `json:"last_updated"`
}

type SessionHistory struct {
	TaskID    string    `json:"task_id"`
	TaskName  string    `json:"task_name"`
	Session   int       `json:"session"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func NewDashboard(tasks TaskSource, j journey.Journey, l *log.Logger) *Dashboard {
	return &Dashboard{tasks: tasks, journey: j, now: time.Now, l: logging.OrDiscard(l)}
}

// Compute aggregates the current collection. A journey failure leaves
// Journey nil rather than failing the whole response.
func (d *Dashboard) Compute(ctx context.Context) Stats {
	tasks := d.tasks.Tasks()
	stats := Stats{
		TotalTasks:  len(tasks),
		PendingSync: d.tasks.Pending(),
		LastUpdated: d.now(),
	}

	for _, t := range tasks {
		switch {
		case t.IsComplete():
			stats.CompletedTasks++
		case t.CompletedSessions > 0:
			stats.InProgressTasks++
		default:
			stats.PendingTasks++
		}
		stats.TotalSessions += t.TotalSessions
		stats.CompletedSessions += t.CompletedSessions
	}
	stats.FocusMinutes = stats.CompletedSessions * int(task.WorkDuration/time.Minute)

	if d.journey != nil {
		summary, err := d.journey.Summary(ctx)
		if err != nil {
			d.l.Warn("journey summary unavailable", "error", err)
		} else {
			stats.Journey = &summary
		}
	}
	return stats
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := d.Compute(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// GetRecentSessions lists completed sessions scheduled within the last 24
// hours, newest first.
func (d *Dashboard) GetRecentSessions(w http.ResponseWriter, r *http.Request) {
	now := d.now()
	cutoff := now.Add(-24 * time.Hour)
	history := []SessionHistory{}

	for _, t := range d.tasks.Tasks() {
		for i, s := range t.Sessions {
			if !s.Completed {
				continue
			}
			if s.StartTime.Before(cutoff) || s.StartTime.After(now) {
				continue
			}
			history = append(history, SessionHistory{
				TaskID:    t.ID,
				TaskName:  t.Name,
				Session:   i + 1,
				StartTime: s.StartTime,
				EndTime:   s.EndTime,
			})
		}
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].StartTime.After(history[j].StartTime)
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(history); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
