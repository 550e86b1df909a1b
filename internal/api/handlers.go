package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/app"
	"github.com/nadmax/pomodoro/internal/dashboard"
	"github.com/nadmax/pomodoro/internal/httputil"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/report"
	"github.com/nadmax/pomodoro/internal/scheduler"
	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBody = 1 << 20

var errBadRequest = errors.New("bad request")

type API struct {
	app     *app.App
	dash    *dashboard.Dashboard
	reports *report.Generator
	mux     *http.ServeMux
	l       *log.Logger
}

type TaskRequest struct {
	Name     string  `json:"name"`
	DueDate  string  `json:"dueDate"`
	Duration float64 `json:"duration"`
}

type RescheduleRequest struct {
	SessionIndex int    `json:"sessionIndex"`
	TargetHour   int    `json:"targetHour"`
	TargetDate   string `json:"targetDate"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	IsBreak   bool      `json:"isBreak"`
	Completed bool      `json:"completed"`
}

type TaskResponse struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	DueDate           time.Time         `json:"dueDate"`
	Duration          float64           `json:"duration"`
	TotalSessions     int               `json:"totalSessions"`
	CompletedSessions int               `json:"completedSessions"`
	Sessions          []SessionResponse `json:"sessions"`
}

// MutationResponse wraps the result of a successful command together with
// the pending-sync warning, if any.
type MutationResponse struct {
	Task    *TaskResponse   `json:"task,omitempty"`
	Timer   *timer.Snapshot `json:"timer,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

type UpcomingResponse struct {
	TaskID       string    `json:"taskId"`
	TaskName     string    `json:"taskName"`
	SessionIndex int       `json:"sessionIndex"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
}

func NewAPI(a *app.App, dash *dashboard.Dashboard, reports *report.Generator, l *log.Logger) *API {
	api := &API{
		app:     a,
		dash:    dash,
		reports: reports,
		mux:     http.NewServeMux(),
		l:       logging.OrDiscard(l),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("POST /api/tasks", a.createTask)
	a.mux.HandleFunc("GET /api/tasks", a.listTasks)
	a.mux.HandleFunc("GET /api/tasks/{id}", a.getTask)
	a.mux.HandleFunc("PUT /api/tasks/{id}", a.editTask)
	a.mux.HandleFunc("DELETE /api/tasks/{id}", a.deleteTask)
	a.mux.HandleFunc("POST /api/tasks/{id}/start", a.startTask)
	a.mux.HandleFunc("POST /api/tasks/{id}/complete", a.completeTask)
	a.mux.HandleFunc("POST /api/tasks/{id}/reschedule", a.rescheduleTask)

	a.mux.HandleFunc("GET /api/timer", a.getTimer)
	a.mux.HandleFunc("POST /api/timer/{action}", a.timerAction)
	a.mux.HandleFunc("POST /api/lifecycle/{event}", a.lifecycle)

	a.mux.HandleFunc("GET /api/upcoming", a.upcoming)
	a.mux.HandleFunc("GET /api/calendar/day", a.calendarDay)
	a.mux.HandleFunc("GET /api/calendar/week", a.calendarWeek)
	a.mux.HandleFunc("GET /api/reports", a.getReport)

	if a.dash != nil {
		a.mux.HandleFunc("GET /api/dashboard/stats", a.dash.GetStats)
		a.mux.HandleFunc("GET /api/dashboard/history", a.dash.GetRecentSessions)
	}

	a.mux.Handle("GET /metrics", promhttp.Handler())
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if !a.decode(w, r, &req) {
		return
	}
	due, err := a.parseDue(req.DueDate)
	if err != nil {
		a.fail(w, err)
		return
	}

	t, err := a.app.AddTask(r.Context(), req.Name, due, req.Duration)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondTask(w, t, http.StatusCreated)
}

func (a *API) listTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := a.app.Tasks()
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, a.toResponse(t))
	}
	a.write(w, out, http.StatusOK)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.app.Task(r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.write(w, a.toResponse(t), http.StatusOK)
}

func (a *API) editTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if !a.decode(w, r, &req) {
		return
	}
	due, err := a.parseDue(req.DueDate)
	if err != nil {
		a.fail(w, err)
		return
	}

	t, err := a.app.EditTask(r.Context(), r.PathValue("id"), req.Name, due, req.Duration)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondTask(w, t, http.StatusOK)
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := a.app.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, err)
		return
	}
	a.write(w, MutationResponse{Warning: a.app.Warning()}, http.StatusOK)
}

func (a *API) startTask(w http.ResponseWriter, r *http.Request) {
	if err := a.app.StartTask(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, err)
		return
	}
	a.respondTimer(w)
}

func (a *API) completeTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.app.CompleteTask(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondTask(w, t, http.StatusOK)
}

func (a *API) rescheduleTask(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if !a.decode(w, r, &req) {
		return
	}
	date, err := a.parseDate(req.TargetDate)
	if err != nil {
		a.fail(w, err)
		return
	}

	t, err := a.app.RescheduleTask(r.Context(), r.PathValue("id"), req.SessionIndex, req.TargetHour, date)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondTask(w, t, http.StatusOK)
}

func (a *API) getTimer(w http.ResponseWriter, r *http.Request) {
	a.write(w, a.app.TickTimer(r.Context()), http.StatusOK)
}

func (a *API) timerAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	switch action := r.PathValue("action"); action {
	case "start":
		err = a.app.Start(ctx)
	case "pause":
		err = a.app.Pause(ctx)
	case "resume":
		err = a.app.Resume(ctx)
	case "reset":
		err = a.app.Reset(ctx)
	case "skip":
		err = a.app.Skip(ctx)
	default:
		httputil.WriteJSONError(w, "Unknown timer action: "+action, http.StatusNotFound)
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondTimer(w)
}

func (a *API) lifecycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	switch event := r.PathValue("event"); event {
	case "hidden":
		err = a.app.Hidden(ctx)
	case "unload":
		err = a.app.Unload(ctx)
	default:
		httputil.WriteJSONError(w, "Unknown lifecycle event: "+event, http.StatusNotFound)
		return
	}
	if err != nil {
		a.l.Warn("lifecycle persistence failed", "event", r.PathValue("event"), "error", err)
		httputil.WriteJSONError(w, "Failed to persist state", http.StatusInternalServerError)
		return
	}
	a.write(w, MutationResponse{Warning: a.app.Warning()}, http.StatusOK)
}

func (a *API) upcoming(w http.ResponseWriter, _ *http.Request) {
	next, ok := a.app.Upcoming()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	conv := a.app.Converter()
	a.write(w, UpcomingResponse{
		TaskID:       next.TaskID,
		TaskName:     next.TaskName,
		SessionIndex: next.Index,
		StartTime:    conv.ToWallClock(next.Session.StartTime),
		EndTime:      conv.ToWallClock(next.Session.EndTime),
	}, http.StatusOK)
}

func (a *API) calendarDay(w http.ResponseWriter, r *http.Request) {
	day, err := a.dateParam(r, "date")
	if err != nil {
		a.fail(w, err)
		return
	}
	a.write(w, a.app.DayView(day), http.StatusOK)
}

func (a *API) calendarWeek(w http.ResponseWriter, r *http.Request) {
	start, err := a.dateParam(r, "start")
	if err != nil {
		a.fail(w, err)
		return
	}
	a.write(w, a.app.WeekView(start), http.StatusOK)
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	if a.reports == nil {
		httputil.WriteJSONError(w, "Reports are not available", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	req := report.Request{
		Type:   q.Get("type"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Format: q.Get("format"),
	}
	if req.Format == "" {
		req.Format = report.FormatJSON
	}
	if req.Format != report.FormatCSV && req.Format != report.FormatJSON {
		httputil.WriteJSONError(w, "Unsupported format: "+req.Format, http.StatusBadRequest)
		return
	}

	data, err := a.reports.Build(a.app.Tasks(), &req)
	if err != nil {
		a.fail(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, req.Format, data, a.app.Now()); err != nil {
		a.fail(w, err)
		return
	}

	if req.Format == report.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=pomodoro_%s.csv", req.Type))
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		a.l.Debug("failed to write report", "error", err)
	}
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			a.l.Debug("failed to close request body", "error", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// parseDue accepts an RFC 3339 instant or a wall-clock minute in the
// configured location.
func (a *API) parseDue(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: dueDate is required", errBadRequest)
	}
	t, err := a.app.Converter().ParseInput(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid dueDate %q", errBadRequest, s)
	}
	return t, nil
}

func (a *API) parseDate(s string) (time.Time, error) {
	t, err := a.app.Converter().ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", errBadRequest, s)
	}
	return t, nil
}

// dateParam reads a YYYY-MM-DD query parameter, defaulting to today.
func (a *API) dateParam(r *http.Request, name string) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return a.app.Converter().Date(a.app.Now()), nil
	}
	return a.parseDate(s)
}

func (a *API) respondTask(w http.ResponseWriter, t task.Task, status int) {
	resp := a.toResponse(t)
	a.write(w, MutationResponse{Task: &resp, Warning: a.app.Warning()}, status)
}

func (a *API) respondTimer(w http.ResponseWriter) {
	snap := a.app.Timer()
	a.write(w, MutationResponse{Timer: &snap, Warning: a.app.Warning()}, http.StatusOK)
}

func (a *API) toResponse(t task.Task) TaskResponse {
	conv := a.app.Converter()
	sessions := make([]SessionResponse, 0, len(t.Sessions))
	for _, s := range t.Sessions {
		sessions = append(sessions, SessionResponse{
			ID:        s.ID,
			StartTime: conv.ToWallClock(s.StartTime),
			EndTime:   conv.ToWallClock(s.EndTime),
			IsBreak:   s.IsBreak,
			Completed: s.Completed,
		})
	}
	return TaskResponse{
		ID:                t.ID,
		Name:              t.Name,
		DueDate:           conv.ToWallClock(t.DueDate),
		Duration:          t.Duration,
		TotalSessions:     t.TotalSessions,
		CompletedSessions: t.CompletedSessions,
		Sessions:          sessions,
	}
}

func (a *API) write(w http.ResponseWriter, v any, status int) {
	if err := httputil.WriteJSON(w, v, status); err != nil {
		a.l.Debug("failed to encode response", "error", err)
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.l.Error("request failed", "error", err)
	}
	httputil.WriteJSONError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrCapacityExceeded),
		errors.Is(err, app.ErrTaskCompleted),
		errors.Is(err, timer.ErrNoActiveTimer):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, task.ErrInvalidName),
		errors.Is(err, task.ErrInvalidDuration),
		errors.Is(err, scheduler.ErrInvalidTarget),
		errors.Is(err, scheduler.ErrSessionCompleted),
		errors.Is(err, report.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
