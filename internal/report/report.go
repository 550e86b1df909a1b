// Package report builds tabular reports from the task collection and writes
// them as CSV or JSON files.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timeconv"
)

const (
	TypeTasks    = "tasks"
	TypeSessions = "sessions"
	TypeDaily    = "daily"
	TypeHourly   = "hourly"

	FormatCSV  = "csv"
	FormatJSON = "json"

	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04"
)

var ErrInvalidRequest = errors.New("invalid report request")

// Request selects a report. From and To accept RFC 3339 or a plain date
// interpreted in the generator's location; either may be empty for an open
// range.
type Request struct {
	Type      string `json:"report_type"`
	From      string `json:"start_time"`
	To        string `json:"end_time"`
	Format    string `json:"format"`
	OutputDir string `json:"output_path"`
}

func (r *Request) normalize() error {
	if r.Type == "" {
		return fmt.Errorf("%w: missing required field: report_type", ErrInvalidRequest)
	}
	if r.OutputDir == "" {
		r.OutputDir = "./reports"
	}
	if r.Format == "" {
		r.Format = FormatCSV
	}
	return nil
}

type Generator struct {
	conv timeconv.Converter
	now  func() time.Time
	l    *log.Logger
}

func NewGenerator(conv timeconv.Converter, l *log.Logger) *Generator {
	return &Generator{conv: conv, now: time.Now, l: logging.OrDiscard(l)}
}

// Generate builds the requested report and saves it under req.OutputDir,
// returning the written path.
func (g *Generator) Generate(ctx context.Context, tasks []task.Task, req Request) (string, error) {
	data, err := g.Build(tasks, &req)
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	path, err := g.save(&req, data)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	g.l.Info("report generated", "type", req.Type, "path", path, "rows", len(data)-1)
	return path, nil
}

// Build returns the report table, header row first.
func (g *Generator) Build(tasks []task.Task, req *Request) ([][]string, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	from, to, err := g.parseRange(req)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid time range: %w", ErrInvalidRequest, err)
	}

	g.l.Debug("building report", "type", req.Type, "from", from, "to", to)

	switch req.Type {
	case TypeTasks:
		return g.taskSummary(tasks), nil
	case TypeSessions:
		return g.sessionListing(tasks, from, to), nil
	case TypeDaily:
		return g.dailyBreakdown(tasks, from, to), nil
	case TypeHourly:
		return g.hourlyOccupancy(tasks, from, to), nil
	default:
		return nil, fmt.Errorf("%w: unsupported report type: %s (available: tasks, sessions, daily, hourly)", ErrInvalidRequest, req.Type)
	}
}

func (g *Generator) parseRange(req *Request) (time.Time, time.Time, error) {
	from, err := g.parseBound(req.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time format: %w", err)
	}
	to, err := g.parseBound(req.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time format: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("end_time is before start_time")
	}
	return from, to, nil
}

func (g *Generator) parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, g.conv.Location)
}

func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || t.Before(to))
}

// taskSummary ignores the range; it describes every task.
func (g *Generator) taskSummary(tasks []task.Task) [][]string {
	data := [][]string{
		{"Task", "Due", "Hours", "Completed Sessions", "Total Sessions", "Progress (%)", "Status"},
	}

	for _, t := range tasks {
		progress := 0.0
		if t.TotalSessions > 0 {
			progress = 100 * float64(t.CompletedSessions) / float64(t.TotalSessions)
		}
		data = append(data, []string{
			t.Name,
			g.conv.ToWallClock(t.DueDate).Format(timeLayout),
			formatFloat(t.Duration, 2),
			fmt.Sprintf("%d", t.CompletedSessions),
			fmt.Sprintf("%d", t.TotalSessions),
			formatFloat(progress, 2),
			status(t),
		})
	}
	return data
}

func status(t task.Task) string {
	switch {
	case t.IsComplete():
		return "completed"
	case t.CompletedSessions > 0:
		return "in_progress"
	default:
		return "pending"
	}
}

type sessionRow struct {
	task    string
	ordinal int
	s       task.Session
}

func (g *Generator) sessionsInRange(tasks []task.Task, from, to time.Time) []sessionRow {
	var rows []sessionRow
	for _, t := range tasks {
		for i, s := range t.Sessions {
			if inRange(s.StartTime, from, to) {
				rows = append(rows, sessionRow{task: t.Name, ordinal: i + 1, s: s})
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].s.StartTime.Before(rows[j].s.StartTime)
	})
	return rows
}

func (g *Generator) sessionListing(tasks []task.Task, from, to time.Time) [][]string {
	data := [][]string{
		{"Task", "Session", "Start", "End", "Slot", "Completed"},
	}

	for _, r := range g.sessionsInRange(tasks, from, to) {
		data = append(data, []string{
			r.task,
			fmt.Sprintf("%d", r.ordinal),
			g.conv.ToWallClock(r.s.StartTime).Format(timeLayout),
			g.conv.ToWallClock(r.s.EndTime).Format(timeLayout),
			g.conv.SlotOf(r.s.StartTime).String(),
			fmt.Sprintf("%t", r.s.Completed),
		})
	}
	return data
}

func (g *Generator) dailyBreakdown(tasks []task.Task, from, to time.Time) [][]string {
	type day struct{ scheduled, completed int }
	days := make(map[string]*day)

	for _, r := range g.sessionsInRange(tasks, from, to) {
		key := g.conv.Date(r.s.StartTime).Format(dateLayout)
		d, ok := days[key]
		if !ok {
			d = &day{}
			days[key] = d
		}
		d.scheduled++
		if r.s.Completed {
			d.completed++
		}
	}

	data := [][]string{
		{"Date", "Scheduled", "Completed", "Focus Minutes"},
	}
	for _, key := range sortedKeys(days) {
		d := days[key]
		data = append(data, []string{
			key,
			fmt.Sprintf("%d", d.scheduled),
			fmt.Sprintf("%d", d.completed),
			fmt.Sprintf("%d", d.completed*int(task.WorkDuration/time.Minute)),
		})
	}
	return data
}

// hourlyOccupancy counts the non-completed sessions holding each slot.
func (g *Generator) hourlyOccupancy(tasks []task.Task, from, to time.Time) [][]string {
	counts := make(map[string]int)
	for _, r := range g.sessionsInRange(tasks, from, to) {
		if r.s.Completed {
			continue
		}
		counts[g.conv.SlotOf(r.s.StartTime).String()]++
	}

	data := [][]string{
		{"Slot", "Sessions", "Free"},
	}
	for _, key := range sortedKeys(counts) {
		free := task.MaxSessionsPerSlot - counts[key]
		if free < 0 {
			free = 0
		}
		data = append(data, []string{
			key,
			fmt.Sprintf("%d", counts[key]),
			fmt.Sprintf("%d", free),
		})
	}
	return data
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(val float64, precision int) string {
	return fmt.Sprintf("%.*f", precision, val)
}

func (g *Generator) save(req *Request, data [][]string) (string, error) {
	if req.Format != FormatCSV && req.Format != FormatJSON {
		return "", fmt.Errorf("unsupported format: %s", req.Format)
	}
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return "", err
	}

	timestamp := g.now().Format("20060102_150405")
	filename := fmt.Sprintf("pomodoro_%s_%s.%s", req.Type, timestamp, req.Format)
	fullPath := filepath.Join(req.OutputDir, filename)

	file, err := os.Create(fullPath)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			g.l.Warn("failed to close report file", "path", fullPath, "error", closeErr)
		}
	}()

	return fullPath, Write(file, req.Format, data, g.now())
}

// Write encodes a report table to w.
func Write(w io.Writer, format string, data [][]string, generatedAt time.Time) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, data)
	case FormatJSON:
		return writeJSON(w, data, generatedAt)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeCSV(w io.Writer, data [][]string) error {
	writer := csv.NewWriter(w)
	return writer.WriteAll(data)
}

func writeJSON(w io.Writer, data [][]string, generatedAt time.Time) error {
	if len(data) < 1 {
		return errors.New("report has no header row")
	}

	headers := data[0]
	records := make([]map[string]string, 0, len(data)-1)
	for _, row := range data[1:] {
		record := make(map[string]string)
		for i, header := range headers {
			if i < len(row) {
				record[header] = row[i]
			}
		}
		records = append(records, record)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"generated_at": generatedAt.Format(time.RFC3339),
		"data":         records,
		"total_rows":   len(records),
	})
}
