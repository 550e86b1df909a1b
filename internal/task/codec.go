package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// isoLayout matches the millisecond ISO-8601 form browsers emit for dates.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var zonedLayouts = []string{
	time.RFC3339Nano,
	isoLayout,
	time.RFC3339,
}

// wall-clock layouts carry no zone and are read in the decoder's location
var wallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DeserializationError describes a field that could not be parsed and was
// replaced with the decode time.
type DeserializationError struct {
	TaskID string
	Field  string
	Raw    string
	Err    error
}

func (e DeserializationError) Error() string {
	return fmt.Sprintf("task %q: field %s: cannot parse %q: %v", e.TaskID, e.Field, e.Raw, e.Err)
}

func (e DeserializationError) Unwrap() error {
	return e.Err
}

type wireSession struct {
	ID        flexString      `json:"id"`
	StartTime json.RawMessage `json:"startTime"`
	EndTime   json.RawMessage `json:"endTime"`
	IsBreak   bool            `json:"isBreak"`
	Completed bool            `json:"completed"`
}

type wireTask struct {
	ID                flexString      `json:"id"`
	Name              string          `json:"name"`
	DueDate           json.RawMessage `json:"dueDate"`
	Duration          float64         `json:"duration"`
	CompletedSessions int             `json:"completedSessions"`
	TotalSessions     int             `json:"totalSessions"`
	Sessions          []wireSession   `json:"sessions"`
}

type outSession struct {
	ID        string `json:"id"`
	StartTime any    `json:"startTime"`
	EndTime   any    `json:"endTime"`
	IsBreak   bool   `json:"isBreak"`
	Completed bool   `json:"completed"`
}

type outTask struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	DueDate           any          `json:"dueDate"`
	Duration          float64      `json:"duration"`
	CompletedSessions int          `json:"completedSessions"`
	TotalSessions     int          `json:"totalSessions"`
	Sessions          []outSession `json:"sessions"`
}

// EncodeEpoch writes the canonical representation: timestamps as epoch
// milliseconds.
func EncodeEpoch(tasks []Task) ([]byte, error) {
	return encode(tasks, func(t time.Time) any { return t.UnixMilli() })
}

// EncodeLegacy writes the older representation: timestamps as ISO-8601
// strings in UTC.
func EncodeLegacy(tasks []Task) ([]byte, error) {
	return encode(tasks, func(t time.Time) any { return t.UTC().Format(isoLayout) })
}

func encode(tasks []Task, stamp func(time.Time) any) ([]byte, error) {
	out := make([]outTask, 0, len(tasks))
	for _, t := range tasks {
		ot := outTask{
			ID:                t.ID,
			Name:              t.Name,
			DueDate:           stamp(t.DueDate),
			Duration:          t.Duration,
			CompletedSessions: t.CompletedSessions,
			TotalSessions:     t.TotalSessions,
			Sessions:          make([]outSession, 0, len(t.Sessions)),
		}
		for _, s := range t.Sessions {
			ot.Sessions = append(ot.Sessions, outSession{
				ID:        s.ID,
				StartTime: stamp(s.StartTime),
				EndTime:   stamp(s.EndTime),
				IsBreak:   s.IsBreak,
				Completed: s.Completed,
			})
		}
		out = append(out, ot)
	}
	return json.Marshal(out)
}

type Decoder struct {
	// Location interprets zoneless wall-clock strings.
	Location *time.Location
	Now      func() time.Time
}

func NewDecoder(loc *time.Location) *Decoder {
	return &Decoder{Location: loc, Now: time.Now}
}

// Decode reads a task array in any of the known encodings. Only malformed
// JSON at the array level is an error; bad entries are skipped and bad
// timestamps fall back to now, each reported in the returned slice.
func (d *Decoder) Decode(data []byte) ([]Task, []DeserializationError, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Task{}, nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal task array: %w", err)
	}

	var problems []DeserializationError
	tasks := make([]Task, 0, len(raws))
	for i, raw := range raws {
		var w wireTask
		if err := json.Unmarshal(raw, &w); err != nil {
			problems = append(problems, DeserializationError{
				TaskID: strconv.Itoa(i),
				Field:  "task",
				Raw:    truncate(string(raw)),
				Err:    err,
			})
			continue
		}
		tasks = append(tasks, d.fromWire(w, &problems))
	}
	return tasks, problems, nil
}

func (d *Decoder) fromWire(w wireTask, problems *[]DeserializationError) Task {
	id := string(w.ID)
	t := Task{
		ID:                id,
		Name:              w.Name,
		DueDate:           d.instant(id, "dueDate", w.DueDate, problems),
		Duration:          w.Duration,
		CompletedSessions: w.CompletedSessions,
		TotalSessions:     w.TotalSessions,
		Sessions:          make([]Session, 0, len(w.Sessions)),
	}
	for i, ws := range w.Sessions {
		sid := string(ws.ID)
		if sid == "" {
			sid = strconv.Itoa(i)
		}
		t.Sessions = append(t.Sessions, Session{
			ID:        sid,
			StartTime: d.instant(id, fmt.Sprintf("sessions[%d].startTime", i), ws.StartTime, problems),
			EndTime:   d.instant(id, fmt.Sprintf("sessions[%d].endTime", i), ws.EndTime, problems),
			IsBreak:   ws.IsBreak,
			Completed: ws.Completed,
		})
	}
	if t.TotalSessions == 0 && t.Duration > 0 {
		t.TotalSessions = SessionCount(t.Duration)
	}
	if t.CompletedSessions < 0 {
		t.CompletedSessions = 0
	}
	if t.CompletedSessions > t.TotalSessions {
		t.CompletedSessions = t.TotalSessions
	}
	return t
}

func (d *Decoder) instant(taskID, field string, raw json.RawMessage, problems *[]DeserializationError) time.Time {
	ts, err := d.ParseInstant(raw)
	if err != nil {
		*problems = append(*problems, DeserializationError{
			TaskID: taskID,
			Field:  field,
			Raw:    truncate(string(raw)),
			Err:    err,
		})
		return d.now().UTC().Truncate(time.Millisecond)
	}
	return ts
}

// ParseInstant accepts epoch milliseconds (number or numeric string) and
// ISO-8601 strings, returning the instant in UTC.
func (d *Decoder) ParseInstant(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC().Truncate(time.Millisecond), nil
		}
	}
	for _, layout := range wallLayouts {
		if ts, err := time.ParseInLocation(layout, s, d.location()); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

func (d *Decoder) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}

func (d *Decoder) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// flexString accepts either a JSON string or a JSON number; older task IDs
// were written as numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = flexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
