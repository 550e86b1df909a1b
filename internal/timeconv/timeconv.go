// Package timeconv translates between the absolute instants used for storage
// and the wall-clock view used for scheduling and display.
package timeconv

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var wallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ToAbsolute returns the storage form of a wall-clock time. The instant is
// unchanged; only the location is normalized to UTC.
func ToAbsolute(wall time.Time) time.Time {
	return wall.UTC()
}

type Converter struct {
	Location *time.Location
}

func NewConverter(loc *time.Location) Converter {
	if loc == nil {
		loc = time.Local
	}
	return Converter{Location: loc}
}

// ToWallClock expresses an absolute instant in the converter's location.
// ToWallClock(ToAbsolute(x)).Equal(x) holds for every x.
func (c Converter) ToWallClock(abs time.Time) time.Time {
	return abs.In(c.location())
}

// Date returns the wall-clock midnight of the day containing t.
func (c Converter) Date(t time.Time) time.Time {
	w := c.ToWallClock(t)
	return time.Date(w.Year(), w.Month(), w.Day(), 0, 0, 0, 0, c.location())
}

// At returns the wall-clock instant for the given calendar day and hour.
func (c Converter) At(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, c.location())
}

// DaysBetween counts calendar days from a to b in wall-clock terms.
func (c Converter) DaysBetween(a, b time.Time) int {
	da, db := c.Date(a), c.Date(b)
	// noon avoids DST edges shortening or stretching a day
	ua := time.Date(da.Year(), da.Month(), da.Day(), 12, 0, 0, 0, time.UTC)
	ub := time.Date(db.Year(), db.Month(), db.Day(), 12, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// ParseInput reads user input as an RFC 3339 instant, or as a wall-clock
// time interpreted in the converter's location.
func (c Converter) ParseInput(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range wallLayouts {
		if t, err := time.ParseInLocation(layout, s, c.location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ParseDate reads a YYYY-MM-DD calendar day as local midnight.
func (c Converter) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, c.location())
}

func (c Converter) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
