package timeconv

import (
	"fmt"
	"time"
)

// Slot is a capacity slot: a calendar date plus an hour of day, both in
// wall-clock terms.
type Slot struct {
	Year  int
	Month time.Month
	Day   int
	Hour  int
}

func (c Converter) SlotOf(t time.Time) Slot {
	w := c.ToWallClock(t)
	return Slot{Year: w.Year(), Month: w.Month(), Day: w.Day(), Hour: w.Hour()}
}

// SlotAt builds the slot for a calendar day and hour.
func SlotAt(day time.Time, hour int) Slot {
	return Slot{Year: day.Year(), Month: day.Month(), Day: day.Day(), Hour: hour}
}

func (s Slot) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:00", s.Year, int(s.Month), s.Day, s.Hour)
}
