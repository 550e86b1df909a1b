package timeconv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustLoad(t *testing.T, name string) *time.Location {
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestToAbsoluteKeepsInstant(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	wall := time.Date(2026, 3, 9, 9, 30, 0, 0, loc)

	abs := ToAbsolute(wall)

	assert.True(t, abs.Equal(wall))
	assert.Equal(t, time.UTC, abs.Location())
}

func TestToWallClockRoundTrip(t *testing.T) {
	c := NewConverter(mustLoad(t, "Europe/Paris"))

	rapid.Check(t, func(rt *rapid.T) {
		ms := rapid.Int64Range(0, 4102444800000).Draw(rt, "ms")
		x := time.UnixMilli(ms)

		got := c.ToWallClock(ToAbsolute(x))
		if !got.Equal(x) {
			rt.Fatalf("round trip changed instant: %v -> %v", x, got)
		}
	})
}

func TestSlotOf(t *testing.T) {
	loc := mustLoad(t, "Asia/Tokyo")
	c := NewConverter(loc)

	// 01:15 UTC is 10:15 in Tokyo
	slot := c.SlotOf(time.Date(2026, 1, 5, 1, 15, 0, 0, time.UTC))

	assert.Equal(t, Slot{Year: 2026, Month: time.January, Day: 5, Hour: 10}, slot)
	assert.Equal(t, "2026-01-05 10:00", slot.String())
}

func TestDaysBetween(t *testing.T) {
	c := NewConverter(mustLoad(t, "America/New_York"))
	loc := c.Location

	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same day", time.Date(2026, 3, 7, 8, 0, 0, 0, loc), time.Date(2026, 3, 7, 19, 0, 0, 0, loc), 0},
		{"across DST change", time.Date(2026, 3, 7, 23, 0, 0, 0, loc), time.Date(2026, 3, 9, 1, 0, 0, 0, loc), 2},
		{"backwards", time.Date(2026, 3, 10, 8, 0, 0, 0, loc), time.Date(2026, 3, 7, 8, 0, 0, 0, loc), -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.DaysBetween(tt.a, tt.b))
		})
	}
}

func TestNilLocationDefaultsToLocal(t *testing.T) {
	c := Converter{}
	now := time.Now()

	assert.Equal(t, time.Local, c.ToWallClock(now).Location())
}

func TestParseInput(t *testing.T) {
	c := NewConverter(mustLoad(t, "Asia/Tokyo"))
	want := time.Date(2026, 10, 14, 0, 30, 0, 0, time.UTC)

	for _, s := range []string{
		"2026-10-14T09:30",
		"2026-10-14T09:30:00",
		"2026-10-14 09:30",
		"2026-10-14T00:30:00Z",
		"2026-10-14T02:30:00+02:00",
	} {
		got, err := c.ParseInput(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}

	_, err := c.ParseInput("next tuesday")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	c := NewConverter(mustLoad(t, "Asia/Tokyo"))

	day, err := c.ParseDate("2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, 0, day.Hour())
	assert.Equal(t, c.Location, day.Location())

	_, err = c.ParseDate("14/10/2026")
	assert.Error(t, err)
}
