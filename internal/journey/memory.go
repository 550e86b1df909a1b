package journey

import (
	"context"
	"sort"
	"sync"
	"time"
)

type dayActivity struct {
	sessions int
	tasks    int
	points   int
}

// Memory applies the journey rules in process. It is used when no ledger
// database is configured.
type Memory struct {
	mu       sync.Mutex
	loc      *time.Location
	now      func() time.Time
	days     map[string]*dayActivity
	points   int
	sessions int
	tasks    int
}

var _ Journey = (*Memory)(nil)

func NewMemory(loc *time.Location, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{loc: loc, now: now, days: make(map[string]*dayActivity)}
}

func (m *Memory) today() *dayActivity {
	key := dayOf(m.now(), m.loc).Format(dayLayout)
	d, ok := m.days[key]
	if !ok {
		d = &dayActivity{}
		m.days[key] = d
	}
	return d
}

func (m *Memory) AddSessionCompletion(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.today()
	d.sessions++
	m.sessions++
	earned := PointsPerSession
	if d.sessions == BonusSessionCount {
		earned += BonusPoints
	}
	d.points += earned
	m.points += earned
	return earned, nil
}

func (m *Memory) AddTaskCompletion(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.today()
	d.tasks++
	d.points += PointsPerTask
	m.tasks++
	m.points += PointsPerTask
	return PointsPerTask, nil
}

func (m *Memory) Summary(context.Context) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := dayOf(m.now(), m.loc)
	var active []string
	for day, d := range m.days {
		if d.sessions > 0 {
			active = append(active, day)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(active)))

	todayPoints := 0
	if d, ok := m.days[today.Format(dayLayout)]; ok {
		todayPoints = d.points
	}
	return newSummary(m.points, todayPoints, m.sessions, m.tasks, streak(active, today)), nil
}
