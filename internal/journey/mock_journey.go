package journey

import (
	"context"
	"sync"
)

// MockJourney records calls and returns canned results.
type MockJourney struct {
	mu            sync.Mutex
	SessionCalls  int
	TaskCalls     int
	SessionPoints int
	TaskPoints    int
	SessionError  error
	TaskError     error
	SummaryResult Summary
	SummaryError  error
}

var _ Journey = (*MockJourney)(nil)

func NewMockJourney() *MockJourney {
	return &MockJourney{SessionPoints: PointsPerSession, TaskPoints: PointsPerTask}
}

func (m *MockJourney) AddSessionCompletion(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionCalls++
	if m.SessionError != nil {
		return 0, m.SessionError
	}
	return m.SessionPoints, nil
}

func (m *MockJourney) AddTaskCompletion(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskCalls++
	if m.TaskError != nil {
		return 0, m.TaskError
	}
	return m.TaskPoints, nil
}

func (m *MockJourney) Summary(context.Context) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SummaryResult, m.SummaryError
}

func (m *MockJourney) Calls() (sessions, tasks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SessionCalls, m.TaskCalls
}
