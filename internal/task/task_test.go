package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCount(t *testing.T) {
	tests := []struct {
		hours float64
		want  int
	}{
		{0, 0},
		{-1, 0},
		{0.1, 1},
		{0.25, 1},
		{0.3, 2},
		{1, 4},
		{1.5, 6},
		{2.55, 11},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SessionCount(tt.hours), "hours=%v", tt.hours)
	}
}

func TestNew(t *testing.T) {
	due := time.Date(2026, 1, 5, 9, 0, 0, 123456789, time.UTC)

	tsk, err := New("  Write report ", due, 1)
	require.NoError(t, err)

	assert.NotEmpty(t, tsk.ID)
	assert.Equal(t, "Write report", tsk.Name)
	assert.Equal(t, 4, tsk.TotalSessions)
	assert.Equal(t, 0, tsk.CompletedSessions)
	assert.Empty(t, tsk.Sessions)
	assert.Equal(t, 123000000, tsk.DueDate.Nanosecond())
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", time.Now(), 1)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = New("task", time.Now(), 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestEdit_ResetsProgress(t *testing.T) {
	tsk, err := New("task", time.Now(), 1)
	require.NoError(t, err)
	tsk.Sessions = make([]Session, 4)
	tsk.RecordSession()
	id := tsk.ID

	require.NoError(t, tsk.Edit("renamed", time.Now(), 0.5))

	assert.Equal(t, id, tsk.ID)
	assert.Equal(t, "renamed", tsk.Name)
	assert.Equal(t, 2, tsk.TotalSessions)
	assert.Equal(t, 0, tsk.CompletedSessions)
	assert.Nil(t, tsk.Sessions)
}

func TestRecordSession(t *testing.T) {
	tsk := &Task{TotalSessions: 2, Sessions: make([]Session, 2)}

	assert.True(t, tsk.RecordSession())
	assert.True(t, tsk.Sessions[0].Completed)
	assert.False(t, tsk.Sessions[1].Completed)

	assert.True(t, tsk.RecordSession())
	assert.True(t, tsk.IsComplete())

	assert.False(t, tsk.RecordSession())
	assert.Equal(t, 2, tsk.CompletedSessions)
}

func TestComplete(t *testing.T) {
	tsk := &Task{TotalSessions: 3, Sessions: make([]Session, 3)}
	tsk.Complete()

	assert.Equal(t, 3, tsk.CompletedSessions)
	_, ok := tsk.NextPending()
	assert.False(t, ok)
}

func TestClone_IsDeep(t *testing.T) {
	orig := Task{ID: "a", Sessions: []Session{{ID: "s"}}}
	c := orig.Clone()
	c.Sessions[0].Completed = true

	assert.False(t, orig.Sessions[0].Completed)
	assert.False(t, orig.Equal(c))
}

func TestEqual_ComparesInstants(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, loc)

	a := Task{ID: "a", DueDate: at}
	b := Task{ID: "a", DueDate: at.UTC()}

	assert.True(t, a.Equal(b))
}

func TestIndexOf(t *testing.T) {
	tasks := []Task{{ID: "a"}, {ID: "b"}}

	assert.Equal(t, 1, IndexOf(tasks, "b"))
	assert.Equal(t, -1, IndexOf(tasks, "c"))
}
