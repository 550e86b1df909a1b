package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func testDecoder() *Decoder {
	return &Decoder{Location: time.UTC, Now: func() time.Time { return fixedNow }}
}

func sampleTasks() []Task {
	start := time.UnixMilli(1767603600000).UTC() // 2026-01-05 09:00 UTC
	return []Task{
		{
			ID:                "t1",
			Name:              "Write report",
			DueDate:           start,
			Duration:          0.5,
			TotalSessions:     2,
			CompletedSessions: 1,
			Sessions: []Session{
				{ID: "s1", StartTime: start, EndTime: start.Add(WorkDuration), Completed: true},
				{ID: "s2", StartTime: start.Add(30 * time.Minute), EndTime: start.Add(55 * time.Minute)},
			},
		},
	}
}

func TestEncodeEpoch(t *testing.T) {
	data, err := EncodeEpoch(sampleTasks())
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1767603600000), raw[0]["dueDate"])
}

func TestEncodeLegacy(t *testing.T) {
	data, err := EncodeLegacy(sampleTasks())
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2026-01-05T09:00:00.000Z", raw[0]["dueDate"])
}

func TestRoundTrip_BothEncodings(t *testing.T) {
	encoders := map[string]func([]Task) ([]byte, error){
		"epoch":  EncodeEpoch,
		"legacy": EncodeLegacy,
	}

	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			data, err := enc(sampleTasks())
			require.NoError(t, err)

			decoded, problems, err := testDecoder().Decode(data)
			require.NoError(t, err)
			assert.Empty(t, problems)
			assert.True(t, EqualCollections(sampleTasks(), decoded))
		})
	}
}

func TestRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 5).Draw(rt, "tasks")
		tasks := make([]Task, 0, n)
		for i := 0; i < n; i++ {
			base := rapid.Int64Range(0, 4102444800000).Draw(rt, "base")
			count := rapid.IntRange(0, 8).Draw(rt, "sessions")
			tsk := Task{
				ID:            rapid.StringMatching(`[a-z0-9]{1,12}`).Draw(rt, "id"),
				Name:          rapid.StringMatching(`[A-Za-z0-9 ]{0,20}`).Draw(rt, "name"),
				DueDate:       time.UnixMilli(base).UTC(),
				Duration:      float64(count) / SessionsPerHour,
				TotalSessions: count,
			}
			tsk.CompletedSessions = rapid.IntRange(0, count).Draw(rt, "completed")
			for j := 0; j < count; j++ {
				start := time.UnixMilli(base).UTC().Add(time.Duration(j) * (WorkDuration + BreakDuration))
				tsk.Sessions = append(tsk.Sessions, Session{
					ID:        rapid.StringMatching(`[a-z0-9]{1,8}`).Draw(rt, "sid"),
					StartTime: start,
					EndTime:   start.Add(WorkDuration),
					Completed: j < tsk.CompletedSessions,
				})
			}
			tasks = append(tasks, tsk)
		}

		legacy := rapid.Bool().Draw(rt, "legacy")
		var data []byte
		var err error
		if legacy {
			data, err = EncodeLegacy(tasks)
		} else {
			data, err = EncodeEpoch(tasks)
		}
		if err != nil {
			rt.Fatalf("encode failed: %v", err)
		}

		decoded, problems, err := testDecoder().Decode(data)
		if err != nil {
			rt.Fatalf("decode failed: %v", err)
		}
		if len(problems) != 0 {
			rt.Fatalf("unexpected problems: %v", problems)
		}
		if !EqualCollections(tasks, decoded) {
			rt.Fatalf("round trip mismatch (legacy=%v)", legacy)
		}
	})
}

func TestDecode_MixedEncodings(t *testing.T) {
	data := []byte(`[
		{"id": 1767603600000, "name": "numeric id", "dueDate": "1767603600000", "duration": 0.25,
		 "completedSessions": 0, "totalSessions": 1,
		 "sessions": [{"id": "a", "startTime": 1767603600000, "endTime": "2026-01-05T09:25:00.000Z", "isBreak": false, "completed": false}]},
		{"id": "t2", "name": "wall clock", "dueDate": "2026-01-05T14:30", "duration": 1}
	]`)

	tasks, problems, err := testDecoder().Decode(data)
	require.NoError(t, err)
	assert.Empty(t, problems)
	require.Len(t, tasks, 2)

	want := time.UnixMilli(1767603600000).UTC()
	assert.Equal(t, "1767603600000", tasks[0].ID)
	assert.True(t, tasks[0].DueDate.Equal(want))
	assert.True(t, tasks[0].Sessions[0].StartTime.Equal(want))
	assert.True(t, tasks[0].Sessions[0].EndTime.Equal(want.Add(WorkDuration)))

	assert.True(t, tasks[1].DueDate.Equal(time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, 4, tasks[1].TotalSessions)
}

func TestDecode_UnparseableFallsBackToNow(t *testing.T) {
	data := []byte(`[{"id": "t1", "name": "bad", "dueDate": "not a date", "duration": 1, "totalSessions": 4,
		"sessions": [{"id": "s1", "startTime": null, "endTime": 1767605100000}]}]`)

	tasks, problems, err := testDecoder().Decode(data)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	assert.Len(t, problems, 2)
	assert.Equal(t, "dueDate", problems[0].Field)
	assert.Equal(t, "sessions[0].startTime", problems[1].Field)
	assert.True(t, tasks[0].DueDate.Equal(fixedNow))
	assert.True(t, tasks[0].Sessions[0].StartTime.Equal(fixedNow))
	assert.True(t, tasks[0].Sessions[0].EndTime.Equal(time.UnixMilli(1767605100000)))
}

func TestDecode_SkipsBrokenEntries(t *testing.T) {
	data := []byte(`[{"id": "ok", "name": "fine", "dueDate": 0, "duration": 1}, "garbage", {"id": {"x": 1}}]`)

	tasks, problems, err := testDecoder().Decode(data)
	require.NoError(t, err)

	assert.Len(t, tasks, 1)
	assert.Equal(t, "ok", tasks[0].ID)
	assert.Len(t, problems, 2)
}

func TestDecode_ClampsCompletedSessions(t *testing.T) {
	data := []byte(`[{"id": "t", "name": "n", "dueDate": 0, "duration": 0.5, "totalSessions": 2, "completedSessions": 7}]`)

	tasks, _, err := testDecoder().Decode(data)
	require.NoError(t, err)

	assert.Equal(t, 2, tasks[0].CompletedSessions)
}

func TestDecode_EmptyAndInvalid(t *testing.T) {
	tasks, _, err := testDecoder().Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	tasks, _, err = testDecoder().Decode([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, _, err = testDecoder().Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestParseInstant(t *testing.T) {
	d := testDecoder()
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	inputs := []string{
		`1767603600000`,
		`"1767603600000"`,
		`1.7676036e12`,
		`"2026-01-05T09:00:00Z"`,
		`"2026-01-05T09:00:00.000Z"`,
		`"2026-01-05T10:00:00+01:00"`,
		`"2026-01-05T09:00"`,
	}
	for _, in := range inputs {
		got, err := d.ParseInstant(json.RawMessage(in))
		require.NoError(t, err, in)
		assert.True(t, got.Equal(want), "%s -> %v", in, got)
	}

	for _, bad := range []string{`""`, `null`, `"NaN"`, `"tomorrow"`, `true`} {
		_, err := d.ParseInstant(json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}
