package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSessionCompleted(t *testing.T) {
	SessionsCompleted.Reset()

	RecordSessionCompleted(true)
	RecordSessionCompleted(true)
	RecordSessionCompleted(false)

	assert.Equal(t, 2.0, getCounterValue(t, SessionsCompleted, "true"))
	assert.Equal(t, 1.0, getCounterValue(t, SessionsCompleted, "false"))
}

func TestRecordPhaseSkipped(t *testing.T) {
	SessionsSkipped.Reset()

	RecordPhaseSkipped("work")

	assert.Equal(t, 1.0, getCounterValue(t, SessionsSkipped, "work"))
}

func TestRecordTaskCompleted(t *testing.T) {
	before := readCounter(t, TasksCompleted)

	RecordTaskCompleted()

	assert.Equal(t, before+1, readCounter(t, TasksCompleted))
}

func TestRecordCapacityRejection(t *testing.T) {
	CapacityRejections.Reset()

	RecordCapacityRejection("add")
	RecordCapacityRejection("reschedule")
	RecordCapacityRejection("add")

	assert.Equal(t, 2.0, getCounterValue(t, CapacityRejections, "add"))
	assert.Equal(t, 1.0, getCounterValue(t, CapacityRejections, "reschedule"))
}

func TestRecordStoreSave(t *testing.T) {
	StoreSaves.Reset()
	StoreSaveDuration.Reset()

	tests := []struct {
		name     string
		target   string
		err      error
		result   string
		duration time.Duration
	}{
		{
			name:     "local ok",
			target:   "local",
			result:   "ok",
			duration: 2 * time.Millisecond,
		},
		{
			name:     "remote failure",
			target:   "remote",
			err:      errors.New("connection refused"),
			result:   "error",
			duration: 500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordStoreSave(tt.target, tt.err, tt.duration)

			assert.Equal(t, 1.0, getCounterValue(t, StoreSaves, tt.target, tt.result))
			assert.Equal(t, tt.duration.Seconds(), getHistogramSum(t, StoreSaveDuration, tt.target))
		})
	}
}

func TestRecordStoreLoad(t *testing.T) {
	StoreLoads.Reset()

	RecordStoreLoad("remote")
	RecordStoreLoad("local")

	assert.Equal(t, 1.0, getCounterValue(t, StoreLoads, "remote"))
	assert.Equal(t, 1.0, getCounterValue(t, StoreLoads, "local"))
}

func TestRecordDeserializationFallbacks(t *testing.T) {
	before := readCounter(t, DeserializationFallbacks)

	RecordDeserializationFallbacks(3)

	assert.Equal(t, before+3, readCounter(t, DeserializationFallbacks))
}

func TestUpdateTaskGauges_Reset(t *testing.T) {
	TasksTracked.Reset()

	UpdateTaskGauges(map[string]int{"pending": 5, "completed": 1})
	assert.Equal(t, 5.0, getGaugeValue(t, TasksTracked, "pending"))
	assert.Equal(t, 1.0, getGaugeValue(t, TasksTracked, "completed"))

	UpdateTaskGauges(map[string]int{"pending": 2})
	assert.Equal(t, 2.0, getGaugeValue(t, TasksTracked, "pending"))
	assert.Equal(t, 0.0, getGaugeValue(t, TasksTracked, "completed"))
}

func TestBoolGauges(t *testing.T) {
	SetPendingSync(true)
	assert.Equal(t, 1.0, readGauge(t, PendingSync))
	SetPendingSync(false)
	assert.Equal(t, 0.0, readGauge(t, PendingSync))

	SetTimerRunning(true)
	assert.Equal(t, 1.0, readGauge(t, TimerRunning))
	SetTimerRunning(false)
	assert.Equal(t, 0.0, readGauge(t, TimerRunning))
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	tests := []struct {
		name     string
		method   string
		endpoint string
		status   string
		duration time.Duration
	}{
		{
			name:     "successful GET",
			method:   "GET",
			endpoint: "/api/tasks",
			status:   "200",
			duration: 50 * time.Millisecond,
		},
		{
			name:     "capacity conflict",
			method:   "POST",
			endpoint: "/api/tasks",
			status:   "409",
			duration: 100 * time.Millisecond,
		},
		{
			name:     "not found",
			method:   "GET",
			endpoint: "/unknown",
			status:   "404",
			duration: 10 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordHTTPRequest(tt.method, tt.endpoint, tt.status, tt.duration)

			count := getCounterValue(t, HTTPRequestsTotal, tt.method, tt.endpoint, tt.status)
			assert.Greater(t, count, 0.0, "request counter should be incremented")

			sum := getHistogramSum(t, HTTPRequestDuration, tt.method, tt.endpoint)
			assert.Greater(t, sum, 0.0, "duration should be recorded")
		})
	}
}

func TestStoreSaveDurationBuckets(t *testing.T) {
	StoreSaveDuration.Reset()

	durations := []time.Duration{
		time.Millisecond,
		20 * time.Millisecond,
		300 * time.Millisecond,
		4 * time.Second,
	}
	for _, d := range durations {
		RecordStoreSave("remote", nil, d)
	}

	metric := getHistogramMetric(t, StoreSaveDuration, "remote")
	assert.Equal(t, uint64(len(durations)), metric.Histogram.GetSampleCount())
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	c, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	return readCounter(t, c)
}

func readCounter(t *testing.T, c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	return metric.Counter.GetValue()
}

func getGaugeValue(t *testing.T, gauge *prometheus.GaugeVec, labels ...string) float64 {
	g, err := gauge.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	return readGauge(t, g)
}

func readGauge(t *testing.T, g prometheus.Gauge) float64 {
	metric := &dto.Metric{}
	require.NoError(t, g.Write(metric))
	return metric.Gauge.GetValue()
}

func getHistogramSum(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) float64 {
	return getHistogramMetric(t, histogram, labels...).Histogram.GetSampleSum()
}

func getHistogramMetric(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) *dto.Metric {
	metric := &dto.Metric{}
	observer, err := histogram.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	h := observer.(prometheus.Histogram)
	require.NoError(t, h.Write(metric))
	return metric
}
