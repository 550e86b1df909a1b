// Package metrics provides Prometheus metrics for the pomodoro service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodoro_sessions_completed_total",
			Help: "Total number of work sessions completed",
		},
		[]string{"tracked"},
	)
	SessionsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodoro_phases_skipped_total",
			Help: "Total number of timer phases skipped",
		},
		[]string{"phase"},
	)
	TasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pomodoro_tasks_completed_total",
			Help: "Total number of tasks fully completed",
		},
	)
	CapacityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodoro_capacity_rejections_total",
			Help: "Total number of placements rejected because the hour slot was full",
		},
		[]string{"operation"},
	)
	StoreSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodoro_store_saves_total",
			Help: "Total number of task collection writes by target and result",
		},
		[]string{"target", "result"},
	)
	StoreSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pomodoro_store_save_duration_seconds",
			Help:    "Task collection write duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"target"},
	)
	StoreLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodoro_store_loads_total",
			Help: "Total number of task collection loads by winning source",
		},
		[]string{"source"},
	)
	DeserializationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pomodoro_deserialization_fallbacks_total",
			Help: "Total number of persisted fields that could not be decoded",
		},
	)
	TasksTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pomodoro_tasks",
			Help: "Current number of tasks by status",
		},
		[]string{"status"},
	)
	PendingSync = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pomodoro_pending_sync",
			Help: "1 when local changes have not reached the remote store",
		},
	)
	TimerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pomodoro_timer_running",
			Help: "1 while the countdown is running",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pomodoro_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pomodoro_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordSessionCompleted(tracked bool) {
	label := "false"
	if tracked {
		label = "true"
	}
	SessionsCompleted.WithLabelValues(label).Inc()
}

func RecordPhaseSkipped(phase string) {
	SessionsSkipped.WithLabelValues(phase).Inc()
}

func RecordTaskCompleted() {
	TasksCompleted.Inc()
}

func RecordCapacityRejection(operation string) {
	CapacityRejections.WithLabelValues(operation).Inc()
}

func RecordStoreSave(target string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreSaves.WithLabelValues(target, result).Inc()
	StoreSaveDuration.WithLabelValues(target).Observe(duration.Seconds())
}

func RecordStoreLoad(source string) {
	StoreLoads.WithLabelValues(source).Inc()
}

func RecordDeserializationFallbacks(n int) {
	DeserializationFallbacks.Add(float64(n))
}

func UpdateTaskGauges(byStatus map[string]int) {
	TasksTracked.Reset()
	for status, count := range byStatus {
		TasksTracked.WithLabelValues(status).Set(float64(count))
	}
}

func SetPendingSync(pending bool) {
	PendingSync.Set(boolGauge(pending))
}

func SetTimerRunning(running bool) {
	TimerRunning.Set(boolGauge(running))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
