// Package middleware provides HTTP middleware for metrics collection and
// request logging.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/metrics"
)

var recordHTTPRequest = metrics.RecordHTTPRequest

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// LoggingMiddleware logs every request at debug level and server errors at
// error level.
func LoggingMiddleware(l *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		kv := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start).Round(time.Microsecond),
		}
		if wrapped.statusCode >= http.StatusInternalServerError {
			l.Error("request failed", kv...)
			return
		}
		l.Debug("request", kv...)
	})
}

var taskActions = map[string]bool{
	"start":      true,
	"complete":   true,
	"reschedule": true,
}

func normalizeEndpoint(path string) string {
	if !strings.HasPrefix(path, "/api/tasks/") {
		return path
	}

	parts := strings.Split(strings.TrimPrefix(path, "/api/tasks/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return "/api/tasks/:id"
	case len(parts) == 2 && taskActions[parts[1]]:
		return "/api/tasks/:id/" + parts[1]
	default:
		return path
	}
}
