package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/app"
	"github.com/nadmax/pomodoro/internal/dashboard"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/metrics"
	"github.com/nadmax/pomodoro/internal/middleware"
	"github.com/nadmax/pomodoro/internal/timer"
)

const (
	collectInterval = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Handler wires the API over a bootstrapped runtime, wrapped in the metrics
// and request logging middleware.
func Handler(rt *app.Runtime, l *log.Logger) http.Handler {
	l = logging.OrDiscard(l)
	dash := dashboard.NewDashboard(rt.Store, rt.Journey, l)
	api := NewAPI(rt.App, dash, rt.Reports, l)
	return middleware.MetricsMiddleware(middleware.LoggingMiddleware(l, api))
}

// Serve runs the HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully. Background work of rt is started and left to the caller
// to close.
func Serve(ctx context.Context, rt *app.Runtime, addr string, l *log.Logger) error {
	l = logging.OrDiscard(l)

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(rt, l),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rt.Start(ctx)
	go startMetricsCollector(ctx, rt)

	errc := make(chan error, 1)
	go func() {
		l.Info("server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	l.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMetricsCollector(ctx context.Context, rt *app.Runtime) {
	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateRuntimeMetrics(rt)
		}
	}
}

func updateRuntimeMetrics(rt *app.Runtime) {
	metrics.SetPendingSync(rt.Store.Pending())

	snap := rt.App.Timer()
	metrics.SetTimerRunning(snap.State == timer.StateRunning)
}
