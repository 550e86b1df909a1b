package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadmax/pomodoro/internal/app"
	"github.com/nadmax/pomodoro/internal/config"
	"github.com/nadmax/pomodoro/internal/logging"
)

// The worker keeps a device's queued task changes flowing to the remote
// store without serving the API.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{}).Fatal("invalid configuration", "error", err)
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		workerID = fmt.Sprintf("sync-%d", time.Now().Unix())
	}
	l := logging.New(logging.Options{Level: cfg.LogLevel, Prefix: workerID})

	if cfg.UserID == "" {
		l.Fatal("POMODORO_USER_ID is required to sync")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Bootstrap(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to start", "error", err)
	}

	go rt.Sync.Start()

	<-ctx.Done()
	l.Info("shutting down worker")
	rt.Sync.Stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		l.Error("failed to close runtime", "error", err)
	}
}
