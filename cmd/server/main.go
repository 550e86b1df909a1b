package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadmax/pomodoro/internal/api"
	"github.com/nadmax/pomodoro/internal/app"
	"github.com/nadmax/pomodoro/internal/config"
	"github.com/nadmax/pomodoro/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{}).Fatal("invalid configuration", "error", err)
	}
	l := logging.New(logging.Options{Level: cfg.LogLevel, Prefix: "server"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Bootstrap(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to start", "error", err)
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			l.Error("failed to close runtime", "error", err)
		}
	}()

	if err := api.Serve(ctx, rt, ":"+cfg.Port, l); err != nil {
		l.Error("server stopped", "error", err)
		stop()
		os.Exit(1)
	}
}
