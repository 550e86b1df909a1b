// Package cli implements the pomo command line: task management, report
// generation, schema migration and the HTTP server.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/app"
	"github.com/nadmax/pomodoro/internal/config"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// Overridden by tests.
var (
	loadConfig = config.Load
	newLogger  = func(cfg *config.Config) *log.Logger {
		return logging.New(logging.Options{Level: cfg.LogLevel, Prefix: "pomo"})
	}
)

const closeTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "pomo",
	Short: "Pomodoro task scheduler and focus timer",
	Long: `pomo schedules tasks into 25 minute work sessions inside working hours,
keeps at most two sessions per hour slot, runs the work/break timer and keeps
the task list in sync between the local cache and the remote store.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pomo %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// withRuntime bootstraps the application for one command and closes it,
// flushing pending remote writes, once fn returns.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	l := newLogger(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := app.Bootstrap(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("starting pomodoro: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if closeErr := rt.Close(closeCtx); closeErr != nil {
			l.Warn("shutdown incomplete", "error", closeErr)
		}
	}()

	if err := fn(ctx, rt); err != nil {
		return err
	}
	if warning := rt.App.Warning(); warning != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
	}
	return nil
}
