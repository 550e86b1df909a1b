package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nadmax/pomodoro/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Port:            "0",
		CachePath:       filepath.Join(t.TempDir(), "cache.db"),
		Timezone:        "UTC",
		WorkStart:       8,
		WorkEnd:         20,
		LoadTimeout:     time.Second,
		SaveTimeout:     time.Second,
		PersistInterval: time.Second,
		SyncInterval:    time.Second,
		StaleAfter:      30 * time.Minute,
		LogLevel:        "fatal",
	}

	orig := loadConfig
	loadConfig = func() (*config.Config, error) { return cfg, nil }
	t.Cleanup(func() { loadConfig = orig })
	return cfg
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func addTask(t *testing.T, name, due string, hours float64) string {
	t.Helper()

	out, err := run(t, "tasks", "add", "--name", name, "--due", due, "--hours", fmt.Sprint(hours))
	require.NoError(t, err, out)

	var id string
	_, err = fmt.Sscanf(out, "Created task %s", &id)
	require.NoError(t, err, out)
	return id
}

func TestCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"version", "tasks", "serve", "migrate", "report"} {
		assert.True(t, names[want], "expected %q to be registered", want)
	}

	sub := map[string]bool{}
	for _, c := range tasksCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, want := range []string{"list", "add", "edit", "delete", "reschedule", "complete"} {
		assert.True(t, sub[want], "expected tasks %q to be registered", want)
	}
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pomo 1.2.3")
	assert.Contains(t, out, "commit: abc")
}

func TestTasksAddAndList(t *testing.T) {
	useTestConfig(t)

	out, err := run(t, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks scheduled.")

	id := addTask(t, "Write report", "2026-10-20T09:00", 0.5)

	out, err = run(t, "tasks", "list", "--sessions")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Write report")
	assert.Contains(t, out, "0/2")
	assert.Contains(t, out, "Tue 2026-10-20 09:00")
	assert.Contains(t, out, "Tue 2026-10-20 09:30")
}

func TestTasksAdd_Errors(t *testing.T) {
	useTestConfig(t)

	_, err := run(t, "tasks", "add", "--name", "x", "--due", "soon")
	assert.ErrorContains(t, err, "invalid --due")

	_, err = run(t, "tasks", "add", "--due", "2026-10-20T09:00")
	assert.Error(t, err)

	addTask(t, "A", "2026-10-20T10:00", 0.25)
	addTask(t, "B", "2026-10-20T10:00", 0.25)
	_, err = run(t, "tasks", "add", "--name", "C", "--due", "2026-10-20T10:00", "--hours", "0.25")
	assert.ErrorContains(t, err, "time slot is full")
}

func TestTasksEditRescheduleComplete(t *testing.T) {
	useTestConfig(t)
	id := addTask(t, "Draft", "2026-10-20T09:00", 0.5)

	out, err := run(t, "tasks", "edit", id, "--name", "Draft v2", "--due", "2026-10-20T13:00", "--hours", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Updated task "+id+" (4 sessions)")

	out, err = run(t, "tasks", "reschedule", id, "--session", "0", "--hour", "15", "--date", "2026-10-21")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Wed 2026-10-21 15:00")
	assert.Contains(t, out, "Wed 2026-10-21 15:30")

	_, err = run(t, "tasks", "reschedule", id, "--hour", "15", "--date", "21-10-2026")
	assert.ErrorContains(t, err, "invalid --date")

	out, err = run(t, "tasks", "complete", id)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Completed task Draft v2")

	_, err = run(t, "tasks", "complete", id)
	assert.ErrorContains(t, err, "task already completed")
}

func TestTasksDelete(t *testing.T) {
	useTestConfig(t)
	id := addTask(t, "Doomed", "2026-10-20T09:00", 0.25)

	out, err := run(t, "tasks", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted task "+id)

	_, err = run(t, "tasks", "delete", id)
	assert.ErrorContains(t, err, "not found")
}

func TestReport(t *testing.T) {
	useTestConfig(t)
	addTask(t, "Reported", "2026-10-20T09:00", 0.5)

	out, err := run(t, "report", "--type", "sessions", "--format", "json", "--out", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_rows": 2`)

	dir := t.TempDir()
	out, err = run(t, "report", "--type", "daily", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Report written to "+dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".csv"))

	_, err = run(t, "report", "--type", "weekly", "--out", "-")
	assert.ErrorContains(t, err, "unsupported report type")
}

func TestMigrate_LocalOnly(t *testing.T) {
	cfg := useTestConfig(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Local cache ready at "+cfg.CachePath)
	assert.Contains(t, out, "skipping journey ledger")

	_, err = os.Stat(cfg.CachePath)
	assert.NoError(t, err)
}

func TestServe_StopsWithContext(t *testing.T) {
	useTestConfig(t)
	resetFlags(rootCmd)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	assert.NoError(t, rootCmd.ExecuteContext(ctx))
}
