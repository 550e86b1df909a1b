package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nadmax/pomodoro/internal/app"
	"github.com/nadmax/pomodoro/internal/task"
	"github.com/nadmax/pomodoro/internal/timeconv"
	"github.com/spf13/cobra"
)

const displayLayout = "Mon 2006-01-02 15:04"

var (
	taskName  string
	taskDue   string
	taskHours float64

	rescheduleSession int
	rescheduleHour    int
	rescheduleDate    string

	listSessions bool
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task"},
	Short:   "Manage scheduled tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every task with its progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(_ context.Context, rt *app.Runtime) error {
			tasks := rt.App.Tasks()
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks scheduled.")
				return nil
			}
			printTasks(out, rt.Converter, tasks, listSessions)
			return nil
		})
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a task and schedule its sessions",
	Long: `Create a task and lay out one 25 minute session per quarter hour of
requested effort, starting at --due and staying inside working hours.

--due accepts RFC 3339 or "2006-01-02T15:04" in the configured time zone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			due, err := rt.Converter.ParseInput(taskDue)
			if err != nil {
				return fmt.Errorf("invalid --due: %w", err)
			}
			t, err := rt.App.AddTask(ctx, taskName, due, taskHours)
			if err != nil {
				return fmt.Errorf("adding task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s (%d sessions)\n", t.ID, t.TotalSessions)
			printSessions(cmd.OutOrStdout(), rt.Converter, t)
			return nil
		})
	},
}

var tasksEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Replace a task's name, due date and duration",
	Long: `Replace a task's name, due date and duration. Every session is
regenerated from the new due date and session progress is reset.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			due, err := rt.Converter.ParseInput(taskDue)
			if err != nil {
				return fmt.Errorf("invalid --due: %w", err)
			}
			t, err := rt.App.EditTask(ctx, args[0], taskName, due, taskHours)
			if err != nil {
				return fmt.Errorf("editing task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s (%d sessions)\n", t.ID, t.TotalSessions)
			printSessions(cmd.OutOrStdout(), rt.Converter, t)
			return nil
		})
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:     "delete <task-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			if err := rt.App.DeleteTask(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		})
	},
}

var tasksRescheduleCmd = &cobra.Command{
	Use:   "reschedule <task-id>",
	Short: "Move a session and shift the ones after it",
	Long: `Move one session to another hour and day. Every later session that is
not completed moves by the same amount of wall-clock time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			date, err := rt.Converter.ParseDate(rescheduleDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			t, err := rt.App.RescheduleTask(ctx, args[0], rescheduleSession, rescheduleHour, date)
			if err != nil {
				return fmt.Errorf("rescheduling task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rescheduled session %d of %s\n", rescheduleSession, t.Name)
			printSessions(cmd.OutOrStdout(), rt.Converter, t)
			return nil
		})
	},
}

var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark every session of a task as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			t, err := rt.App.CompleteTask(ctx, args[0])
			if err != nil {
				return fmt.Errorf("completing task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed task %s\n", t.Name)
			return nil
		})
	},
}

func printTasks(w io.Writer, conv timeconv.Converter, tasks []task.Task, sessions bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDUE\tHOURS\tSESSIONS")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d/%d\n",
			t.ID, t.Name, conv.ToWallClock(t.DueDate).Format(displayLayout),
			t.Duration, t.CompletedSessions, t.TotalSessions)
	}
	_ = tw.Flush()

	if !sessions {
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "\n%s\n", t.Name)
		printSessions(w, conv, t)
	}
}

func printSessions(w io.Writer, conv timeconv.Converter, t task.Task) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, s := range t.Sessions {
		mark := " "
		if s.Completed {
			mark = "x"
		}
		fmt.Fprintf(tw, "  [%s]\t#%d\t%s\t%s\n", mark, i,
			conv.ToWallClock(s.StartTime).Format(displayLayout),
			conv.ToWallClock(s.EndTime).Format("15:04"))
	}
	_ = tw.Flush()
}

func init() {
	for _, c := range []*cobra.Command{tasksAddCmd, tasksEditCmd} {
		c.Flags().StringVar(&taskName, "name", "", "Task name")
		c.Flags().StringVar(&taskDue, "due", "", "First session start (RFC 3339 or 2006-01-02T15:04)")
		c.Flags().Float64Var(&taskHours, "hours", 1, "Requested effort in hours")
		_ = c.MarkFlagRequired("name")
		_ = c.MarkFlagRequired("due")
	}

	tasksRescheduleCmd.Flags().IntVar(&rescheduleSession, "session", 0, "Index of the session to move")
	tasksRescheduleCmd.Flags().IntVar(&rescheduleHour, "hour", 0, "Target hour (0-23)")
	tasksRescheduleCmd.Flags().StringVar(&rescheduleDate, "date", "", "Target day (2006-01-02)")
	_ = tasksRescheduleCmd.MarkFlagRequired("hour")
	_ = tasksRescheduleCmd.MarkFlagRequired("date")

	tasksListCmd.Flags().BoolVar(&listSessions, "sessions", false, "Also print every session")

	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksEditCmd, tasksDeleteCmd, tasksRescheduleCmd, tasksCompleteCmd)
	rootCmd.AddCommand(tasksCmd)
}
