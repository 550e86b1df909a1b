package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/nadmax/pomodoro/internal/app"
	"github.com/nadmax/pomodoro/internal/report"
	"github.com/spf13/cobra"
)

var (
	reportType   string
	reportFormat string
	reportOut    string
	reportFrom   string
	reportTo     string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a CSV or JSON report",
	Long: `Generate a report over the task collection.

Types:
  tasks     one row per task with its progress
  sessions  every session in the range, in start order
  daily     scheduled and completed sessions per day
  hourly    pending sessions per hour slot

--from and --to accept RFC 3339 or 2006-01-02. Use --out - to write the
report to stdout instead of a file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			req := report.Request{
				Type:      reportType,
				From:      reportFrom,
				To:        reportTo,
				Format:    reportFormat,
				OutputDir: reportOut,
			}

			if reportOut == "-" {
				data, err := rt.Reports.Build(rt.App.Tasks(), &req)
				if err != nil {
					return err
				}
				return report.Write(cmd.OutOrStdout(), req.Format, data, time.Now())
			}

			path, err := rt.Reports.Generate(ctx, rt.App.Tasks(), req)
			if err != nil {
				return fmt.Errorf("generating report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
			return nil
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportType, "type", report.TypeTasks, "Report type: tasks, sessions, daily, hourly")
	reportCmd.Flags().StringVar(&reportFormat, "format", report.FormatCSV, "Output format: csv or json")
	reportCmd.Flags().StringVar(&reportOut, "out", "./reports", "Output directory, or - for stdout")
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "Range start")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "Range end")
	rootCmd.AddCommand(reportCmd)
}
