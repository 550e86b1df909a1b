package cli

import (
	"context"

	"github.com/nadmax/pomodoro/internal/api"
	"github.com/nadmax/pomodoro/internal/app"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background timer and sync loops",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
			addr := serveAddr
			if addr == "" {
				addr = ":" + rt.Config.Port
			}
			return api.Serve(ctx, rt, addr, rt.Logger())
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default :$PORT)")
	rootCmd.AddCommand(serveCmd)
}
