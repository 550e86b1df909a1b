package cli

import (
	"fmt"

	"github.com/nadmax/pomodoro/internal/journey"
	"github.com/nadmax/pomodoro/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the local cache and the journey ledger",
	Long: `Apply the embedded schema migrations. The local SQLite cache is always
migrated; the PostgreSQL journey ledger only when POSTGRES_DSN is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		out := cmd.OutOrStdout()

		cache, err := store.OpenSQLiteCache(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("migrating local cache: %w", err)
		}
		if err := cache.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Local cache ready at %s\n", cfg.CachePath)

		if cfg.PostgresDSN == "" {
			fmt.Fprintln(out, "POSTGRES_DSN not set, skipping journey ledger")
			return nil
		}

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		ledger, err := journey.NewPostgresLedger(cfg.PostgresDSN, cfg.UserID, loc)
		if err != nil {
			return fmt.Errorf("connecting journey ledger: %w", err)
		}
		defer func() { _ = ledger.Close() }()

		if err := ledger.Migrate(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Journey ledger migrated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
