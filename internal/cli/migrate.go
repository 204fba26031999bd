package cli

import (
	"github.com/spf13/cobra"

	"github.com/gravilog-risk-core/internal/app"
	"github.com/gravilog-risk-core/internal/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the audit trail database schema",
	}

	run := func(up bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return app.Migrate(cmd.Context(), database.URL(cfg.Database), up, logger)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(true),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE:  run(false),
		},
	)
	return cmd
}
