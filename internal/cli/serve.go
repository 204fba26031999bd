package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gravilog-risk-core/internal/api"
	"github.com/gravilog-risk-core/internal/mcp"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Start the HTTP API on the configured host and port.

The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			server := api.NewServer(a.Config.Server, a.Service, a.Locale, a.HealthChecks(), a.Logger)
			if err := server.Start(ctx); err != nil {
				return err
			}
			a.Logger.Info("Server stopped")
			return nil
		},
	}
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server over stdio",
		Long: `Expose the assessment as MCP tools on stdin/stdout so a desktop
assistant can drive the dialogue. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			return mcp.NewServer(a.Service, a.Locale, api.Version, a.Logger).Run(ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gravilog %s\n", api.Version)
		},
	}
}
