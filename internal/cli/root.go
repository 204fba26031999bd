// Package cli wires the gravilog command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gravilog-risk-core/internal/app"
	"github.com/gravilog-risk-core/internal/config"
	"github.com/gravilog-risk-core/internal/domain"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configFile string
	verbose    bool
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "gravilog",
		Short: "Gravilog - pregnancy symptom risk assessment",
		Long: `Gravilog asks a short series of questions about pregnancy symptoms and
reports a risk level (low, medium or high) with recommended next steps.

Clinical safety rules always decide the minimum risk level. An optional
reasoning service may raise it, never lower it.

Gravilog does not replace medical advice.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./config.yaml or /etc/gravilog/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newMCPCommand(opts),
		newAssessCommand(opts),
		newSummaryCommand(opts),
		newExportCommand(opts),
		newMigrateCommand(opts),
		newSetupCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig reads and validates the configuration and builds the logger.
func (o *rootOptions) loadConfig() (*domain.Config, *logrus.Logger, error) {
	manager, err := config.NewManager(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if o.verbose {
		if err := manager.Set("logging.level", "debug"); err != nil {
			return nil, nil, err
		}
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := manager.GetConfig()
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	if used := manager.ConfigFileUsed(); used != "" {
		logger.WithField("config_file", used).Debug("Loaded configuration file")
	}
	return cfg, logger, nil
}

// bootstrap loads the configuration and builds the application.
func (o *rootOptions) bootstrap(ctx context.Context) (*app.App, error) {
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to close application resources")
	}
}
