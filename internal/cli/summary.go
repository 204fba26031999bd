package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gravilog-risk-core/internal/store"
)

func newSummaryCommand(opts *rootOptions) *cobra.Command {
	var (
		userID string
		days   int
		locale string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize a user's recent assessments",
		Long:  `Print how many assessments a user completed in the last --days days and how they were distributed across risk levels.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			summary, err := a.Service.Summary(ctx, userID, days)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.Text(a.Locale, a.Locale.Resolve(locale)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	cmd.Flags().IntVarP(&days, "days", "d", 7, "period length in days")
	cmd.Flags().StringVarP(&locale, "locale", "l", "en", "output language (en, ar)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		userID string
		since  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's assessments as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			from, err := parseSince(since)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := opts.bootstrap(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, ferr := os.Create(output)
				if ferr != nil {
					return fmt.Errorf("creating export file: %w", ferr)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("closing export file: %w", cerr)
					}
				}()
				w = f
			}

			return store.ExportJSON(ctx, a.Store, userID, from, w)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	cmd.Flags().StringVar(&since, "since", "", "earliest assessment date, YYYY-MM-DD (default: everything)")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "output file, - for stdout")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}
