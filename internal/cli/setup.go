package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gravilog-risk-core/internal/config"
	"github.com/gravilog-risk-core/internal/setup"
)

type setupOptions struct {
	clientConfig string
	binary       string
	dataDir      string
	withAPIKey   bool
	yes          bool
}

func newSetupCommand(opts *rootOptions) *cobra.Command {
	so := &setupOptions{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register gravilog with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&so.clientConfig, "client-config", "", "client configuration file (default: platform Claude Desktop location)")

	configure := &cobra.Command{
		Use:   "claude-desktop",
		Short: "Add gravilog to the Claude Desktop configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := so.clientConfigPath()
			if err != nil {
				return err
			}

			binary := so.binary
			if binary == "" {
				if binary, err = os.Executable(); err != nil {
					return fmt.Errorf("locating gravilog binary: %w", err)
				}
			}
			if binary, err = filepath.Abs(binary); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client config: %s\nServer binary: %s\n", path, binary)
			if !so.yes && !confirm(cmd, "Write this configuration?") {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}

			configFile := opts.configFile
			if configFile != "" {
				if configFile, err = filepath.Abs(configFile); err != nil {
					return err
				}
			}
			entry, err := setup.Configure(path, setup.Options{
				BinaryPath: binary,
				DataDir:    so.dataDir,
				ConfigFile: configFile,
				APIKeyEnv:  so.withAPIKey,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Registered %q: %s %s\nRestart the client to load it.\n",
				setup.ServerName, entry.Command, strings.Join(entry.Args, " "))
			return nil
		},
	}
	configure.Flags().StringVar(&so.binary, "binary", "", "path of the gravilog binary (default: this executable)")
	configure.Flags().StringVar(&so.dataDir, "data-dir", "", "data directory passed as GRAVILOG_DATA_DIR")
	configure.Flags().BoolVar(&so.withAPIKey, "with-api-key", false, "copy OPENAI_API_KEY from the environment into the client configuration")
	configure.Flags().BoolVarP(&so.yes, "yes", "y", false, "do not ask for confirmation")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether gravilog is registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := so.clientConfigPath()
			if err != nil {
				return err
			}
			st, err := setup.GetStatus(path, config.DefaultDataDir())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client config: %s\nConfigured:    %t\n", st.ConfigPath, st.Configured)
			if st.Configured {
				fmt.Fprintf(out, "Server binary: %s\n", st.ServerPath)
			}
			fmt.Fprintf(out, "Data dir:      %s\n", st.DataDir)
			for _, issue := range st.Issues {
				fmt.Fprintf(out, "  ! %s\n", issue)
			}
			return nil
		},
	}

	cmd.AddCommand(configure, status)
	return cmd
}

func (o *setupOptions) clientConfigPath() (string, error) {
	if o.clientConfig != "" {
		return o.clientConfig, nil
	}
	return setup.ClaudeDesktopConfigPath()
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
