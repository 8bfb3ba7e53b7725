// Package cli implements the phonelookup command line.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/phonelookup/internal/config"
	"github.com/rshade/phonelookup/internal/logging"
	"github.com/rshade/phonelookup/internal/migration"
)

// skipMigrationEnv disables the legacy usage prompt.
const skipMigrationEnv = "PHONELOOKUP_SKIP_MIGRATION_CHECK"

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger = zerolog.Nop() //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the phonelookup CLI. It
// loads configuration, wires up logging and registers the subcommands.
func NewRootCmd(ver string) *cobra.Command {
	var logResult *logging.LogPathResult

	cmd := &cobra.Command{
		Use:           "phonelookup",
		Short:         "Caller identification for spreadsheets of phone numbers",
		Long:          "phonelookup: look up names and pictures for every number in a spreadsheet, with a monthly quota and resumable runs",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			result := setupLogging(cmd)
			logResult = result
			offerLegacyUsage(cmd)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "YAML file layered over the global configuration for this invocation")
	cmd.AddCommand(
		NewRunCmd(), NewLookupCmd(), NewEmbedCmd(),
		newUsageCmd(), newConfigCmd(), newCacheCmd(),
	)

	return cmd
}

// loadConfig initializes the global config and applies the --config overlay.
// A broken global config file is reported but does not stop commands that
// can work from defaults.
func loadConfig(cmd *cobra.Command) error {
	cfg := config.GetGlobalConfig()
	if err := config.GlobalConfigError(); err != nil {
		cmd.PrintErrf("Warning: %v; using defaults\n", err)
	}

	overlay, _ := cmd.Flags().GetString("config")
	if overlay == "" {
		return nil
	}
	if err := config.ShallowMergeYAML(cfg, overlay); err != nil {
		return fmt.Errorf("applying --config: %w", err)
	}
	return nil
}

// offerLegacyUsage prompts to adopt an api_usage.json from the working
// directory when no ledger exists yet. Interactive sessions only.
func offerLegacyUsage(cmd *cobra.Command) {
	if os.Getenv(skipMigrationEnv) != "" || !isTerminal(os.Stdin) {
		return
	}
	target, err := config.GetGlobalConfig().UsageFile()
	if err != nil {
		return
	}
	if err = migration.RunMigration(cmd.ErrOrStderr(), cmd.InOrStdin(), ".", target); err != nil {
		logger.Warn().Err(err).Msg("legacy usage migration failed")
		cmd.PrintErrf("Warning: %v\n", err)
	}
}

const rootCmdExample = `  # Look up every number in a spreadsheet
  phonelookup run contacts.xlsx

  # Resume an interrupted run, allowing up to 1500 lookups this month
  phonelookup run contacts.xlsx --limit 1500

  # Start over, ignoring any saved progress
  phonelookup run contacts.xlsx --restart

  # Look up a single number
  phonelookup lookup 03001234567

  # Show this month's API usage
  phonelookup usage show

  # Initialize configuration and set the API key
  phonelookup config init
  phonelookup config set api.key YOUR_KEY`

// newUsageCmd creates the usage command group.
func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "usage", Short: "Monthly API usage commands"}
	cmd.AddCommand(
		NewUsageShowCmd(), NewUsageMonthsCmd(), NewUsageResetCmd(),
		NewUsageSetCmd(), NewUsageAddCmd(), NewUsageExportCmd(), NewUsageImportCmd(),
	)
	return cmd
}

// newCacheCmd creates the cache command group.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Image download cache commands"}
	cmd.AddCommand(NewCacheInfoCmd(), NewCacheClearCmd())
	return cmd
}

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(
		NewConfigInitCmd(), NewConfigSetCmd(), NewConfigGetCmd(),
		NewConfigListCmd(), NewConfigValidateCmd(), NewConfigPathCmd(),
	)
	return cmd
}
