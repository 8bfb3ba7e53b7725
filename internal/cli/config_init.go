package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/phonelookup/internal/config"
)

// NewConfigInitCmd creates the config init command for initializing configuration.
func NewConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates ~/.phonelookup/config.yaml (or $PHONELOOKUP_HOME/config.yaml) with
default values, plus the cache directory.`,
		Example: `  # Create configuration
  phonelookup config init

  # Create configuration, overwriting existing
  phonelookup config init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initGlobalConfig(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")

	return cmd
}

// initGlobalConfig creates the global config file.
func initGlobalConfig(cmd *cobra.Command, force bool) error {
	cfg := config.New()
	if cfg.ConfigPath() == "" {
		return errors.New("cannot determine the configuration directory")
	}

	if !force {
		if _, err := os.Stat(cfg.ConfigPath()); err == nil {
			return errors.New("configuration file already exists, use --force to overwrite")
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("cannot access config path %s: %w", cfg.ConfigPath(), err)
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	if err := config.EnsureSubDirs(); err != nil {
		cmd.PrintErrf("Warning: %v\n", err)
	}

	cmd.Printf("Configuration initialized successfully\n")
	cmd.Printf("Configuration file: %s\n", cfg.ConfigPath())
	cmd.Printf("Next: phonelookup config set api.key YOUR_KEY\n")

	return nil
}
