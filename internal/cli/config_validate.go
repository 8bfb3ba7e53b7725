package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/phonelookup/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration: the config file, .env and
PHONELOOKUP_* environment variables and any --config overlay.

Every out-of-range setting is reported, not only the first one. A missing
API key is reported as a warning.`,
		Example: `  # Validate current configuration
  phonelookup config validate

  # Validate and show the effective values
  phonelookup config validate --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, config.GetGlobalConfig(), verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, cfg *config.Config, verbose bool) error {
	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				cmd.PrintErrf("  %s: %s\n", f.Key, f.Message)
			}
		}
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := cfg.RequireAPIKey(); err != nil {
		cmd.PrintErrf("Warning: %v\n", err)
	}
	cmd.Printf("Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}

	return nil
}

// printVerboseDetails prints the settings that matter most for a run.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Printf("Config file:     %s\n", cfg.ConfigPath())
	cmd.Printf("API endpoint:    %s\n", cfg.API.URL())
	cmd.Printf("Country code:    %s\n", cfg.Lookup.CountryCode)
	policy := retryPolicy(cfg)
	waits := make([]string, 0, cfg.Lookup.MaxRetries)
	for _, d := range policy.Schedule() {
		waits = append(waits, d.String())
	}
	if len(waits) == 0 {
		waits = append(waits, "none")
	}
	cmd.Printf("Retries:         %d attempts, waits %s (at most %s per number)\n",
		cfg.Lookup.MaxRetries, strings.Join(waits, ", "), policy.MaxTotalDelay())
	cmd.Printf("Request delay:   %s\n", cfg.Lookup.RequestDelay)
	if cfg.Processing.MonthlyLimit > 0 {
		cmd.Printf("Monthly limit:   %s\n", formatInt(cfg.Processing.MonthlyLimit))
	} else {
		cmd.Printf("Monthly limit:   unlimited\n")
	}
	cmd.Printf("Save interval:   %d rows\n", cfg.Processing.SaveInterval)
	cmd.Printf("Number column:   %s\n", cfg.Processing.NumberColumn)
	cmd.Printf("Images per row:  %d (%dx%d, quality %d)\n",
		cfg.Images.MaxPerRecord, cfg.Images.MaxWidth, cfg.Images.MaxHeight, cfg.Images.Quality)
	if usagePath, err := cfg.UsageFile(); err == nil {
		cmd.Printf("Usage ledger:    %s\n", usagePath)
	}
	if cfg.Cache.Enabled {
		if dir, err := cfg.CacheDir(); err == nil {
			cmd.Printf("Image cache:     %s (ttl %s)\n", dir, cfg.Cache.TTL)
		}
	} else {
		cmd.Printf("Image cache:     disabled\n")
	}
}
