package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rshade/phonelookup/internal/config"
)

// redacted replaces the API key in listings.
const redacted = "********"

const keyAPIKey = "api.key"

// loadConfigFile reads the global config file without environment or
// --config overrides, so that set writes back only what the file held.
func loadConfigFile() (*config.Config, error) {
	path := config.New().ConfigPath()
	if path == "" {
		return nil, fmt.Errorf("cannot determine the configuration directory")
	}
	return config.Load(path)
}

// NewConfigSetCmd creates the config set command.
func NewConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Example: `  phonelookup config set api.key YOUR_KEY
  phonelookup config set processing.monthly_limit 1500
  phonelookup config set lookup.retry_delay 3s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigFile()
			if err != nil {
				return err
			}
			if err = cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err = cfg.Validate(); err != nil {
				return err
			}
			if err = cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			shown := args[1]
			if args[0] == keyAPIKey {
				shown = redacted
			}
			cmd.Printf("Set %s = %s\n", args[0], shown)
			return nil
		},
	}
}

// NewConfigGetCmd creates the config get command.
func NewConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.GetGlobalConfig().Get(args[0])
			if err != nil {
				return err
			}
			if args[0] == keyAPIKey && v != "" {
				v = redacted
			}
			cmd.Println(formatValue(v))
			return nil
		},
	}
}

// NewConfigListCmd creates the config list command.
func NewConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every configuration value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetGlobalConfig()
			for _, key := range config.Keys() {
				v, err := cfg.Get(key)
				if err != nil {
					return err
				}
				if key == keyAPIKey && v != "" {
					v = redacted
				}
				cmd.Printf("%s = %s\n", key, formatValue(v))
			}
			return nil
		},
	}
}

// NewConfigPathCmd creates the config path command.
func NewConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.New().ConfigPath()
			if path == "" {
				return fmt.Errorf("cannot determine the configuration directory")
			}
			cmd.Println(path)
			return nil
		},
	}
}

// formatValue prints scalars as is and anything else as inline YAML.
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, int, float64:
		return fmt.Sprint(t)
	default:
		data, err := yaml.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
