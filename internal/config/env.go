package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override values from the config file.
const (
	EnvAPIKey       = "PHONELOOKUP_API_KEY"
	EnvAPIHost      = "PHONELOOKUP_API_HOST"
	EnvMonthlyLimit = "PHONELOOKUP_MONTHLY_LIMIT"
	EnvLogLevel     = "PHONELOOKUP_LOG_LEVEL"
	EnvLogFile      = "PHONELOOKUP_LOG_FILE"
)

// LoadDotEnv loads path, or ".env" when path is empty, into the process
// environment. Variables that are already set win. A missing file is ignored.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// ApplyEnvOverrides copies PHONELOOKUP_* variables onto cfg.
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.API.Key = v
	}
	if v := os.Getenv(EnvAPIHost); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv(EnvMonthlyLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", EnvMonthlyLimit, v)
		}
		cfg.Processing.MonthlyLimit = n
	}
	return nil
}
