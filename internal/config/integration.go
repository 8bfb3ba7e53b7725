package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EnvHome overrides the configuration directory.
const EnvHome = "PHONELOOKUP_HOME"

// GlobalConfig holds the global configuration instance.
var GlobalConfig *Config        //nolint:gochecknoglobals // Singleton pattern for configuration
var globalConfigMu sync.RWMutex //nolint:gochecknoglobals // Protects globalConfigInit flag
var globalConfigInit bool       //nolint:gochecknoglobals // Tracks if global config has been initialized
var globalConfigErr error       //nolint:gochecknoglobals // Load error from the first initialization

// InitGlobalConfig loads the global configuration once. The config file,
// a .env file in the working directory and PHONELOOKUP_* variables are
// applied in that order. Load errors are kept for GlobalConfigError and
// the defaults are used instead.
func InitGlobalConfig() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	if globalConfigInit {
		return
	}

	cfg := New()
	if path := cfg.ConfigPath(); path != "" {
		loaded, err := Load(path)
		if err != nil {
			globalConfigErr = err
		} else {
			cfg = loaded
		}
	}

	LoadDotEnv("")
	if err := ApplyEnvOverrides(cfg); err != nil && globalConfigErr == nil {
		globalConfigErr = err
	}

	GlobalConfig = cfg
	globalConfigInit = true
}

// ResetGlobalConfigForTest resets the global config for testing purposes.
func ResetGlobalConfigForTest() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	GlobalConfig = nil
	globalConfigErr = nil
	globalConfigInit = false
}

// GetGlobalConfig returns the global configuration, initializing it if needed.
func GetGlobalConfig() *Config {
	InitGlobalConfig()
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return GlobalConfig
}

// GlobalConfigError reports the error hit while loading the global config, if any.
func GlobalConfigError() error {
	InitGlobalConfig()
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfigErr
}

// GetLogLevel returns the configured log level.
func GetLogLevel() string {
	return GetGlobalConfig().Logging.Level
}

// GetLogFile returns the configured log file path.
func GetLogFile() string {
	return GetGlobalConfig().Logging.File
}

// EnsureConfigDir ensures the phonelookup configuration directory exists.
func EnsureConfigDir() error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// EnsureLogDir creates the parent directory of the configured log file.
// It does nothing when no log file is configured.
func EnsureLogDir() error {
	cfg := GetGlobalConfig()
	if cfg.Logging.File == "" {
		return nil
	}
	logDir := filepath.Dir(cfg.Logging.File)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}
	return nil
}

// GetConfigDir returns the phonelookup configuration directory,
// PHONELOOKUP_HOME when set and ~/.phonelookup otherwise.
func GetConfigDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".phonelookup"), nil
}

// EnsureSubDirs creates the config directory plus the cache and log
// directories the current configuration points at.
func EnsureSubDirs() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	cfg := GetGlobalConfig()
	if cfg.Cache.Enabled {
		cacheDir, err := cfg.CacheDir()
		if err != nil {
			return fmt.Errorf("failed to get cache directory: %w", err)
		}
		if mkdirErr := os.MkdirAll(cacheDir, 0o700); mkdirErr != nil {
			return fmt.Errorf("failed to create cache directory %q: %w", cacheDir, mkdirErr)
		}
	}

	return EnsureLogDir()
}
