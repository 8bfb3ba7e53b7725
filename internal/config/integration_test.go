package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConfig(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	ResetGlobalConfigForTest()
	t.Cleanup(ResetGlobalConfigForTest)

	cfg := GetGlobalConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultMonthlyLimit, cfg.Processing.MonthlyLimit)
	require.NoError(t, GlobalConfigError())

	// Subsequent calls return the same instance.
	assert.Same(t, cfg, GetGlobalConfig())

	ResetGlobalConfigForTest()
	assert.NotSame(t, cfg, GetGlobalConfig())
}

func TestGlobalConfig_LoadsFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvMonthlyLimit, "250")
	ResetGlobalConfigForTest()
	t.Cleanup(ResetGlobalConfigForTest)

	content := "api:\n  key: from-file\nlookup:\n  max_retries: 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(content), 0o600))

	cfg := GetGlobalConfig()
	assert.Equal(t, "from-env", cfg.API.Key, "environment wins over file")
	assert.Equal(t, 5, cfg.Lookup.MaxRetries)
	assert.Equal(t, 250, cfg.Processing.MonthlyLimit)
	assert.Equal(t, filepath.Join(home, "config.yaml"), cfg.ConfigPath())
}

func TestGlobalConfig_BadFileKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	ResetGlobalConfigForTest()
	t.Cleanup(ResetGlobalConfigForTest)

	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("lookup: [oops"), 0o600))

	cfg := GetGlobalConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultMaxRetries, cfg.Lookup.MaxRetries)
	assert.Error(t, GlobalConfigError())
}

func TestConfigGetters(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	ResetGlobalConfigForTest()
	t.Cleanup(ResetGlobalConfigForTest)

	cfg := GetGlobalConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.File = "/tmp/phonelookup-test.log"

	assert.Equal(t, "debug", GetLogLevel())
	assert.Equal(t, "/tmp/phonelookup-test.log", GetLogFile())
	assert.Equal(t, "debug", GetLoggingConfig().Level)
}

func TestGetConfigDir(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvHome, "/custom/home")
		dir, err := GetConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/custom/home", dir)
	})

	t.Run("home default", func(t *testing.T) {
		t.Setenv(EnvHome, "")
		tmpHome := t.TempDir()
		t.Setenv("HOME", tmpHome)
		dir, err := GetConfigDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpHome, ".phonelookup"), dir)
	})
}

func TestEnsureSubDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	ResetGlobalConfigForTest()
	t.Cleanup(ResetGlobalConfigForTest)

	cfg := GetGlobalConfig()
	cfg.Logging.File = filepath.Join(home, "logs", "phonelookup.log")

	require.NoError(t, EnsureSubDirs())

	for _, dir := range []string{home, filepath.Join(home, "cache", "images"), filepath.Join(home, "logs")} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestToLoggingConfig(t *testing.T) {
	lc := LoggingConfig{Level: "warn", Format: "json"}
	out := lc.ToLoggingConfig()
	assert.Equal(t, "stderr", out.Output)
	assert.Empty(t, out.File)

	lc.File = "/var/log/phonelookup.log"
	out = lc.ToLoggingConfig()
	assert.Equal(t, "file", out.Output)
	assert.Equal(t, "/var/log/phonelookup.log", out.File)
	assert.Equal(t, "warn", out.Level)
	assert.Equal(t, "json", out.Format)
}
