package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/phonelookup/internal/config"
)

// writeOverlay writes YAML content to a temp file and returns its path.
func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestShallowMergeYAML(t *testing.T) {
	t.Parallel()

	t.Run("overlay section replaces listed fields only", func(t *testing.T) {
		t.Parallel()
		target := config.Defaults()
		target.Lookup.CountryCode = "44"

		path := writeOverlay(t, "lookup:\n  max_retries: 7\n  request_delay: 250ms\n")
		require.NoError(t, config.ShallowMergeYAML(target, path))

		assert.Equal(t, 7, target.Lookup.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, target.Lookup.RequestDelay)
		assert.Equal(t, "44", target.Lookup.CountryCode)
		assert.Equal(t, config.DefaultMonthlyLimit, target.Processing.MonthlyLimit)
	})

	t.Run("unknown top-level keys are ignored", func(t *testing.T) {
		t.Parallel()
		target := config.Defaults()
		path := writeOverlay(t, "plugins:\n  foo: bar\nprocessing:\n  save_interval: 3\n")
		require.NoError(t, config.ShallowMergeYAML(target, path))
		assert.Equal(t, 3, target.Processing.SaveInterval)
	})

	t.Run("empty file is a no-op", func(t *testing.T) {
		t.Parallel()
		target := config.Defaults()
		path := writeOverlay(t, "# nothing here\n")
		require.NoError(t, config.ShallowMergeYAML(target, path))
		assert.Equal(t, config.Defaults().Lookup, target.Lookup)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()
		path := writeOverlay(t, "images: [unterminated")
		assert.Error(t, config.ShallowMergeYAML(config.Defaults(), path))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		err := config.ShallowMergeYAML(config.Defaults(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("nil target", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, config.ShallowMergeYAML(nil, "irrelevant"))
	})
}
