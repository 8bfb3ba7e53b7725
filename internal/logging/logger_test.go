package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, Config{Level: "warn", Format: FormatJSON})

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"shown"`)
}

func TestNewLogger_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, Config{Level: "loud", Format: FormatJSON})
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestNewLoggerWithPath(t *testing.T) {
	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "phonelookup.log")
		res := NewLoggerWithPath(Config{Level: "info", Output: OutputFile, File: path})
		t.Cleanup(func() { _ = res.Close() })

		require.True(t, res.UsingFile)
		assert.False(t, res.FallbackUsed)
		res.Logger.Info().Msg("to file")
		require.NoError(t, res.Close())
		require.NoError(t, res.Close(), "close is idempotent")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})

	t.Run("unwritable path falls back to stderr", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

		res := NewLoggerWithPath(Config{Output: OutputFile, File: filepath.Join(blocker, "app.log")})
		assert.False(t, res.UsingFile)
		assert.True(t, res.FallbackUsed)
		assert.NotEmpty(t, res.FallbackReason)
	})

	t.Run("stderr output", func(t *testing.T) {
		res := NewLoggerWithPath(Config{Output: OutputStderr})
		assert.False(t, res.UsingFile)
		assert.False(t, res.FallbackUsed)
	})
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	l := ComponentLogger(NewLogger(&buf, Config{Format: FormatJSON}), "lookup")
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"lookup"`)
}

func TestTraceIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceIDFromContext(ctx))

	generated := GetOrGenerateTraceID(ctx)
	assert.Len(t, generated, 26, "ULID string length")

	ctx = ContextWithTraceID(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.Equal(t, "01HZZZZZZZZZZZZZZZZZZZZZZZ", GetOrGenerateTraceID(ctx))

	var buf bytes.Buffer
	l := NewLogger(&buf, Config{Format: FormatJSON})
	ctx = l.WithContext(ctx)
	logger := FromContext(ctx)
	logger.Info().Msg("traced")
	assert.Contains(t, buf.String(), `"trace_id":"01HZZZZZZZZZZZZZZZZZZZZZZZ"`)
}
