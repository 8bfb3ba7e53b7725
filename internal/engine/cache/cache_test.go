package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newStore(t *testing.T, c *clock) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), true, DefaultTTL, WithClock(c.Now))
	require.NoError(t, err)
	return s
}

func TestEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := NewEntry("https://img/a.jpg", []byte{1, 2, 3}, time.Hour, now)

	assert.Equal(t, Key("https://img/a.jpg"), entry.Key)
	assert.Equal(t, 3600, entry.TTLSeconds)
	assert.False(t, entry.IsExpired(now))
	assert.Equal(t, time.Hour, entry.TimeUntilExpiration(now))
	assert.Equal(t, 10*time.Minute, entry.Age(now.Add(10*time.Minute)))

	t.Run("Touch", func(t *testing.T) {
		later := now.Add(30 * time.Minute)
		entry.Touch(later)
		assert.Equal(t, later.Add(time.Hour), entry.ExpiresAt)
	})

	t.Run("Expiration", func(t *testing.T) {
		past := entry.ExpiresAt.Add(time.Second)
		assert.True(t, entry.IsExpired(past))
		assert.Equal(t, time.Duration(0), entry.TimeUntilExpiration(past))
	})

	t.Run("JSON", func(t *testing.T) {
		encoded, err := json.Marshal(NewEntry("u", []byte("body"), time.Hour, now))
		require.NoError(t, err)

		var decoded Entry
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		assert.Equal(t, []byte("body"), decoded.Data)
		assert.Equal(t, "u", decoded.URL)
		assert.True(t, now.Equal(decoded.CreatedAt))
		assert.True(t, now.Add(time.Hour).Equal(decoded.ExpiresAt))
	})
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("https://a/b"), Key("  https://a/b\n"))
	assert.NotEqual(t, Key("https://a/b"), Key("https://a/b?x=1"))
	assert.Len(t, Key("x"), 64)
}

func TestFileStore(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := newStore(t, c)
	url := "https://img/a.jpg"

	_, err := s.Get(url)
	require.ErrorIs(t, err, ErrCacheNotFound)

	require.NoError(t, s.Set(url, []byte("jpeg")))
	got, err := s.Get(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), got)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	size, err := s.Size()
	require.NoError(t, err)
	assert.Positive(t, size)

	t.Run("expires after TTL", func(t *testing.T) {
		c.t = c.t.Add(DefaultTTL + time.Second)
		_, err := s.Get(url)
		require.ErrorIs(t, err, ErrCacheExpired)

		count, err := s.Count()
		require.NoError(t, err)
		assert.Zero(t, count, "expired entry removed on read")
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Set(url, []byte("x")))
		require.NoError(t, s.Delete(url))
		require.NoError(t, s.Delete(url))
		_, err := s.Get(url)
		require.ErrorIs(t, err, ErrCacheNotFound)
	})

	t.Run("invalid key", func(t *testing.T) {
		require.ErrorIs(t, s.Set("", nil), ErrInvalidCacheKey)
		_, err := s.Get("")
		require.ErrorIs(t, err, ErrInvalidCacheKey)
	})
}

func TestFileStore_CleanupAndClear(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	s := newStore(t, c)

	require.NoError(t, s.Set("https://old", []byte("1")))
	c.t = c.t.Add(DefaultTTL - time.Hour)
	require.NoError(t, s.Set("https://new", []byte("2")))
	c.t = c.t.Add(2 * time.Hour)

	// Non-cache files are left alone.
	require.NoError(t, os.WriteFile(filepath.Join(s.Directory(), "notes.txt"), []byte("x"), 0o600))

	removed, err := s.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := s.Get("https://new")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	require.NoError(t, s.Clear())
	count, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.FileExists(t, filepath.Join(s.Directory(), "notes.txt"))
}

func TestFileStore_Disabled(t *testing.T) {
	s, err := NewFileStore("", false, 0)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled())

	_, err = s.Get("https://a")
	require.ErrorIs(t, err, ErrCacheDisabled)
	require.ErrorIs(t, s.Set("https://a", nil), ErrCacheDisabled)
	_, err = s.CleanupExpired()
	require.ErrorIs(t, err, ErrCacheDisabled)
}

func TestNewFileStore_Validation(t *testing.T) {
	_, err := NewFileStore("", true, DefaultTTL)
	require.Error(t, err)

	_, err = NewFileStore(t.TempDir(), true, time.Second)
	require.ErrorIs(t, err, ErrInvalidTTL)
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"3600", time.Hour, false},
		{"7d", DefaultTTL, false},
		{"1h30m", 90 * time.Minute, false},
		{"30", 0, true},
		{"abc", 0, true},
		{"400d", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTTL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "30m", FormatDuration(30*time.Minute))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
	assert.Equal(t, "7d", FormatDuration(DefaultTTL))
	assert.Equal(t, "1d2h", FormatDuration(26*time.Hour))
}
