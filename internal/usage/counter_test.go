package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock for rollover tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}

func TestRecordCall_PersistsAndReloads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "api_usage.json")
	clock := newFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	c, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	assert.Equal(t, 0, c.CurrentCount())

	for i := 1; i <= 3; i++ {
		rec, recErr := c.RecordCall()
		require.NoError(t, recErr)
		assert.Equal(t, Record{Month: "2026-03", Count: i, LifetimeTotal: i}, rec)
	}

	reopened, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.CurrentCount())
	assert.Equal(t, 3, reopened.Snapshot().LifetimeTotal)

	var doc map[string]any
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "metadata")
	assert.Contains(t, doc, "monthly_usage")
	assert.Contains(t, doc, "all_time_stats")
	month := doc["monthly_usage"].(map[string]any)["2026-03"].(map[string]any)
	assert.InDelta(t, 3, month["count"], 0)
	assert.Equal(t, map[string]any{"2026-03-14": float64(3)}, month["daily_breakdown"])
}

func TestRecordCall_MonthRollover(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC))
	c := NewInMemory(WithClock(clock.Now))

	_, err := c.RecordCall()
	require.NoError(t, err)
	_, err = c.RecordCall()
	require.NoError(t, err)
	assert.Equal(t, 2, c.CurrentCount())

	clock.Set(time.Date(2026, 2, 1, 0, 1, 0, 0, time.UTC))
	assert.Equal(t, 0, c.CurrentCount(), "new month starts at zero without a call")
	assert.False(t, c.IsOverLimit(2))

	rec, err := c.RecordCall()
	require.NoError(t, err)
	assert.Equal(t, Record{Month: "2026-02", Count: 1, LifetimeTotal: 3}, rec)

	assert.Equal(t, []MonthCount{{Month: "2026-01", Count: 2}, {Month: "2026-02", Count: 1}}, c.Months())
}

func TestIsOverLimit(t *testing.T) {
	t.Parallel()
	c := NewInMemory()

	assert.False(t, c.IsOverLimit(2))
	_, _ = c.RecordCall()
	assert.False(t, c.IsOverLimit(2))
	_, _ = c.RecordCall()
	assert.True(t, c.IsOverLimit(2))
	assert.False(t, c.IsOverLimit(0), "zero limit is unlimited")
	assert.Equal(t, 0, c.Remaining(2))
	assert.Equal(t, 3, c.Remaining(5))
	assert.Equal(t, -1, c.Remaining(0))
}

func TestRecordCall_ConcurrentIncrements(t *testing.T) {
	t.Parallel()
	c := NewInMemory()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.RecordCall()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.CurrentCount())
	assert.Equal(t, 50, c.Snapshot().LifetimeTotal)
}

func TestRecordCall_PersistFailureKeepsCount(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "api_usage.json")
	c, err := Open(path)
	require.NoError(t, err)

	// A directory where the temp file should go makes the write fail.
	require.NoError(t, os.Mkdir(path+".tmp", 0o700))

	rec, err := c.RecordCall()
	require.Error(t, err)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, 1, c.CurrentCount())

	require.NoError(t, os.Remove(path+".tmp"))
	rec, err = c.RecordCall()
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.CurrentCount())
}

func TestOpen_CorruptFileMovedAside(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "api_usage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	c, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.CurrentCount())

	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestOpen_NewerMajorVersionRefused(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "api_usage.json")
	doc := `{"metadata":{"version":"2.0.0"},"monthly_usage":{},"all_time_stats":{"total_requests":0}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestOpen_ReadsZonelessTimestamps(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "api_usage.json")
	doc := `{
  "metadata": {"version": "1.0.0", "created": "2025-06-01T08:00:00.123456", "last_updated": "2025-06-02T09:00:00"},
  "monthly_usage": {"2025-06": {"count": 7, "first_request": "2025-06-01T08:00:00.123456", "last_request": null, "daily_breakdown": {"2025-06-01": 7}}},
  "all_time_stats": {"total_requests": 12, "first_request": "2025-01-01T00:00:00", "last_request": null}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	clock := newFakeClock(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	c, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	assert.Equal(t, 7, c.CurrentCount())
	assert.Equal(t, 12, c.Snapshot().LifetimeTotal)
}

func TestResetMonthAndAll(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	c := NewInMemory(WithClock(clock.Now))
	for range 4 {
		_, _ = c.RecordCall()
	}

	require.NoError(t, c.ResetMonth(""))
	assert.Equal(t, 0, c.CurrentCount())
	assert.Equal(t, 4, c.Snapshot().LifetimeTotal, "month reset keeps lifetime")
	require.Len(t, c.data.ResetHistory, 1)
	assert.Equal(t, 4, c.data.ResetHistory[0].PreviousCount)

	require.ErrorIs(t, c.ResetMonth("1999-01"), ErrNoUsage)
	require.ErrorIs(t, c.ResetMonth("May"), ErrInvalidMonth)

	require.NoError(t, c.ResetAll())
	assert.Equal(t, 0, c.Snapshot().LifetimeTotal)
	require.Len(t, c.data.ResetHistory, 1)
	assert.Equal(t, "full_reset", c.data.ResetHistory[0].Type)
	assert.Equal(t, 4, c.data.ResetHistory[0].PreviousTotal)
}

func TestSetAndAddCount(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	c := NewInMemory(WithClock(clock.Now))

	rec, err := c.SetCount("", 900)
	require.NoError(t, err)
	assert.Equal(t, Record{Month: "2026-05", Count: 900, LifetimeTotal: 900}, rec)

	rec, err = c.AddCount("", -1000)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Count)
	assert.Equal(t, 0, rec.LifetimeTotal)

	rec, err = c.AddCount("2026-04", 5)
	require.NoError(t, err)
	assert.Equal(t, "2026-04", rec.Month)
	assert.Equal(t, 5, rec.LifetimeTotal)
	assert.Equal(t, 0, c.CurrentCount())

	_, err = c.SetCount("", -1)
	assert.Error(t, err)
	_, err = c.SetCount("2026/04", 1)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestExportImport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	clock := newFakeClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))

	src := NewInMemory(WithClock(clock.Now))
	for range 3 {
		_, _ = src.RecordCall()
	}
	exportPath := filepath.Join(dir, "export.json")
	require.NoError(t, src.Export(exportPath))

	dst, err := Open(filepath.Join(dir, "api_usage.json"), WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, dst.Import(exportPath))
	assert.Equal(t, 3, dst.CurrentCount())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"metadata":{}}`), 0o600))
	require.ErrorIs(t, dst.Import(bad), ErrInvalidImport)
	assert.Equal(t, 3, dst.CurrentCount(), "failed import leaves data untouched")
}
