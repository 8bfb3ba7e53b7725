package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC))
	c := NewInMemory(WithClock(clock.Now))

	_, err := c.SetCount("2026-03", 50)
	require.NoError(t, err)
	for range 20 {
		_, _ = c.RecordCall()
	}

	st := c.Stats()
	assert.Equal(t, "2026-04", st.CurrentMonth)
	assert.Equal(t, 20, st.CurrentMonthUsage)
	assert.Equal(t, 50, st.PreviousMonthUsage)
	assert.Equal(t, 70, st.AllTimeUsage)
	assert.InDelta(t, 2.0, st.DailyAverage, 0.001)
	assert.Equal(t, 60, st.ProjectedMonthly, "2/day over 30 days")
	assert.InDelta(t, -60.0, st.UsageChangePercent, 0.001)
	assert.Equal(t, map[string]int{"2026-04-10": 20}, st.DailyBreakdown)

	require.Len(t, st.Trend, 6)
	assert.Equal(t, "2025-11", st.Trend[0].Month)
	assert.Equal(t, "2026-04", st.Trend[5].Month)
	assert.Equal(t, "April 2026", st.Trend[5].MonthName)
	assert.Equal(t, 50, st.Trend[4].Usage)
	require.NotNil(t, st.FirstRequest)
}

func TestChangePercent(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, changePercent(0, 0), 0)
	assert.InDelta(t, 100.0, changePercent(5, 0), 0)
	assert.InDelta(t, 50.0, changePercent(15, 10), 0)
}

func TestAlerts(t *testing.T) {
	t.Parallel()
	th := Thresholds{Warning: 800, Critical: 950, Limit: 1000}

	tests := []struct {
		name   string
		count  int
		day    int
		levels []string
	}{
		{"quiet", 100, 28, nil},
		{"warning", 850, 28, []string{AlertWarning}},
		{"critical", 960, 28, []string{AlertCritical}},
		{"projection only", 500, 5, []string{AlertInfo}},
		{"critical and projection", 960, 10, []string{AlertCritical, AlertInfo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock(time.Date(2026, 2, tt.day, 12, 0, 0, 0, time.UTC))
			c := NewInMemory(WithClock(clock.Now))
			_, err := c.SetCount("", tt.count)
			require.NoError(t, err)

			var levels []string
			for _, a := range c.Alerts(th) {
				levels = append(levels, a.Level)
				assert.NotEmpty(t, a.Message)
			}
			assert.Equal(t, tt.levels, levels)
		})
	}
}
