package usage

import (
	"fmt"
	"math"
	"time"
)

// trendMonths is how many months Stats reports in Trend.
const trendMonths = 6

// TrendPoint is the usage of one month.
type TrendPoint struct {
	Month     string `json:"month"`
	MonthName string `json:"month_name"`
	Usage     int    `json:"usage"`
}

// Stats summarizes the ledger relative to the current month.
type Stats struct {
	CurrentMonth       string         `json:"current_month"`
	CurrentMonthUsage  int            `json:"current_month_usage"`
	PreviousMonthUsage int            `json:"previous_month_usage"`
	AllTimeUsage       int            `json:"all_time_usage"`
	DailyAverage       float64        `json:"daily_average"`
	ProjectedMonthly   int            `json:"projected_monthly"`
	UsageChangePercent float64        `json:"usage_change_percent"`
	DailyBreakdown     map[string]int `json:"daily_breakdown"`
	Trend              []TrendPoint   `json:"usage_trend"`
	FirstRequest       *time.Time     `json:"first_request,omitempty"`
	LastRequest        *time.Time     `json:"last_request,omitempty"`
}

// Stats computes usage statistics at the counter's current time.
func (c *Counter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	current := c.countLocked(now.Format(monthLayout))
	previous := c.countLocked(monthStart.AddDate(0, -1, 0).Format(monthLayout))

	s := Stats{
		CurrentMonth:       now.Format(monthLayout),
		CurrentMonthUsage:  current,
		PreviousMonthUsage: previous,
		AllTimeUsage:       c.data.AllTimeStats.TotalRequests,
		DailyAverage:       dailyAverage(current, now),
		ProjectedMonthly:   projected(current, now),
		UsageChangePercent: changePercent(current, previous),
		DailyBreakdown:     map[string]int{},
	}

	if m, ok := c.data.MonthlyUsage[s.CurrentMonth]; ok {
		for day, n := range m.DailyBreakdown {
			s.DailyBreakdown[day] = n
		}
	}

	for i := trendMonths - 1; i >= 0; i-- {
		month := monthStart.AddDate(0, -i, 0)
		s.Trend = append(s.Trend, TrendPoint{
			Month:     month.Format(monthLayout),
			MonthName: month.Format("January 2006"),
			Usage:     c.countLocked(month.Format(monthLayout)),
		})
	}

	if ts := c.data.AllTimeStats.FirstRequest; ts != nil {
		t := ts.Time
		s.FirstRequest = &t
	}
	if ts := c.data.AllTimeStats.LastRequest; ts != nil {
		t := ts.Time
		s.LastRequest = &t
	}
	return s
}

// Alert levels.
const (
	AlertCritical = "critical"
	AlertWarning  = "warning"
	AlertInfo     = "info"
)

// Alert is a usage threshold notice.
type Alert struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Usage     int    `json:"usage"`
	Threshold int    `json:"threshold"`
}

// Thresholds configures Alerts.
type Thresholds struct {
	Warning  int
	Critical int
	// Limit is the monthly quota; a projection above it raises an info alert.
	Limit int
}

// Alerts returns threshold notices for the current month. At most one of
// critical or warning is reported.
func (c *Counter) Alerts(th Thresholds) []Alert {
	st := c.Stats()
	var alerts []Alert

	switch {
	case th.Critical > 0 && st.CurrentMonthUsage >= th.Critical:
		alerts = append(alerts, Alert{
			Level:     AlertCritical,
			Message:   fmt.Sprintf("monthly usage (%d) reached critical threshold (%d)", st.CurrentMonthUsage, th.Critical),
			Usage:     st.CurrentMonthUsage,
			Threshold: th.Critical,
		})
	case th.Warning > 0 && st.CurrentMonthUsage >= th.Warning:
		alerts = append(alerts, Alert{
			Level:     AlertWarning,
			Message:   fmt.Sprintf("monthly usage (%d) reached warning threshold (%d)", st.CurrentMonthUsage, th.Warning),
			Usage:     st.CurrentMonthUsage,
			Threshold: th.Warning,
		})
	}

	if th.Limit > 0 && st.ProjectedMonthly > th.Limit {
		alerts = append(alerts, Alert{
			Level:     AlertInfo,
			Message:   fmt.Sprintf("projected monthly usage %d exceeds limit %d", st.ProjectedMonthly, th.Limit),
			Usage:     st.ProjectedMonthly,
			Threshold: th.Limit,
		})
	}
	return alerts
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func dailyAverage(count int, now time.Time) float64 {
	return math.Round(float64(count)/float64(now.Day())*100) / 100
}

func projected(count int, now time.Time) int {
	return int(float64(count) / float64(now.Day()) * float64(daysInMonth(now)))
}

func changePercent(current, previous int) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	pct := float64(current-previous) / float64(previous) * 100
	return math.Round(pct*10) / 10
}
