package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TTL bounds and defaults.
const (
	// DefaultTTL keeps downloads for a week.
	DefaultTTL = 7 * 24 * time.Hour

	// MinTTL is the shortest accepted TTL.
	MinTTL = time.Minute

	// MaxTTL is the longest accepted TTL.
	MaxTTL = 365 * 24 * time.Hour

	minutesPerHour = 60
	hoursPerDay    = 24
)

// ErrInvalidTTL is returned for TTLs outside [MinTTL, MaxTTL].
var ErrInvalidTTL = fmt.Errorf("TTL must be between %s and %s", FormatDuration(MinTTL), FormatDuration(MaxTTL))

// ValidateTTL checks that ttl is in range.
func ValidateTTL(ttl time.Duration) error {
	if ttl < MinTTL || ttl > MaxTTL {
		return fmt.Errorf("%w: got %s", ErrInvalidTTL, ttl)
	}
	return nil
}

// FormatDuration formats a duration in a human-readable way.
// Examples: "45s", "30m", "1h30m", "7d".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < hoursPerDay*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % minutesPerHour
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}

// ParseTTL parses a TTL in one of these forms:
// - Integer seconds: "3600".
// - Days: "7d".
// - Duration string: "1h", "30m", "1h30m".
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	var d time.Duration
	switch {
	case isDigits(s):
		seconds, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid TTL format: %w", err)
		}
		d = time.Duration(seconds) * time.Second
	case strings.HasSuffix(s, "d") && isDigits(strings.TrimSuffix(s, "d")):
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid TTL format: %w", err)
		}
		d = time.Duration(days) * hoursPerDay * time.Hour
	default:
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid TTL format: %w", err)
		}
	}

	if err := ValidateTTL(d); err != nil {
		return 0, err
	}
	return d, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
