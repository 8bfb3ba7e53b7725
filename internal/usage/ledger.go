package usage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// LedgerVersion is written to metadata.version. Files with a different
// major version are refused.
const LedgerVersion = "1.0.0"

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
)

// timestampLayouts are tried in order when decoding. The last one covers
// ledgers written without a zone offset.
//
//nolint:gochecknoglobals // Read-only decode table.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a time that tolerates zone-less ISO-8601 values on decode.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

// MarshalJSON encodes as RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts RFC 3339 and zone-less ISO-8601 strings.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

type metadata struct {
	Version     string     `json:"version"`
	Created     *Timestamp `json:"created"`
	LastUpdated *Timestamp `json:"last_updated"`
}

// MonthUsage is the persisted record of one calendar month.
type MonthUsage struct {
	Count          int            `json:"count"`
	FirstRequest   *Timestamp     `json:"first_request"`
	LastRequest    *Timestamp     `json:"last_request"`
	DailyBreakdown map[string]int `json:"daily_breakdown"`
}

// AllTimeStats is the lifetime section of the ledger.
type AllTimeStats struct {
	TotalRequests int        `json:"total_requests"`
	FirstRequest  *Timestamp `json:"first_request"`
	LastRequest   *Timestamp `json:"last_request"`
}

// ResetEvent records a manual reset.
type ResetEvent struct {
	Type          string    `json:"type,omitempty"`
	Month         string    `json:"month,omitempty"`
	PreviousCount int       `json:"previous_count,omitempty"`
	PreviousTotal int       `json:"previous_total,omitempty"`
	ResetAt       Timestamp `json:"reset_at"`
}

type ledger struct {
	Metadata     metadata               `json:"metadata"`
	MonthlyUsage map[string]*MonthUsage `json:"monthly_usage"`
	AllTimeStats *AllTimeStats          `json:"all_time_stats"`
	ResetHistory []ResetEvent           `json:"reset_history,omitempty"`
}

func newLedger(now time.Time) *ledger {
	return &ledger{
		Metadata: metadata{
			Version:     LedgerVersion,
			Created:     NewTimestamp(now),
			LastUpdated: NewTimestamp(now),
		},
		MonthlyUsage: make(map[string]*MonthUsage),
		AllTimeStats: &AllTimeStats{},
	}
}

func newMonth(now time.Time) *MonthUsage {
	return &MonthUsage{
		FirstRequest:   NewTimestamp(now),
		DailyBreakdown: make(map[string]int),
	}
}

// decodeLedger parses and checks a ledger document.
func decodeLedger(data []byte) (*ledger, error) {
	var l ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	if l.MonthlyUsage == nil || l.AllTimeStats == nil {
		return nil, fmt.Errorf("missing monthly_usage or all_time_stats")
	}
	if err := checkVersion(l.Metadata.Version); err != nil {
		return nil, err
	}
	for key, m := range l.MonthlyUsage {
		if _, err := time.Parse(monthLayout, key); err != nil {
			return nil, fmt.Errorf("invalid month key %q", key)
		}
		if m == nil {
			l.MonthlyUsage[key] = &MonthUsage{DailyBreakdown: make(map[string]int)}
			continue
		}
		if m.DailyBreakdown == nil {
			m.DailyBreakdown = make(map[string]int)
		}
	}
	return &l, nil
}

// checkVersion accepts an empty version (very old files) and any 1.x.
func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid ledger version %q: %w", v, err)
	}
	want := semver.MustParse(LedgerVersion)
	if got.Major() != want.Major() {
		return fmt.Errorf("%w: ledger version %s, supported %d.x", ErrUnsupportedVersion, v, want.Major())
	}
	return nil
}

// ValidateLedger reports whether data is a ledger this package can load.
func ValidateLedger(data []byte) error {
	_, err := decodeLedger(data)
	return err
}
