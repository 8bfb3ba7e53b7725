// Package usage tracks lookup API calls per calendar month against a quota.
package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/phonelookup/internal/statefile"
)

// Sentinel errors returned by Counter.
var (
	ErrUnsupportedVersion = errors.New("unsupported usage ledger version")
	ErrInvalidMonth       = errors.New("month must be formatted YYYY-MM")
	ErrNoUsage            = errors.New("no usage recorded for month")
	ErrInvalidImport      = errors.New("invalid usage data")
)

// Record is the state of the current month after a change.
type Record struct {
	Month         string `json:"month"`
	Count         int    `json:"count"`
	LifetimeTotal int    `json:"lifetime_total"`
}

// Counter counts API calls per calendar month. Every mutation is
// persisted to a JSON ledger; a failed write is reported but the
// in-memory count stays authoritative. Safe for concurrent use.
type Counter struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger zerolog.Logger
	data   *ledger
}

// Option configures a Counter.
type Option func(*Counter)

// WithClock replaces time.Now, mainly for month rollover tests.
func WithClock(now func() time.Time) Option {
	return func(c *Counter) { c.now = now }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Counter) { c.logger = l }
}

// Open loads the ledger at path, creating an empty one when the file does
// not exist. A file that cannot be decoded is moved aside to
// path+".corrupt" and a fresh ledger is started; a file from a newer
// major version is refused.
func Open(path string, opts ...Option) (*Counter, error) {
	c := newCounter(path, opts...)

	unlock, err := statefile.Lock(path)
	if err != nil {
		return nil, fmt.Errorf("acquiring usage lock: %w", err)
	}
	defer unlock()

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		c.data = newLedger(c.now())
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("reading usage ledger: %w", err)
	}

	l, err := decodeLedger(raw)
	if err != nil {
		if errors.Is(err, ErrUnsupportedVersion) {
			return nil, err
		}
		aside := path + ".corrupt"
		if renameErr := os.Rename(path, aside); renameErr != nil {
			return nil, fmt.Errorf("%w: %w", statefile.ErrCorrupted, err)
		}
		c.logger.Warn().Err(err).Str("moved_to", aside).Msg("usage ledger unreadable, starting fresh")
		c.data = newLedger(c.now())
		return c, nil
	}

	c.data = l
	return c, nil
}

// NewInMemory returns a Counter that never touches disk.
func NewInMemory(opts ...Option) *Counter {
	c := newCounter("", opts...)
	c.data = newLedger(c.now())
	return c
}

func newCounter(path string, opts ...Option) *Counter {
	c := &Counter{
		path:   path,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the ledger file, or "" for in-memory counters.
func (c *Counter) Path() string {
	return c.path
}

// RecordCall counts one API call against the current month. A month that
// has no record yet gets one first; earlier months are kept.
func (c *Counter) RecordCall() (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	month := c.ensureMonthLocked(now)

	m := c.data.MonthlyUsage[month]
	m.Count++
	m.LastRequest = NewTimestamp(now)
	m.DailyBreakdown[now.Format(dayLayout)]++

	all := c.data.AllTimeStats
	all.TotalRequests++
	if all.FirstRequest == nil {
		all.FirstRequest = NewTimestamp(now)
	}
	all.LastRequest = NewTimestamp(now)

	rec := Record{Month: month, Count: m.Count, LifetimeTotal: all.TotalRequests}
	if err := c.persistLocked(); err != nil {
		c.logger.Warn().Err(err).Int("count", rec.Count).Msg("usage not persisted; continuing with in-memory count")
		return rec, err
	}
	return rec, nil
}

// CurrentCount returns calls recorded in the current wall-clock month.
func (c *Counter) CurrentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLocked(c.now().Format(monthLayout))
}

// IsOverLimit reports whether the current month has reached limit.
// A limit of zero or less means unlimited.
func (c *Counter) IsOverLimit(limit int) bool {
	if limit <= 0 {
		return false
	}
	return c.CurrentCount() >= limit
}

// Remaining returns calls left under limit this month, or -1 when unlimited.
func (c *Counter) Remaining(limit int) int {
	if limit <= 0 {
		return -1
	}
	left := limit - c.CurrentCount()
	if left < 0 {
		return 0
	}
	return left
}

// Snapshot returns the current month record without changing anything.
func (c *Counter) Snapshot() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	month := c.now().Format(monthLayout)
	return Record{
		Month:         month,
		Count:         c.countLocked(month),
		LifetimeTotal: c.data.AllTimeStats.TotalRequests,
	}
}

// MonthCount is one row of Months.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Months lists every recorded month in chronological order.
func (c *Counter) Months() []MonthCount {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]MonthCount, 0, len(c.data.MonthlyUsage))
	for month, m := range c.data.MonthlyUsage {
		out = append(out, MonthCount{Month: month, Count: m.Count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// ResetMonth zeroes month ("" means the current month) and records the
// reset in the history. The lifetime total is not changed.
func (c *Counter) ResetMonth(month string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	month, err := c.resolveMonth(month, now)
	if err != nil {
		return err
	}
	m, ok := c.data.MonthlyUsage[month]
	if !ok {
		return fmt.Errorf("%w %s", ErrNoUsage, month)
	}

	c.data.ResetHistory = append(c.data.ResetHistory, ResetEvent{
		Month:         month,
		PreviousCount: m.Count,
		ResetAt:       Timestamp{Time: now},
	})
	c.data.MonthlyUsage[month] = newMonth(now)
	c.logger.Info().Str("month", month).Int("previous_count", m.Count).Msg("usage month reset")
	return c.persistLocked()
}

// ResetAll discards every month and the lifetime total.
func (c *Counter) ResetAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	previous := c.data.AllTimeStats.TotalRequests
	c.data = newLedger(now)
	c.data.ResetHistory = []ResetEvent{{
		Type:          "full_reset",
		PreviousTotal: previous,
		ResetAt:       Timestamp{Time: now},
	}}
	c.ensureMonthLocked(now)
	c.logger.Warn().Int("previous_total", previous).Msg("all usage data reset")
	return c.persistLocked()
}

// SetCount overwrites the count for month ("" means current). The lifetime
// total moves by the same delta, never below zero.
func (c *Counter) SetCount(month string, n int) (Record, error) {
	if n < 0 {
		return Record{}, fmt.Errorf("count must not be negative: %d", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adjustLocked(month, func(int) int { return n })
}

// AddCount adds n, which may be negative, to month ("" means current).
// The month count never drops below zero.
func (c *Counter) AddCount(month string, n int) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adjustLocked(month, func(cur int) int { return max(0, cur+n) })
}

func (c *Counter) adjustLocked(month string, next func(int) int) (Record, error) {
	now := c.now()
	month, err := c.resolveMonth(month, now)
	if err != nil {
		return Record{}, err
	}
	m := c.monthLocked(month, now)
	n := next(m.Count)
	delta := n - m.Count
	m.Count = n
	c.data.AllTimeStats.TotalRequests = max(0, c.data.AllTimeStats.TotalRequests+delta)

	rec := Record{Month: month, Count: n, LifetimeTotal: c.data.AllTimeStats.TotalRequests}
	return rec, c.persistLocked()
}

// Export writes the ledger as indented JSON to path.
func (c *Counter) Export(path string) error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.data, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshaling usage data: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}

// Import replaces the ledger with the contents of path after validating it.
func (c *Counter) Import(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading import: %w", err)
	}
	l, err := decodeLedger(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = l
	c.logger.Info().Str("from", path).Msg("usage data imported")
	return c.persistLocked()
}

func (c *Counter) countLocked(month string) int {
	if m, ok := c.data.MonthlyUsage[month]; ok {
		return m.Count
	}
	return 0
}

// ensureMonthLocked creates the record for now's month if it is missing
// and returns its key.
func (c *Counter) ensureMonthLocked(now time.Time) string {
	month := now.Format(monthLayout)
	c.monthLocked(month, now)
	return month
}

func (c *Counter) monthLocked(month string, now time.Time) *MonthUsage {
	m, ok := c.data.MonthlyUsage[month]
	if !ok {
		m = newMonth(now)
		c.data.MonthlyUsage[month] = m
		c.logger.Debug().Str("month", month).Msg("started usage month")
	}
	return m
}

func (c *Counter) resolveMonth(month string, now time.Time) (string, error) {
	if month == "" {
		return now.Format(monthLayout), nil
	}
	if _, err := time.Parse(monthLayout, month); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return month, nil
}

func (c *Counter) persistLocked() error {
	c.data.Metadata.Version = LedgerVersion
	c.data.Metadata.LastUpdated = NewTimestamp(c.now())
	if c.data.Metadata.Created == nil {
		c.data.Metadata.Created = c.data.Metadata.LastUpdated
	}
	if c.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling usage data: %w", err)
	}

	unlock, err := statefile.Lock(c.path)
	if err != nil {
		return fmt.Errorf("acquiring usage lock: %w", err)
	}
	defer unlock()

	if err = statefile.WriteAtomic(c.path, data, 0o600); err != nil {
		return fmt.Errorf("saving usage ledger: %w", err)
	}
	return nil
}
