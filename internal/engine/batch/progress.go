package batch

import (
	"sync"
	"time"

	"github.com/rshade/phonelookup/internal/engine"
)

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Progress tracks a run for display. Counters include rows restored from
// a checkpoint; rates only consider rows processed in this session.
// Safe for concurrent use.
type Progress struct {
	totalItems     int
	processedItems int
	startIndex     int
	success        int
	errors         int
	skipped        int
	startTime      time.Time
	lastUpdateTime time.Time
	now            func() time.Time

	mu sync.RWMutex
}

// NewProgress creates a tracker for total rows.
func NewProgress(total int, now func() time.Time) *Progress {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Progress{
		totalItems:     total,
		startTime:      t,
		lastUpdateTime: t,
		now:            now,
	}
}

// Restore seeds the counters from rows already processed and restarts the
// session clock.
func (p *Progress) Restore(rows []engine.OutputRow) {
	s := engine.Summarize(rows)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.processedItems = len(rows)
	p.startIndex = len(rows)
	p.success = s.Success
	p.errors = s.Errors
	p.skipped = s.Skipped
	p.startTime = p.now()
	p.lastUpdateTime = p.startTime
}

// Add counts one processed row.
func (p *Progress) Add(row engine.OutputRow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processedItems++
	switch s := engine.Summarize([]engine.OutputRow{row}); {
	case s.Success > 0:
		p.success++
	case s.Errors > 0:
		p.errors++
	case s.Skipped > 0:
		p.skipped++
	}
	p.lastUpdateTime = p.now()
}

// PercentComplete returns the completion percentage (0-100).
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.percentCompleteUnsafe()
}

// IsComplete returns true if all rows have been processed.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processedItems >= p.totalItems
}

// EstimatedTimeRemaining extrapolates from this session's rate.
// Returns 0 until a row has been processed in this session.
func (p *Progress) EstimatedTimeRemaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.etaUnsafe()
}

// Snapshot returns a copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalItems:      p.totalItems,
		ProcessedItems:  p.processedItems,
		StartIndex:      p.startIndex,
		Success:         p.success,
		Errors:          p.errors,
		Skipped:         p.skipped,
		StartTime:       p.startTime,
		LastUpdateTime:  p.lastUpdateTime,
		PercentComplete: p.percentCompleteUnsafe(),
		ElapsedTime:     p.now().Sub(p.startTime),
		ItemsPerSecond:  p.itemsPerSecondUnsafe(),
		Remaining:       p.etaUnsafe(),
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalItems      int
	ProcessedItems  int
	StartIndex      int
	Success         int
	Errors          int
	Skipped         int
	StartTime       time.Time
	LastUpdateTime  time.Time
	PercentComplete float64
	ElapsedTime     time.Duration
	ItemsPerSecond  float64
	Remaining       time.Duration
}

// percentCompleteUnsafe must be called with the lock held.
func (p *Progress) percentCompleteUnsafe() float64 {
	if p.totalItems == 0 {
		return 0
	}
	return (float64(p.processedItems) / float64(p.totalItems)) * percentMultiplier
}

// itemsPerSecondUnsafe must be called with the lock held.
func (p *Progress) itemsPerSecondUnsafe() float64 {
	elapsed := p.now().Sub(p.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.processedItems-p.startIndex) / elapsed
}

// etaUnsafe must be called with the lock held.
func (p *Progress) etaUnsafe() time.Duration {
	done := p.processedItems - p.startIndex
	if done <= 0 {
		return 0
	}
	elapsed := p.now().Sub(p.startTime)
	return elapsed / time.Duration(done) * time.Duration(p.totalItems-p.processedItems)
}
