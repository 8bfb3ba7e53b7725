package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/logging"
	"github.com/rshade/phonelookup/internal/usage"
)

// DefaultSaveInterval is the number of rows between checkpoints.
const DefaultSaveInterval = 10

// CheckpointVersion is written into every checkpoint.
const CheckpointVersion = "1.0.0"

// RowProcessor turns one record into one row. *engine.Processor satisfies it.
type RowProcessor interface {
	Process(ctx context.Context, rec engine.InputRecord) engine.OutputRow
}

// Config holds the run parameters.
type Config struct {
	// SaveInterval is the number of processed rows between checkpoints.
	SaveInterval int
	// Fingerprint identifies the input; a checkpoint with a different
	// fingerprint is refused.
	Fingerprint string
}

// EventKind identifies an Event.
type EventKind int

// Event kinds.
const (
	EventStarted EventKind = iota
	EventRow
	EventCheckpoint
	EventCheckpointFailed
	EventFinished
)

// Event is emitted synchronously from the run loop. Handlers must not block.
type Event struct {
	Kind     EventKind
	Index    int
	Row      *engine.OutputRow
	State    State
	Reason   Reason
	Err      error
	Progress ProgressSnapshot
}

// Result describes how a call to Run ended.
type Result struct {
	State     State
	Reason    Reason
	NextIndex int
	Summary   engine.Summary
	// PersistFailures counts intermediate checkpoints that could not be written.
	PersistFailures int
}

// Option configures a Runner.
type Option func(*Runner)

// WithToken sets the pause/stop token polled before each record.
func WithToken(t Token) Option {
	return func(r *Runner) { r.token = t }
}

// WithEvents registers a callback for run events.
func WithEvents(fn func(Event)) Option {
	return func(r *Runner) { r.onEvent = fn }
}

// WithUsage attaches a usage snapshot to every checkpoint.
func WithUsage(fn func() usage.Record) Option {
	return func(r *Runner) { r.usage = fn }
}

// WithLogger sets the runner logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock replaces time.Now for checkpoint timestamps and progress.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner drives a RowProcessor over records. Run may be called again
// after a pause to continue in the same process.
type Runner struct {
	proc    RowProcessor
	records []engine.InputRecord
	store   Store
	out     Persister
	cfg     Config
	token   Token
	onEvent func(Event)
	usage   func() usage.Record
	logger  zerolog.Logger
	now     func() time.Time

	running  atomic.Bool
	loaded   bool
	runID    string
	rows     []engine.OutputRow
	state    State
	failures int
	progress *Progress
}

// NewRunner wires a runner over records.
func NewRunner(proc RowProcessor, records []engine.InputRecord, store Store, out Persister, cfg Config, opts ...Option) *Runner {
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = DefaultSaveInterval
	}
	r := &Runner{
		proc:    proc,
		records: records,
		store:   store,
		out:     out,
		cfg:     cfg,
		token:   noSignal{},
		logger:  zerolog.Nop(),
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.progress = NewProgress(len(records), r.now)
	return r
}

// Progress returns the live progress tracker.
func (r *Runner) Progress() *Progress {
	return r.progress
}

// State returns the state left by the last Run.
func (r *Runner) State() State {
	return r.state
}

// Rows returns a copy of the rows rendered as they would be persisted.
func (r *Runner) Rows() []engine.OutputRow {
	return r.render(engine.PendingRow)
}

// Run processes records from the saved index until the input is
// exhausted or a signal, cancellation, quota or persistence failure ends
// the session. Every exit path writes a checkpoint first.
//
// Errors: ErrCheckpointMismatch and load failures leave the run Idle;
// *QuotaPausedError accompanies StatePaused with ReasonQuota;
// ErrPersistFailed is returned when the final write of any exit path fails.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return r.result(ReasonNone), ErrAlreadyRunning
	}
	defer r.running.Store(false)

	if r.state == StateCompleted || r.state == StateStopped {
		res := r.result(ReasonNone)
		res.Summary = engine.Summarize(r.Rows())
		return res, nil
	}

	if !r.loaded {
		if err := r.load(ctx); err != nil {
			return r.result(ReasonNone), err
		}
	}

	log := r.logger.With().Str("run_id", r.runID).Logger()
	r.state = StateRunning
	r.emit(Event{Kind: EventStarted, Index: len(r.rows), State: StateRunning})
	log.Info().Int("from", len(r.rows)).Int("total", len(r.records)).Msg("batch started")

	sinceSave := 0
	for len(r.rows) < len(r.records) {
		if ctx.Err() != nil {
			return r.finish(ctx, StateStopped, ReasonCancelled, nil)
		}
		switch r.token.Signal() {
		case SignalStop:
			return r.finish(ctx, StateStopped, ReasonUser, nil)
		case SignalPause:
			return r.finish(ctx, StatePaused, ReasonUser, nil)
		case SignalNone:
		}

		idx := len(r.rows)
		row := r.proc.Process(ctx, r.records[idx])

		if row.Result.Status == engine.StatusQuotaExceeded {
			log.Warn().Int("row", idx).Str("reason", row.Result.Error).Msg("monthly quota reached, pausing")
			return r.finish(ctx, StatePaused, ReasonQuota, &row)
		}
		// A lookup interrupted by cancellation is not a result; the row is
		// retried on resume.
		if ctx.Err() != nil {
			return r.finish(ctx, StateStopped, ReasonCancelled, nil)
		}

		r.rows = append(r.rows, row)
		r.progress.Add(row)
		r.emit(Event{Kind: EventRow, Index: idx, Row: &row, State: StateRunning})

		sinceSave++
		if sinceSave >= r.cfg.SaveInterval && len(r.rows) < len(r.records) {
			sinceSave = 0
			if err := r.persist(ctx, StateRunning, ReasonNone, r.render(engine.PendingRow)); err != nil {
				r.failures++
				log.Warn().Err(err).Int("row", idx).Msg("checkpoint failed, continuing in memory")
				r.emit(Event{Kind: EventCheckpointFailed, Index: len(r.rows), State: StateRunning, Err: err})
			} else {
				r.emit(Event{Kind: EventCheckpoint, Index: len(r.rows), State: StateRunning})
			}
		}
	}

	return r.finish(ctx, StateCompleted, ReasonNone, nil)
}

func (r *Runner) load(ctx context.Context) error {
	cp, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}
	if cp == nil {
		r.runID = logging.NewID()
		r.loaded = true
		return nil
	}

	switch {
	case cp.Fingerprint != r.cfg.Fingerprint:
		return fmt.Errorf("%w: input has changed since run %s", ErrCheckpointMismatch, cp.RunID)
	case cp.NextIndex != len(cp.Rows) || cp.NextIndex > len(r.records):
		return fmt.Errorf("%w: checkpoint holds %d rows at index %d for %d records",
			ErrCheckpointMismatch, len(cp.Rows), cp.NextIndex, len(r.records))
	}
	for i, row := range cp.Rows {
		if row.Record.Index != r.records[i].Index {
			return fmt.Errorf("%w: row %d is out of order", ErrCheckpointMismatch, i)
		}
	}

	r.runID = cp.RunID
	r.rows = cp.Rows
	r.progress.Restore(r.rows)
	r.loaded = true
	r.logger.Info().Str("run_id", cp.RunID).Int("next_index", cp.NextIndex).Msg("resuming from checkpoint")
	return nil
}

// finish writes the exit checkpoint and settles the state. quotaRow is
// set when the run pauses on quota; the unprocessed rows are rendered
// with its status.
func (r *Runner) finish(ctx context.Context, state State, reason Reason, quotaRow *engine.OutputRow) (Result, error) {
	fill := engine.PendingRow
	if quotaRow != nil {
		fill = func(rec engine.InputRecord) engine.OutputRow {
			return engine.OutputRow{Record: rec, Result: quotaRow.Result}
		}
	}
	rendered := r.render(fill)

	err := r.persist(context.WithoutCancel(ctx), state, reason, rendered)
	if err != nil && state == StateCompleted {
		state, reason = StatePaused, ReasonPersistFailed
	}
	if quotaRow != nil {
		qerr := &QuotaPausedError{NextIndex: len(r.rows), Message: quotaRow.Result.Error}
		if err != nil {
			err = errors.Join(qerr, err)
		} else {
			err = qerr
		}
	}

	r.state = state
	res := r.result(reason)
	res.Summary = engine.Summarize(rendered)
	r.emit(Event{Kind: EventFinished, Index: len(r.rows), State: state, Reason: reason, Err: err})

	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Warn().Err(err)
	}
	ev.Str("run_id", r.runID).
		Str("state", string(state)).
		Str("reason", string(reason)).
		Int("next_index", res.NextIndex).
		Int("success", res.Summary.Success).
		Int("errors", res.Summary.Errors).
		Int("skipped", res.Summary.Skipped).
		Msg("batch finished")
	return res, err
}

// persist writes the checkpoint, then the output table.
func (r *Runner) persist(ctx context.Context, state State, reason Reason, rendered []engine.OutputRow) error {
	cp := &Checkpoint{
		Version:     CheckpointVersion,
		RunID:       r.runID,
		Fingerprint: r.cfg.Fingerprint,
		NextIndex:   len(r.rows),
		Total:       len(r.records),
		State:       state,
		Reason:      reason,
		Rows:        r.rows,
		UpdatedAt:   r.now(),
	}
	if r.usage != nil {
		u := r.usage()
		cp.Usage = &u
	}
	if err := r.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("%w: checkpoint: %w", ErrPersistFailed, err)
	}
	if err := r.out.Persist(ctx, rendered); err != nil {
		return fmt.Errorf("%w: output: %w", ErrPersistFailed, err)
	}
	return nil
}

// render returns one row per record: processed rows, then fill for the rest.
func (r *Runner) render(fill func(engine.InputRecord) engine.OutputRow) []engine.OutputRow {
	out := make([]engine.OutputRow, 0, len(r.records))
	out = append(out, r.rows...)
	for _, rec := range r.records[len(r.rows):] {
		out = append(out, fill(rec))
	}
	return out
}

func (r *Runner) result(reason Reason) Result {
	return Result{
		State:           r.state,
		Reason:          reason,
		NextIndex:       len(r.rows),
		Summary:         engine.Summarize(r.rows),
		PersistFailures: r.failures,
	}
}

func (r *Runner) emit(ev Event) {
	if r.onEvent == nil {
		return
	}
	ev.Progress = r.progress.Snapshot()
	r.onEvent(ev)
}
