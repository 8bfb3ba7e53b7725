package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/usage"
)

// State is the run state machine position.
type State string

// Run states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

// Reason explains why a run left StateRunning.
type Reason string

// Reasons recorded with paused and stopped states.
const (
	ReasonNone          Reason = ""
	ReasonUser          Reason = "user"
	ReasonQuota         Reason = "quota"
	ReasonPersistFailed Reason = "persist_failed"
	ReasonCancelled     Reason = "cancelled"
)

// Errors returned by Runner.Run.
var (
	// ErrCheckpointMismatch means the saved checkpoint belongs to a
	// different input; the caller may discard it and start again.
	ErrCheckpointMismatch = errors.New("checkpoint does not match input")
	// ErrPersistFailed wraps a failed checkpoint or output write at a
	// point where the run cannot continue without it.
	ErrPersistFailed = errors.New("failed to persist results")
	// ErrAlreadyRunning is returned when Run is called concurrently.
	ErrAlreadyRunning = errors.New("run already in progress")
)

// QuotaPausedError is returned when a run paused because the monthly
// quota was reached. NextIndex is the row that will be retried.
type QuotaPausedError struct {
	NextIndex int
	Message   string
}

func (e *QuotaPausedError) Error() string {
	return fmt.Sprintf("paused at row %d: %s", e.NextIndex+1, e.Message)
}

// Checkpoint is the durable run position: rows [0, NextIndex) with their
// results.
type Checkpoint struct {
	Version     string             `json:"version"`
	RunID       string             `json:"run_id"`
	Fingerprint string             `json:"fingerprint"`
	NextIndex   int                `json:"next_index"`
	Total       int                `json:"total"`
	State       State              `json:"state"`
	Reason      Reason             `json:"reason,omitempty"`
	Rows        []engine.OutputRow `json:"rows"`
	Usage       *usage.Record      `json:"usage,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Store loads and saves checkpoints. Load returns (nil, nil) when no
// checkpoint exists.
type Store interface {
	Load(ctx context.Context) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
}

// Persister writes the rendered output table. rows always has one entry
// per input record, in input order.
type Persister interface {
	Persist(ctx context.Context, rows []engine.OutputRow) error
}
