// Package checkpoint persists batch run positions as JSON files beside the
// output they belong to.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/rshade/phonelookup/internal/engine/batch"
	"github.com/rshade/phonelookup/internal/statefile"
)

// Suffix is appended to the output path to name its checkpoint.
const Suffix = ".checkpoint.json"

// ErrUnsupportedVersion is returned for checkpoints written by a newer
// major version.
var ErrUnsupportedVersion = errors.New("unsupported checkpoint version")

// PathFor returns the checkpoint path used for an output file.
func PathFor(outputPath string) string {
	return outputPath + Suffix
}

// FileStore implements batch.Store on a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store for path. Nothing is read until Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether a checkpoint file is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the checkpoint. A missing file returns (nil, nil).
func (s *FileStore) Load(_ context.Context) (*batch.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp batch.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", statefile.ErrCorrupted, s.path, err)
	}
	if err := checkVersion(cp.Version); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Save writes cp atomically under the file lock.
func (s *FileStore) Save(ctx context.Context, cp *batch.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	unlock, err := statefile.Lock(s.path)
	if err != nil {
		return fmt.Errorf("acquiring checkpoint lock: %w", err)
	}
	defer unlock()

	return statefile.WriteAtomic(s.path, data, 0o600)
}

// Remove deletes the checkpoint. A missing file is not an error.
func (s *FileStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}

func checkVersion(v string) error {
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: invalid version %q", statefile.ErrCorrupted, v)
	}
	want := semver.MustParse(batch.CheckpointVersion)
	if got.Major() != want.Major() {
		return fmt.Errorf("%w: %s, supported %d.x", ErrUnsupportedVersion, v, want.Major())
	}
	return nil
}

// MemoryStore keeps the last saved checkpoint in memory. FailSaves makes
// the next n saves fail, for exercising persistence errors.
type MemoryStore struct {
	mu    sync.Mutex
	cp    *batch.Checkpoint
	saves int
	fail  int
}

// NewMemoryStore returns an empty store, optionally seeded with cp.
func NewMemoryStore(cp *batch.Checkpoint) *MemoryStore {
	return &MemoryStore{cp: clone(cp)}
}

// Load returns a copy of the last saved checkpoint.
func (m *MemoryStore) Load(_ context.Context) (*batch.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.cp), nil
}

// Save stores a copy of cp.
func (m *MemoryStore) Save(_ context.Context, cp *batch.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("checkpoint store unavailable")
	}
	m.saves++
	m.cp = clone(cp)
	return nil
}

// FailSaves makes the next n calls to Save fail.
func (m *MemoryStore) FailSaves(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = n
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Last returns a copy of the last saved checkpoint, or nil.
func (m *MemoryStore) Last() *batch.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.cp)
}

func clone(cp *batch.Checkpoint) *batch.Checkpoint {
	if cp == nil {
		return nil
	}
	c := *cp
	c.Rows = append(c.Rows[:0:0], cp.Rows...)
	if cp.Usage != nil {
		u := *cp.Usage
		c.Usage = &u
	}
	return &c
}
