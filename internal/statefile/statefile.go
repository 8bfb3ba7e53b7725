// Package statefile provides the lockfile and atomic-write helpers shared by
// the JSON state files (usage ledger, run checkpoints).
package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrCorrupted indicates a state file exists but cannot be decoded.
// Callers should not overwrite it silently.
var ErrCorrupted = errors.New("state file corrupted")

const (
	lockRetries  = 10
	lockDelay    = 100 * time.Millisecond
	staleLockAge = 30 * time.Second
)

// LockPath returns the lockfile used to guard path.
func LockPath(path string) string {
	return path + ".lock"
}

// Lock acquires a cross-process advisory lock on path by exclusively
// creating path+".lock". The returned function releases it.
func Lock(path string) (func(), error) {
	lockPath := LockPath(path)

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	for range lockRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// PID lets a later process detect a stale lock.
			_, _ = fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}

		if removeStaleLock(lockPath, staleLockAge) {
			continue
		}
		time.Sleep(lockDelay)
	}

	return nil, fmt.Errorf("could not acquire lock on %s after retries", lockPath)
}

// WriteAtomic writes data to a temp file beside path and renames it into place.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// removeStaleLock removes lockPath when it is older than staleAge and its
// owning process is gone. Returns true if the caller should retry.
func removeStaleLock(lockPath string, staleAge time.Duration) bool {
	info, statErr := os.Stat(lockPath)
	if statErr != nil || time.Since(info.ModTime()) <= staleAge {
		return false
	}

	if isLockHeldByLiveProcess(lockPath) {
		return false
	}

	_ = os.Remove(lockPath)
	return true
}

func isLockHeldByLiveProcess(lockPath string) bool {
	pidData, readErr := os.ReadFile(lockPath)
	if readErr != nil || len(pidData) == 0 {
		return false
	}
	var pid int
	if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr != nil || pid <= 0 {
		return false
	}
	return processExists(pid) == nil
}

func processExists(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0))
}
