package cli

import (
	"errors"

	"github.com/rshade/phonelookup/internal/engine/batch"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitPaused means the run stopped early with saved progress: paused by
	// the user, stopped or interrupted.
	ExitPaused = 2
	// ExitQuota means the run paused because the monthly limit was reached.
	ExitQuota = 3
)

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + formatInt(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var quotaErr *batch.QuotaPausedError
	if errors.As(err, &quotaErr) {
		return ExitQuota
	}
	return ExitFailure
}
