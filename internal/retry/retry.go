// Package retry runs an operation under a bounded attempt policy with
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when every attempt failed with a retryable error.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context ends between attempts.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Policy is the pure part of a retry: how many attempts and how long to
// wait before each one.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration
	// Multiplier grows the delay after each retry. 1 gives a fixed delay.
	Multiplier float64
}

// DefaultPolicy returns three attempts starting at two seconds, doubling, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based), or 0
// when no further attempt will be made.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 || attempt >= p.MaxAttempts {
		return 0
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Schedule lists every delay the policy can produce, in order.
func (p Policy) Schedule() []time.Duration {
	p = p.normalized()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		out = append(out, p.Delay(attempt))
	}
	return out
}

// MaxTotalDelay is the sum of Schedule.
func (p Policy) MaxTotalDelay() time.Duration {
	var total time.Duration
	for _, d := range p.Schedule() {
		total += d
	}
	return total
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a Permanent error, or the policy
// runs out of attempts. It returns the number of attempts made. fn receives
// the 1-based attempt number.
func Do(ctx context.Context, p Policy, sleep Sleeper, fn func(attempt int) error) (int, error) {
	p = p.normalized()
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return attempt - 1, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return attempt, err
		}

		if attempt < p.MaxAttempts {
			if sleepErr := sleep(ctx, p.Delay(attempt)); sleepErr != nil {
				return attempt, fmt.Errorf("%w: %w", ErrContextCancelled, sleepErr)
			}
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, p.MaxAttempts, lastErr)
}
