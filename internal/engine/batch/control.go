package batch

import "sync/atomic"

// Signal is a request from outside the run loop.
type Signal int32

// Signals, in increasing priority.
const (
	SignalNone Signal = iota
	SignalPause
	SignalStop
)

func (s Signal) String() string {
	switch s {
	case SignalPause:
		return "pause"
	case SignalStop:
		return "stop"
	default:
		return "none"
	}
}

// Token is polled by the Runner at exactly one point per iteration,
// before each record is processed.
type Token interface {
	Signal() Signal
}

// Control is a Token driven by a UI or signal handler. It is safe to call
// from any goroutine. Stop wins over pause.
type Control struct {
	sig atomic.Int32
}

// NewControl returns a Control with no pending signal.
func NewControl() *Control {
	return &Control{}
}

// Pause asks the run to pause before its next record.
func (c *Control) Pause() {
	c.sig.CompareAndSwap(int32(SignalNone), int32(SignalPause))
}

// Stop asks the run to stop before its next record.
func (c *Control) Stop() {
	c.sig.Store(int32(SignalStop))
}

// Resume clears a pending pause so the next Run continues. A stop is not
// cleared.
func (c *Control) Resume() {
	c.sig.CompareAndSwap(int32(SignalPause), int32(SignalNone))
}

// Paused reports whether a pause is pending.
func (c *Control) Paused() bool {
	return c.Signal() == SignalPause
}

// Signal implements Token.
func (c *Control) Signal() Signal {
	return Signal(c.sig.Load())
}

// countdown fires a signal after a fixed number of polls.
type countdown struct {
	left atomic.Int64
	sig  Signal
}

// After returns a Token that reports SignalNone for the first n polls and
// sig from then on. Tests use it to interrupt a run after n records.
func After(n int, sig Signal) Token {
	c := &countdown{sig: sig}
	c.left.Store(int64(n))
	return c
}

func (c *countdown) Signal() Signal {
	if c.left.Add(-1) >= 0 {
		return SignalNone
	}
	return c.sig
}

type noSignal struct{}

func (noSignal) Signal() Signal { return SignalNone }
