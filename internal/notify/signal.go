// Package notify provides a single-slot, latest-value-wins signal used to
// hand key state changes from the scanner to exactly one waiting consumer.
package notify

import (
	"errors"
	"sync/atomic"
)

// ErrClaimed is returned when a signal is bound a second time.
var ErrClaimed = errors.New("notify: signal already claimed")

// Signal holds at most one unconsumed level. A new value overwrites any value
// the waiter has not taken yet; intermediate values are lost, never queued.
// Safe for one signaling goroutine and one waiting goroutine.
type Signal struct {
	slot    chan bool
	claimed atomic.Bool
}

// New returns an empty, unclaimed signal.
func New() *Signal {
	return &Signal{slot: make(chan bool, 1)}
}

// Claim marks the signal as owned by a single key binding.
func (s *Signal) Claim() error {
	if !s.claimed.CompareAndSwap(false, true) {
		return ErrClaimed
	}
	return nil
}

// Signal stores v, replacing any value not yet consumed. Never blocks.
func (s *Signal) Signal(v bool) {
	for {
		select {
		case s.slot <- v:
			return
		default:
		}
		// Slot is full: drop the stale value. With a single signaler the
		// slot can only drain here, so the next send succeeds.
		select {
		case <-s.slot:
		default:
		}
	}
}

// TryTake consumes the pending value, if any, without blocking.
func (s *Signal) TryTake() (v bool, ok bool) {
	select {
	case v = <-s.slot:
		return v, true
	default:
		return false, false
	}
}

// Wait blocks until a value is available and consumes it.
func (s *Signal) Wait() bool {
	return <-s.slot
}

// Reset discards any pending value.
func (s *Signal) Reset() {
	s.TryTake()
}

// Pending reports whether an unconsumed value is held.
func (s *Signal) Pending() bool {
	return len(s.slot) > 0
}
