// Package link tracks whether the node's network link is usable.
//
// Status is the shared flag: the monitor writes it from its own goroutine
// and the connection manager reads it and waits on Changed to react to a
// drop without waiting out its poll interval.
package link

import "sync/atomic"

// Status is an atomically updated link-up flag with a change signal.
// The zero value is a down link.
type Status struct {
	up      atomic.Bool
	changed chan struct{}
}

// NewStatus returns a Status with the link down.
func NewStatus() *Status {
	return &Status{changed: make(chan struct{}, 1)}
}

// Set records the link state. Waiters on Changed are signalled only when
// the value actually flips; repeated signals coalesce.
func (s *Status) Set(up bool) {
	if s.up.Swap(up) == up {
		return
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Up reports whether the link is usable.
func (s *Status) Up() bool {
	return s.up.Load()
}

// Changed receives a value after the state flips. A single pending
// signal is kept, so a slow reader sees at least one wakeup per burst.
func (s *Status) Changed() <-chan struct{} {
	return s.changed
}
