// Package queue provides the bounded FIFO between the sampler and the
// transmitter. Both ends block for at most a caller-supplied timeout; a
// full queue rejects the new reading rather than evicting an old one.
package queue

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/thermolink/internal/reading"
)

// DefaultCapacity is the queue depth used by the node.
const DefaultCapacity = 10

// Queue is a bounded FIFO of readings. It is safe for concurrent use.
type Queue struct {
	ch      chan reading.Reading
	dropped atomic.Uint64
}

// New creates a queue holding at most capacity readings.
// A capacity below 1 is treated as 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan reading.Reading, capacity)}
}

// Push enqueues r, waiting up to timeout for space. It returns false and
// counts a drop if the queue stayed full.
func (q *Queue) Push(r reading.Reading, timeout time.Duration) bool {
	select {
	case q.ch <- r:
		return true
	default:
	}

	if timeout <= 0 {
		q.dropped.Add(1)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.ch <- r:
		return true
	case <-timer.C:
		q.dropped.Add(1)
		return false
	}
}

// Pop dequeues the oldest reading, waiting up to timeout for one to arrive.
func (q *Queue) Pop(timeout time.Duration) (reading.Reading, bool) {
	select {
	case r := <-q.ch:
		return r, true
	default:
	}

	if timeout <= 0 {
		return reading.Reading{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-q.ch:
		return r, true
	case <-timer.C:
		return reading.Reading{}, false
	}
}

// Len returns the number of queued readings.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns how many pushes timed out.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
