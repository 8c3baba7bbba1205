package uplink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/thermolink/internal/queue"
	"github.com/nerrad567/thermolink/internal/reading"
)

// Default cadence for the transmitter.
const (
	DefaultPopTimeout = time.Second
	DefaultIdlePoll   = time.Second
)

// Conn is the view of the connection the transmitter needs.
// *Manager satisfies it.
type Conn interface {
	Handle() (Handle, bool)
	Write(h Handle, p []byte) error
	ReportFailure(h Handle, cause error)
}

var _ Conn = (*Manager)(nil)

// TransmitterStats holds send statistics.
type TransmitterStats struct {
	Sent       uint64
	SendErrors uint64
}

// Transmitter drains the queue onto the collector connection.
type Transmitter struct {
	conn       Conn
	queue      *queue.Queue
	popTimeout time.Duration
	idlePoll   time.Duration
	clock      clock.Clock
	logger     Logger

	buf []byte

	sent       atomic.Uint64
	sendErrors atomic.Uint64
}

// NewTransmitter creates a transmitter. Zero durations take the package
// defaults; a nil clk uses the wall clock.
func NewTransmitter(conn Conn, q *queue.Queue, popTimeout, idlePoll time.Duration, clk clock.Clock) *Transmitter {
	if popTimeout <= 0 {
		popTimeout = DefaultPopTimeout
	}
	if idlePoll <= 0 {
		idlePoll = DefaultIdlePoll
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Transmitter{
		conn:       conn,
		queue:      q,
		popTimeout: popTimeout,
		idlePoll:   idlePoll,
		clock:      clk,
		buf:        make([]byte, 0, 64),
	}
}

// SetLogger sets the logger. Call before Run.
func (t *Transmitter) SetLogger(logger Logger) {
	t.logger = logger
}

// Run transmits until ctx is cancelled.
func (t *Transmitter) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := t.step()
		if wait <= 0 {
			continue
		}

		timer := t.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// step sends at most one reading and returns how long to idle before the next.
func (t *Transmitter) step() time.Duration {
	h, ok := t.conn.Handle()
	if !ok {
		return t.idlePoll
	}

	r, ok := t.queue.Pop(t.popTimeout)
	if !ok {
		return 0
	}

	t.buf = reading.AppendRecord(t.buf[:0], r)
	if err := t.conn.Write(h, t.buf); err != nil {
		t.sendErrors.Add(1)
		t.conn.ReportFailure(h, err)
		if t.logger != nil {
			t.logger.Warn("reading dropped", "temperature", r.Temperature, "timestamp", uint64(r.CapturedAt), "error", err)
		}
		return 0
	}

	t.sent.Add(1)
	if t.logger != nil {
		t.logger.Debug("reading sent", "temperature", r.Temperature, "timestamp", uint64(r.CapturedAt))
	}
	return 0
}

// Stats returns send statistics.
func (t *Transmitter) Stats() TransmitterStats {
	return TransmitterStats{
		Sent:       t.sent.Load(),
		SendErrors: t.sendErrors.Load(),
	}
}
