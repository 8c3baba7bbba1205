// Package reading defines the temperature record exchanged between the
// node's tasks and sent to the collector, plus its line-delimited JSON
// wire form.
package reading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrMalformed indicates a wire record could not be decoded.
var ErrMalformed = errors.New("reading: malformed record")

// Tick is a monotonic millisecond count since the node's clock epoch.
type Tick uint64

// Reading is one compensated temperature sample.
type Reading struct {
	Temperature float64 `json:"temperature"`
	CapturedAt  Tick    `json:"timestamp"`
}

// Clock stamps readings with milliseconds elapsed since it was created.
type Clock struct {
	clk   clock.Clock
	start time.Time
}

// NewClock starts a tick clock on clk. A nil clk uses the wall clock.
func NewClock(clk clock.Clock) *Clock {
	if clk == nil {
		clk = clock.New()
	}
	return &Clock{clk: clk, start: clk.Now()}
}

// Now returns the current tick.
func (c *Clock) Now() Tick {
	return Tick(c.clk.Since(c.start).Milliseconds()) //nolint:gosec // elapsed time is non-negative
}

// Source returns the underlying clock for timers.
func (c *Clock) Source() clock.Clock {
	return c.clk
}

// AppendRecord appends the wire form of r to dst:
//
//	{"temperature":25.08,"timestamp":123456}\n
//
// The temperature always carries exactly two decimals.
func AppendRecord(dst []byte, r Reading) []byte {
	dst = append(dst, `{"temperature":`...)
	dst = strconv.AppendFloat(dst, r.Temperature, 'f', 2, 64)
	dst = append(dst, `,"timestamp":`...)
	dst = strconv.AppendUint(dst, uint64(r.CapturedAt), 10)
	return append(dst, "}\n"...)
}

// Encode returns the wire form of r.
func Encode(r Reading) []byte {
	return AppendRecord(make([]byte, 0, 48), r)
}

// Decode parses one wire record. Surrounding whitespace, including the
// line terminator, is ignored. Unknown fields are ignored.
func Decode(line []byte) (Reading, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Reading{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	var rec struct {
		Temperature *float64 `json:"temperature"`
		Timestamp   uint64   `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if rec.Temperature == nil {
		return Reading{}, fmt.Errorf("%w: missing temperature", ErrMalformed)
	}

	return Reading{Temperature: *rec.Temperature, CapturedAt: Tick(rec.Timestamp)}, nil
}
