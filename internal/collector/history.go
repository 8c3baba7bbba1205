package collector

import (
	"sync"
	"time"

	"github.com/nerrad567/thermolink/internal/reading"
)

// DefaultHistorySize is the number of readings kept in memory.
const DefaultHistorySize = 100

// receivedLayout formats the collector-side receive time.
const receivedLayout = "2006-01-02 15:04:05"

// DataPoint is one received reading as exposed by the API.
type DataPoint struct {
	Temperature   float64      `json:"temperature"`
	Timestamp     string       `json:"timestamp"`
	NodeTimestamp reading.Tick `json:"node_timestamp"`
	Session       string       `json:"session,omitempty"`
}

// newDataPoint stamps r with the local receive time.
func newDataPoint(r reading.Reading, received time.Time, session string) DataPoint {
	return DataPoint{
		Temperature:   r.Temperature,
		Timestamp:     received.Format(receivedLayout),
		NodeTimestamp: r.CapturedAt,
		Session:       session,
	}
}

// Stats summarises the readings currently held. Min, Max and Avg are nil
// when the history is empty.
type Stats struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
	Count int      `json:"count"`
}

// History is a fixed-size ring of the most recent readings. It is safe for
// concurrent use.
type History struct {
	mu       sync.RWMutex
	points   []DataPoint
	capacity int
}

// NewHistory creates a history holding at most capacity points.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		points:   make([]DataPoint, 0, capacity),
		capacity: capacity,
	}
}

// Add appends p, evicting the oldest point when full.
func (h *History) Add(p DataPoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.points) >= h.capacity {
		copy(h.points, h.points[1:])
		h.points[len(h.points)-1] = p
		return
	}
	h.points = append(h.points, p)
}

// Latest returns the most recent point.
func (h *History) Latest() (DataPoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.points) == 0 {
		return DataPoint{}, false
	}
	return h.points[len(h.points)-1], true
}

// All returns the held points, oldest first.
func (h *History) All() []DataPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]DataPoint, len(h.points))
	copy(out, h.points)
	return out
}

// Len returns the number of held points.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.points)
}

// Stats computes min, max and mean over the held points.
func (h *History) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.points) == 0 {
		return Stats{}
	}

	lo, hi, sum := h.points[0].Temperature, h.points[0].Temperature, 0.0
	for _, p := range h.points {
		lo = min(lo, p.Temperature)
		hi = max(hi, p.Temperature)
		sum += p.Temperature
	}
	avg := sum / float64(len(h.points))

	return Stats{Min: &lo, Max: &hi, Avg: &avg, Count: len(h.points)}
}
