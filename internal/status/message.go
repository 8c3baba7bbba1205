package status

import "time"

// Health values carried in Message.Status.
const (
	Online   = "online"
	Degraded = "degraded"
	Stopping = "stopping"
	Offline  = "offline"
)

// Message is the retained document a node publishes on
// thermolink/status/{node_id}. The collector decodes the same type, and
// also accepts the smaller online/offline documents the MQTT client
// publishes on connect, close and as its will.
type Message struct {
	Status        string    `json:"status"`
	NodeID        string    `json:"node_id,omitempty"`
	BootID        string    `json:"boot_id,omitempty"`
	Version       string    `json:"version,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds,omitempty"`
	Reason        string    `json:"reason,omitempty"`

	SensorReady bool   `json:"sensor_ready"`
	LinkUp      bool   `json:"link_up"`
	Connection  string `json:"connection,omitempty"`
	QueueDepth  int    `json:"queue_depth"`

	Counters *Counters `json:"counters,omitempty"`
}

// Counters are the pipeline totals since boot.
type Counters struct {
	Sampled         uint64 `json:"sampled"`
	BusErrors       uint64 `json:"bus_errors"`
	InvalidSamples  uint64 `json:"invalid_samples"`
	Dropped         uint64 `json:"dropped"`
	Sent            uint64 `json:"sent"`
	SendErrors      uint64 `json:"send_errors"`
	Connects        uint64 `json:"connects"`
	ConnectFailures uint64 `json:"connect_failures"`
	Disconnects     uint64 `json:"disconnects"`
	BytesSent       uint64 `json:"bytes_sent"`
}

// Fields flattens the counters for a time-series point.
func (c Counters) Fields() map[string]any {
	return map[string]any{
		"sampled":          c.Sampled,
		"bus_errors":       c.BusErrors,
		"invalid_samples":  c.InvalidSamples,
		"dropped":          c.Dropped,
		"sent":             c.Sent,
		"send_errors":      c.SendErrors,
		"connects":         c.Connects,
		"connect_failures": c.ConnectFailures,
		"disconnects":      c.Disconnects,
		"bytes_sent":       c.BytesSent,
	}
}
