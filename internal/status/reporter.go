// Package status publishes a node's health and pipeline counters.
//
// The Reporter publishes a retained Message to MQTT every interval and
// whenever Trigger is called (the node triggers on every connection state
// change). When a metrics writer is configured the counters are also
// written as one time-series point per report.
package status

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// DefaultInterval is the periodic report interval.
const DefaultInterval = 30 * time.Second

// Publisher is the interface for publishing status messages.
// *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MetricsWriter records counter snapshots for this node.
// *influxdb.Client implements it.
type MetricsWriter interface {
	WritePipeline(fields map[string]any)
}

// Logger is the logging interface used by the reporter.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Snapshot is the live node state at report time.
type Snapshot struct {
	SensorReady bool
	LinkUp      bool
	Connection  string
	Connected   bool
	QueueDepth  int
	Counters    Counters
}

// Config holds configuration for the reporter.
type Config struct {
	NodeID  string
	Version string

	// Topic is where messages are published (retained, QoS 1).
	Topic string

	// Interval defaults to DefaultInterval.
	Interval time.Duration

	// Publisher and Metrics are both optional.
	Publisher Publisher
	Metrics   MetricsWriter

	// Snapshot is called once per report.
	Snapshot func() Snapshot

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Reporter manages periodic status reporting.
type Reporter struct {
	cfg     Config
	bootID  string
	clock   clock.Clock
	started time.Time
	trigger chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a reporter with a fresh boot id.
func NewReporter(cfg Config) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Snapshot == nil {
		cfg.Snapshot = func() Snapshot { return Snapshot{} }
	}

	return &Reporter{
		cfg:     cfg,
		bootID:  uuid.NewString(),
		clock:   clk,
		started: clk.Now(),
		trigger: make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for this reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// BootID identifies this process run.
func (r *Reporter) BootID() string {
	return r.bootID
}

// Trigger requests an immediate report. It never blocks; triggers that
// arrive while one is pending are merged.
func (r *Reporter) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run reports once immediately, then on every tick and trigger until ctx
// is cancelled. A final "stopping" message is published on the way out.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := r.clock.Ticker(r.cfg.Interval)
	defer ticker.Stop()

	r.report()

	for {
		select {
		case <-ctx.Done():
			//nolint:errcheck // Best-effort during shutdown
			r.publish(r.build(Stopping, "shutdown"))
			return nil
		case <-ticker.C:
			r.report()
		case <-r.trigger:
			r.report()
		}
	}
}

// PublishNow reports the current state immediately.
func (r *Reporter) PublishNow() error {
	snap := r.cfg.Snapshot()
	state, reason := determineStatus(snap)
	msg := r.message(snap, state, reason)

	if r.cfg.Metrics != nil {
		fields := msg.Counters.Fields()
		fields["queue_depth"] = msg.QueueDepth
		fields["sensor_ready"] = msg.SensorReady
		fields["link_up"] = msg.LinkUp
		r.cfg.Metrics.WritePipeline(fields)
	}

	return r.publish(msg)
}

func (r *Reporter) report() {
	if err := r.PublishNow(); err != nil {
		r.logError("failed to publish status", err)
	}
}

// determineStatus evaluates the node's health from a snapshot.
func determineStatus(s Snapshot) (string, string) {
	switch {
	case !s.SensorReady:
		return Degraded, "sensor not ready"
	case !s.LinkUp:
		return Degraded, "network link down"
	case !s.Connected:
		return Degraded, "collector not connected"
	}
	return Online, ""
}

func (r *Reporter) build(state, reason string) Message {
	return r.message(r.cfg.Snapshot(), state, reason)
}

func (r *Reporter) message(s Snapshot, state, reason string) Message {
	counters := s.Counters
	now := r.clock.Now()
	return Message{
		Status:        state,
		NodeID:        r.cfg.NodeID,
		BootID:        r.bootID,
		Version:       r.cfg.Version,
		Timestamp:     now.UTC(),
		UptimeSeconds: int64(now.Sub(r.started).Seconds()),
		Reason:        reason,
		SensorReady:   s.SensorReady,
		LinkUp:        s.LinkUp,
		Connection:    s.Connection,
		QueueDepth:    s.QueueDepth,
		Counters:      &counters,
	}
}

func (r *Reporter) publish(msg Message) error {
	if r.cfg.Publisher == nil || r.cfg.Topic == "" {
		return nil
	}
	if !r.cfg.Publisher.IsConnected() {
		r.logDebug("status not published, broker disconnected", "status", msg.Status)
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.cfg.Publisher.Publish(r.cfg.Topic, payload, 1, true)
}

func (r *Reporter) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

func (r *Reporter) logDebug(msg string, kv ...any) {
	if l := r.getLogger(); l != nil {
		l.Debug(msg, kv...)
	}
}

func (r *Reporter) logError(msg string, err error) {
	if l := r.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}
