// Package sampler runs the node's producer task: it reads the sensor at a
// fixed cadence and pushes each compensated reading onto the queue.
package sampler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/thermolink/internal/queue"
	"github.com/nerrad567/thermolink/internal/reading"
	"github.com/nerrad567/thermolink/internal/sensor"
)

// ErrSensorUnavailable is returned by Run when the sensor never calibrated.
// The network side keeps running with an empty queue.
var ErrSensorUnavailable = errors.New("sampler: sensor not available")

// Default cadence.
const (
	DefaultStartupDelay = 2 * time.Second
	DefaultInterval     = 500 * time.Millisecond
	DefaultPushTimeout  = 100 * time.Millisecond
)

// Source produces compensated temperatures. *sensor.Device satisfies it.
type Source interface {
	Ready() bool
	Sample() (float64, error)
}

var _ Source = (*sensor.Device)(nil)

// Logger defines the logging interface used by the sampler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config controls sampling cadence. Zero values take the defaults.
type Config struct {
	StartupDelay time.Duration
	Interval     time.Duration
	PushTimeout  time.Duration
}

// Stats holds sampling counters.
type Stats struct {
	Sampled        uint64
	BusErrors      uint64
	InvalidSamples uint64
	Dropped        uint64
}

// Sampler is the producer task. It is the only user of the sensor bus.
type Sampler struct {
	cfg    Config
	source Source
	queue  *queue.Queue
	ticks  *reading.Clock
	clock  clock.Clock
	logger Logger

	sampled        atomic.Uint64
	busErrors      atomic.Uint64
	invalidSamples atomic.Uint64
	dropped        atomic.Uint64
}

// New creates a sampler that stamps readings with ticks.
func New(cfg Config, source Source, q *queue.Queue, ticks *reading.Clock) *Sampler {
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	} else if cfg.StartupDelay == 0 {
		cfg.StartupDelay = DefaultStartupDelay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}
	if ticks == nil {
		ticks = reading.NewClock(nil)
	}
	return &Sampler{
		cfg:    cfg,
		source: source,
		queue:  q,
		ticks:  ticks,
		clock:  ticks.Source(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Call before Run.
func (s *Sampler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run samples until ctx is cancelled. It returns ErrSensorUnavailable at
// once if the sensor is not ready; that condition is never retried.
func (s *Sampler) Run(ctx context.Context) error {
	if s.source == nil || !s.source.Ready() {
		s.logger.Error("sensor not initialised, sampling disabled")
		return ErrSensorUnavailable
	}

	if err := s.sleep(ctx, s.cfg.StartupDelay); err != nil {
		return err
	}

	for {
		s.sampleOnce()
		if err := s.sleep(ctx, s.cfg.Interval); err != nil {
			return err
		}
	}
}

func (s *Sampler) sampleOnce() {
	temp, err := s.source.Sample()
	if err != nil {
		if errors.Is(err, sensor.ErrInvalidSample) {
			s.invalidSamples.Add(1)
		} else {
			s.busErrors.Add(1)
		}
		s.logger.Warn("sensor read failed", "error", err)
		return
	}
	s.sampled.Add(1)

	r := reading.Reading{Temperature: temp, CapturedAt: s.ticks.Now()}
	s.logger.Debug("temperature",
		"celsius", temp,
		"fahrenheit", sensor.Fahrenheit(temp),
		"reading", sensor.Temperature(temp).String(),
	)

	if !s.queue.Push(r, s.cfg.PushTimeout) {
		s.dropped.Add(1)
		s.logger.Warn("queue full, reading dropped", "temperature", temp, "timestamp", uint64(r.CapturedAt))
	}
}

func (s *Sampler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats returns sampling counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Sampled:        s.sampled.Load(),
		BusErrors:      s.busErrors.Load(),
		InvalidSamples: s.invalidSamples.Load(),
		Dropped:        s.dropped.Load(),
	}
}
