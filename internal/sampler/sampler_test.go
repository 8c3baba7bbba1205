package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/thermolink/internal/queue"
	"github.com/nerrad567/thermolink/internal/reading"
	"github.com/nerrad567/thermolink/internal/sensor"
)

type scriptedSource struct {
	mu     sync.Mutex
	ready  bool
	values []float64
	errs   []error
	calls  int
}

func (s *scriptedSource) Ready() bool { return s.ready }

func (s *scriptedSource) Sample() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	if i < len(s.values) {
		return s.values[i], nil
	}
	return 20, nil
}

func TestRun_SensorUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		source Source
	}{
		{"nil source", nil},
		{"not calibrated", &scriptedSource{ready: false}},
		{"nil device", (*sensor.Device)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.New(4)
			s := New(Config{}, tt.source, q, reading.NewClock(clock.NewMock()))

			err := s.Run(context.Background())
			if !errors.Is(err, ErrSensorUnavailable) {
				t.Errorf("Run() error = %v, want ErrSensorUnavailable", err)
			}
			if q.Len() != 0 {
				t.Errorf("queue Len() = %d, want 0", q.Len())
			}
		})
	}
}

func TestRun_Cadence(t *testing.T) {
	mock := clock.NewMock()
	q := queue.New(8)
	src := &scriptedSource{ready: true, values: []float64{20.5, 21.0, 21.5}}
	s := New(Config{}, src, q, reading.NewClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Nothing is sampled during the startup delay.
	time.Sleep(10 * time.Millisecond)
	mock.Add(DefaultStartupDelay - time.Millisecond)
	if q.Len() != 0 {
		t.Fatalf("sampled before startup delay elapsed: Len() = %d", q.Len())
	}

	mock.Add(time.Millisecond)
	waitFor(t, func() bool { return q.Len() == 1 })

	time.Sleep(10 * time.Millisecond)
	mock.Add(DefaultInterval)
	waitFor(t, func() bool { return q.Len() == 2 })

	want := []reading.Reading{
		{Temperature: 20.5, CapturedAt: 2000},
		{Temperature: 21.0, CapturedAt: 2500},
	}
	for i, w := range want {
		got, ok := q.Pop(0)
		if !ok {
			t.Fatalf("Pop() #%d failed", i)
		}
		if got != w {
			t.Errorf("reading %d = %+v, want %+v", i, got, w)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestSampleOnce(t *testing.T) {
	busErr := fmt.Errorf("%w: nack", sensor.ErrBus)
	invalid := fmt.Errorf("%w: 0x80000", sensor.ErrInvalidSample)

	tests := []struct {
		name      string
		errs      []error
		prefill   int
		wantStats Stats
		wantLen   int
	}{
		{
			name:      "sample queued",
			wantStats: Stats{Sampled: 1},
			wantLen:   1,
		},
		{
			name:      "bus error skipped",
			errs:      []error{busErr},
			wantStats: Stats{BusErrors: 1},
		},
		{
			name:      "invalid sample skipped",
			errs:      []error{invalid},
			wantStats: Stats{InvalidSamples: 1},
		},
		{
			name:      "full queue drops",
			prefill:   2,
			wantStats: Stats{Sampled: 1, Dropped: 1},
			wantLen:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.New(2)
			for i := 0; i < tt.prefill; i++ {
				q.Push(reading.Reading{}, 0)
			}
			src := &scriptedSource{ready: true, errs: tt.errs}
			s := New(Config{PushTimeout: time.Millisecond}, src, q, reading.NewClock(clock.NewMock()))

			s.sampleOnce()

			if got := s.Stats(); got != tt.wantStats {
				t.Errorf("Stats() = %+v, want %+v", got, tt.wantStats)
			}
			if q.Len() != tt.wantLen {
				t.Errorf("queue Len() = %d, want %d", q.Len(), tt.wantLen)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}, nil, queue.New(1), nil)
	if s.cfg.StartupDelay != DefaultStartupDelay {
		t.Errorf("StartupDelay = %v, want %v", s.cfg.StartupDelay, DefaultStartupDelay)
	}
	if s.cfg.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", s.cfg.Interval, DefaultInterval)
	}
	if s.cfg.PushTimeout != DefaultPushTimeout {
		t.Errorf("PushTimeout = %v, want %v", s.cfg.PushTimeout, DefaultPushTimeout)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
