package link

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultPollInterval is how often the monitor inspects the interface.
const DefaultPollInterval = time.Second

// Logger defines the logging interface used by the monitor.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Probe reports whether the link is usable right now.
type Probe func() (bool, error)

// InterfaceProbe returns a Probe that considers the link up when the named
// interface is up and holds a non-loopback unicast address. An empty name
// matches any such interface.
func InterfaceProbe(name string) Probe {
	return func() (bool, error) {
		if name != "" {
			iface, err := net.InterfaceByName(name)
			if err != nil {
				return false, fmt.Errorf("looking up interface %s: %w", name, err)
			}
			return usable(*iface)
		}

		ifaces, err := net.Interfaces()
		if err != nil {
			return false, fmt.Errorf("listing interfaces: %w", err)
		}
		for _, iface := range ifaces {
			if ok, _ := usable(iface); ok {
				return true, nil
			}
		}
		return false, nil
	}
}

func usable(iface net.Interface) (bool, error) {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
		return false, nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return false, fmt.Errorf("reading addresses of %s: %w", iface.Name, err)
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.IsGlobalUnicast() {
			return true, nil
		}
	}
	return false, nil
}

// Monitor polls a Probe and publishes the result to a Status.
type Monitor struct {
	status   *Status
	probe    Probe
	interval time.Duration
	clock    clock.Clock
	logger   Logger
}

// NewMonitor creates a monitor. A zero interval uses DefaultPollInterval;
// a nil clk uses the wall clock.
func NewMonitor(status *Status, probe Probe, interval time.Duration, clk clock.Clock) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		status:   status,
		probe:    probe,
		interval: interval,
		clock:    clk,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for link transitions.
func (m *Monitor) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		m.check()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) check() {
	up, err := m.probe()
	if err != nil {
		if m.status.Up() {
			m.logger.Warn("link probe failed", "error", err)
		}
		up = false
	}

	was := m.status.Up()
	m.status.Set(up)
	if up != was {
		if up {
			m.logger.Info("link up")
		} else {
			m.logger.Warn("link down")
		}
	}
}
