package uplink

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/thermolink/internal/link"
)

// Default cadence for the connection manager.
const (
	DefaultLinkDownPoll   = 2 * time.Second
	DefaultRetryDelay     = 5 * time.Second
	DefaultConnectedPoll  = 5 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

// State is the connection manager state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds the collector endpoint and manager cadence.
// Zero durations take the package defaults.
type Config struct {
	// Address is the collector host:port.
	Address string

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	LinkDownPoll   time.Duration
	RetryDelay     time.Duration
	ConnectedPoll  time.Duration
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.LinkDownPoll <= 0 {
		c.LinkDownPoll = DefaultLinkDownPoll
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ConnectedPoll <= 0 {
		c.ConnectedPoll = DefaultConnectedPoll
	}
}

// Handle identifies one established connection. The zero Handle is never valid.
type Handle struct {
	gen uint64
}

// ManagerStats holds connection statistics.
type ManagerStats struct {
	State           State
	Connects        uint64
	ConnectFailures uint64
	Disconnects     uint64
	BytesSent       uint64
}

// Manager owns the collector connection.
//
// Thread Safety:
//   - Run must be called from exactly one goroutine.
//   - Handle, Write, ReportFailure, State and Stats are safe for concurrent use.
type Manager struct {
	cfg    Config
	link   *link.Status
	dialer Dialer
	clock  clock.Clock

	// Connection state: state, conn and gen change together.
	mu    sync.RWMutex
	state State
	conn  net.Conn
	gen   uint64

	// releasing is set while release waits for the write lock.
	releasing atomic.Bool

	onTransition func(from, to State)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	connects        atomic.Uint64
	connectFailures atomic.Uint64
	disconnects     atomic.Uint64
	bytesSent       atomic.Uint64
}

// NewManager creates a manager in the Disconnected state. A nil dialer uses
// net.Dialer; a nil clk uses the wall clock.
func NewManager(cfg Config, status *link.Status, dialer Dialer, clk clock.Clock) *Manager {
	cfg.applyDefaults()
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		cfg:    cfg,
		link:   status,
		dialer: dialer,
		clock:  clk,
		state:  StateDisconnected,
	}
}

// SetLogger sets the logger for connection events.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	defer m.loggerMu.Unlock()
	m.logger = logger
}

// SetOnTransition registers a callback invoked after every state change.
// It runs on the goroutine that caused the change and must not block.
func (m *Manager) SetOnTransition(fn func(from, to State)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.onTransition = fn
}

// Run drives the state machine until ctx is cancelled, then closes any
// open connection.
func (m *Manager) Run(ctx context.Context) error {
	defer m.release("shutdown")

	for {
		wait, watchLink := m.step(ctx)
		if err := m.wait(ctx, wait, watchLink); err != nil {
			return err
		}
	}
}

// step performs one state machine evaluation and returns how long to wait
// before the next, and whether a link change may end that wait early.
// The retry delay after a failed connect is never shortened.
func (m *Manager) step(ctx context.Context) (time.Duration, bool) {
	if !m.link.Up() {
		m.release("link down")
		return m.cfg.LinkDownPoll, true
	}

	if m.State() == StateConnected {
		return m.cfg.ConnectedPoll, true
	}

	if !m.transition(StateDisconnected, StateConnecting) {
		return m.cfg.RetryDelay, false
	}

	conn, err := m.dial(ctx)
	if err != nil {
		m.connectFailures.Add(1)
		m.transition(StateConnecting, StateDisconnected)
		m.logWarn("collector connect failed", "address", m.cfg.Address, "error", err)
		return m.cfg.RetryDelay, false
	}

	if !m.link.Up() {
		_ = conn.Close()
		m.transition(StateConnecting, StateDisconnected)
		return m.cfg.LinkDownPoll, true
	}

	m.mu.Lock()
	m.conn = conn
	m.gen++
	m.state = StateConnected
	m.mu.Unlock()

	m.connects.Add(1)
	m.logInfo("connected to collector", "address", m.cfg.Address)
	m.notify(StateConnecting, StateConnected)
	return m.cfg.ConnectedPoll, true
}

func (m *Manager) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.dialer.DialContext(dialCtx, "tcp", m.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return conn, nil
}

// wait sleeps for d or until ctx is done. With watchLink set it also
// returns when the link flips.
func (m *Manager) wait(ctx context.Context, d time.Duration, watchLink bool) error {
	timer := m.clock.Timer(d)
	defer timer.Stop()

	var changed <-chan struct{}
	if watchLink {
		changed = m.link.Changed()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-changed:
	}
	return nil
}

// transition moves from one state to another if the manager is in from.
func (m *Manager) transition(from, to State) bool {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()

	m.notify(from, to)
	return true
}

// release closes the current connection, if any, and enters Disconnected.
// A Write in progress is failed through its deadline instead of being
// waited out.
func (m *Manager) release(reason string) {
	m.mu.RLock()
	live := m.conn
	m.mu.RUnlock()
	if live != nil {
		m.releasing.Store(true)
		_ = live.SetWriteDeadline(time.Now())
	}

	m.mu.Lock()
	m.releasing.Store(false)
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.closeConn(conn, reason)
}

func (m *Manager) closeConn(conn net.Conn, reason string) {
	if conn != nil {
		_ = conn.Close()
	}
	m.disconnects.Add(1)
	m.logWarn("disconnected from collector", "reason", reason)
	m.notify(StateConnected, StateDisconnected)
}

func (m *Manager) notify(from, to State) {
	m.callbackMu.RLock()
	fn := m.onTransition
	m.callbackMu.RUnlock()

	m.logDebug("connection state changed", "from", from.String(), "to", to.String())
	if fn != nil {
		fn(from, to)
	}
}

// Handle returns the current connection handle, or false when not connected.
func (m *Manager) Handle() (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateConnected {
		return Handle{}, false
	}
	return Handle{gen: m.gen}, true
}

// Write sends p on the connection h was issued for. A release during the
// write expires its deadline, so Write returns ErrSendFailed promptly.
func (m *Manager) Write(h Handle, p []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateConnected || m.conn == nil {
		return ErrNotConnected
	}
	if h.gen != m.gen {
		return ErrStaleHandle
	}

	if err := m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	// release may have expired the deadline just before we set ours.
	if m.releasing.Load() {
		return ErrNotConnected
	}

	n, err := m.conn.Write(p)
	m.bytesSent.Add(uint64(n)) //nolint:gosec // n is never negative
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// ReportFailure releases the connection h was issued for. A handle from an
// older connection is ignored, so a late report cannot tear down a newer
// connection.
func (m *Manager) ReportFailure(h Handle, cause error) {
	m.mu.Lock()
	if m.state != StateConnected || h.gen != m.gen {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	reason := "write failed"
	if cause != nil {
		reason = cause.Error()
	}
	m.closeConn(conn, reason)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether a connection is established.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Stats returns connection statistics.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		State:           m.State(),
		Connects:        m.connects.Load(),
		ConnectFailures: m.connectFailures.Load(),
		Disconnects:     m.disconnects.Load(),
		BytesSent:       m.bytesSent.Load(),
	}
}

func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

func (m *Manager) logDebug(msg string, kv ...any) {
	if l := m.getLogger(); l != nil {
		l.Debug(msg, kv...)
	}
}

func (m *Manager) logInfo(msg string, kv ...any) {
	if l := m.getLogger(); l != nil {
		l.Info(msg, kv...)
	}
}

func (m *Manager) logWarn(msg string, kv ...any) {
	if l := m.getLogger(); l != nil {
		l.Warn(msg, kv...)
	}
}
