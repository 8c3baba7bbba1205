package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/thermolink/internal/infrastructure/config"
	"github.com/nerrad567/thermolink/internal/infrastructure/logging"
	"github.com/nerrad567/thermolink/internal/reading"
	"github.com/nerrad567/thermolink/internal/sensor"
)

// ChannelReading is the WebSocket channel that carries received readings.
const ChannelReading = "reading"

// maxLineSize bounds one record; real records are under 64 bytes.
const maxLineSize = 4096

// Broadcaster relays events to dashboard clients. *Hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// IngestStats holds ingest counters.
type IngestStats struct {
	Sessions  uint64 `json:"sessions"`
	Active    int64  `json:"active"`
	Received  uint64 `json:"received"`
	Malformed uint64 `json:"malformed"`
}

// Ingest accepts node connections and decodes their line-delimited records
// into the history. Several nodes may be connected at once.
type Ingest struct {
	cfg     config.IngestConfig
	history *History
	relay   Broadcaster
	logger  *logging.Logger
	now     func() time.Time

	statusMu sync.RWMutex
	status   string

	addrMu sync.RWMutex
	addr   net.Addr

	sessions  atomic.Uint64
	active    atomic.Int64
	received  atomic.Uint64
	malformed atomic.Uint64
}

// NewIngest creates an ingest server. relay may be nil.
func NewIngest(cfg config.IngestConfig, history *History, relay Broadcaster, logger *logging.Logger) *Ingest {
	return &Ingest{
		cfg:     cfg,
		history: history,
		relay:   relay,
		logger:  logger,
		now:     time.Now,
		status:  "starting",
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Ingest) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListenFailed, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Open sessions are
// closed on the way out. ln is closed when Serve returns.
func (s *Ingest) Serve(ctx context.Context, ln net.Listener) error {
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	s.setStatus(fmt.Sprintf("listening on %s", ln.Addr()))
	s.logger.Info("ingest listening", "address", ln.Addr().String())

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	go func() {
		<-sctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			cancel()
			wg.Wait()
			s.setStatus("stopped")
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingest accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(sctx, conn)
		}()
	}
}

// handleConn reads records from one node until EOF, idle timeout or shutdown.
func (s *Ingest) handleConn(ctx context.Context, conn net.Conn) {
	session := uuid.NewString()
	remote := conn.RemoteAddr().String()
	log := s.logger.With("session", session, "remote", remote)

	s.sessions.Add(1)
	s.active.Add(1)
	s.setStatus("connected to " + remote)
	log.Info("node connected")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		if s.active.Add(-1) == 0 {
			s.setStatus("waiting for reconnection...")
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineSize)

	for {
		if s.cfg.IdleTimeout > 0 {
			//nolint:errcheck // Best-effort deadline; read error caught below
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		s.handleLine(log, scanner.Bytes(), session)
	}

	err := scanner.Err()
	var netErr net.Error
	switch {
	case err == nil:
		log.Info("connection closed by node")
	case ctx.Err() != nil:
		log.Debug("session closed for shutdown")
	case errors.As(err, &netErr) && netErr.Timeout():
		log.Warn("node idle, closing session", "idle_timeout", s.cfg.IdleTimeout)
	default:
		log.Warn("session read failed", "error", err)
	}
}

func (s *Ingest) handleLine(log *logging.Logger, line []byte, session string) {
	if strings.TrimSpace(string(line)) == "" {
		return
	}

	r, err := reading.Decode(line)
	if err != nil {
		s.malformed.Add(1)
		log.Warn("discarding undecodable record", "error", err, "line", string(line))
		return
	}

	received := s.now()
	point := newDataPoint(r, received, session)
	s.history.Add(point)
	s.received.Add(1)

	log.Info("reading received",
		"celsius", fmt.Sprintf("%.2f", r.Temperature),
		"fahrenheit", fmt.Sprintf("%.2f", sensor.Fahrenheit(r.Temperature)),
		"node_tick", uint64(r.CapturedAt),
	)

	if s.relay != nil {
		s.relay.Broadcast(ChannelReading, point)
	}
}

// Status describes the ingest connection state for the API.
func (s *Ingest) Status() string {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Ingest) setStatus(status string) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
}

// Addr returns the listening address, or nil before Serve.
func (s *Ingest) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// Stats returns a snapshot of ingest counters.
func (s *Ingest) Stats() IngestStats {
	return IngestStats{
		Sessions:  s.sessions.Load(),
		Active:    s.active.Load(),
		Received:  s.received.Load(),
		Malformed: s.malformed.Load(),
	}
}
