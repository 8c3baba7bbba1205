// Package collector receives temperature readings from nodes and serves
// them to dashboards.
//
// Nodes connect to the ingest listener and stream line-delimited JSON
// records. Each record is kept in a bounded in-memory history and relayed
// to WebSocket clients. The HTTP API exposes the latest reading, the
// history and summary statistics, plus node status documents relayed
// from MQTT when a broker is configured.
//
//	srv, err := collector.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/thermolink/internal/infrastructure/config"
	"github.com/nerrad567/thermolink/internal/infrastructure/logging"
	"github.com/nerrad567/thermolink/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Subscriber is the MQTT surface the server needs. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.ServerConfig
	Logger  *logging.Logger
	History *History
	Ingest  *Ingest
	Nodes   *Nodes
	Hub     *Hub
	MQTT    Subscriber // optional
	Version string
}

// Server is the collector's HTTP API server.
type Server struct {
	cfg     config.ServerConfig
	logger  *logging.Logger
	history *History
	ingest  *Ingest
	nodes   *Nodes
	hub     *Hub
	mqtt    Subscriber
	version string
	started time.Time
	server  *http.Server
	addr    net.Addr
}

// New creates a new API server with the given dependencies.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("websocket hub is required")
	}
	nodes := deps.Nodes
	if nodes == nil {
		nodes = NewNodes(deps.Hub)
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		history: deps.History,
		ingest:  deps.Ingest,
		nodes:   nodes,
		hub:     deps.Hub,
		mqtt:    deps.MQTT,
		version: deps.Version,
		started: time.Now(),
	}, nil
}

// Start subscribes to node status, binds the HTTP listener and serves in
// the background. Port conflicts are returned here.
func (s *Server) Start(_ context.Context) error {
	if err := s.subscribeNodeStatus(); err != nil {
		s.logger.Warn("failed to subscribe to node status", "error", err)
	}

	api := s.cfg.API
	s.server = &http.Server{
		Addr:              api.Address(),
		Handler:           s.buildRouter(),
		ReadTimeout:       api.GetReadTimeout(),
		ReadHeaderTimeout: api.GetReadTimeout(),
		WriteTimeout:      api.GetWriteTimeout(),
		IdleTimeout:       api.GetIdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("%w: api: %w", ErrListenFailed, err)
	}
	s.addr = ln.Addr()
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound API address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return ErrNotStarted
	}
	return nil
}

// subscribeNodeStatus relays node status documents into the node store.
func (s *Server) subscribeNodeStatus() error {
	if s.mqtt == nil {
		return nil
	}
	topic := s.cfg.NodeStatusTopic
	if topic == "" {
		topic = mqtt.Topics{}.AllNodeStatus()
	}
	s.logger.Info("subscribing to node status", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, s.nodes.HandleMessage)
}
