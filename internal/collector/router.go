package collector

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/thermolink/internal/sensor"
)

// defaultWSPath is used when server.websocket.path is empty.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/latest", s.handleLatest)
		r.Get("/history", s.handleHistory)
		r.Get("/stats", s.handleStats)

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Get("/{id}", s.handleGetNode)
		})

		r.Get("/v1/health", s.handleHealth)
	})

	wsPath := s.cfg.WebSocket.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Handle(wsPath, s.hub)

	return r
}

// latestPayload mirrors the history point with a Fahrenheit rendering.
type latestPayload struct {
	DataPoint
	Fahrenheit float64 `json:"fahrenheit"`
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	var latest *latestPayload
	if p, ok := s.history.Latest(); ok {
		latest = &latestPayload{DataPoint: p, Fahrenheit: sensor.Fahrenheit(p.Temperature)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"temperature": latest,
		"status":      s.connectionStatus(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   s.history.All(),
		"status": s.connectionStatus(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.history.Stats())
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.nodes.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.nodes.Get(id)
	if !ok {
		writeNotFound(w, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	body := map[string]any{
		"version":           s.version,
		"uptime_seconds":    int64(time.Since(s.started).Seconds()),
		"history_size":      s.history.Len(),
		"websocket_clients": s.hub.ClientCount(),
	}
	if s.ingest != nil {
		body["ingest"] = s.ingest.Stats()
	}
	if s.mqtt != nil {
		if err := s.mqtt.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			body["mqtt"] = map[string]any{"connected": false, "error": err.Error()}
		} else {
			body["mqtt"] = map[string]any{"connected": true}
		}
	}
	body["status"] = status
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) connectionStatus() string {
	if s.ingest == nil {
		return "ingest disabled"
	}
	return s.ingest.Status()
}
