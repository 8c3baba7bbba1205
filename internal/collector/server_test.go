package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/thermolink/internal/infrastructure/config"
	"github.com/nerrad567/thermolink/internal/infrastructure/mqtt"
	"github.com/nerrad567/thermolink/internal/reading"
	"github.com/nerrad567/thermolink/internal/status"
)

type mockSubscriber struct {
	topic     string
	handler   mqtt.MessageHandler
	err       error
	healthErr error
}

func (m *mockSubscriber) HealthCheck(context.Context) error {
	return m.healthErr
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.topic = topic
	m.handler = handler
	return m.err
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		API: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WebSocket: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		HistorySize: 10,
	}
}

// testServer creates a Server with an in-memory history and a running hub.
func testServer(t *testing.T) *Server {
	t.Helper()

	log := testLogger()
	cfg := testServerConfig()
	hub := NewHub(cfg.WebSocket, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv, err := New(Deps{
		Config:  cfg,
		Logger:  log,
		History: NewHistory(cfg.HistorySize),
		Ingest:  NewIngest(cfg.Ingest, nil, nil, log),
		Hub:     hub,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s: invalid JSON %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestNew_RequiresDeps(t *testing.T) {
	log := testLogger()
	hub := NewHub(config.WebSocketConfig{}, log)

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{History: NewHistory(1), Hub: hub}},
		{"no history", Deps{Logger: log, Hub: hub}},
		{"no hub", Deps{Logger: log, History: NewHistory(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil")
			}
		})
	}
}

func TestHandleLatest(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	rec, body := get(t, router, "/api/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["temperature"] != nil {
		t.Errorf("temperature = %v, want null before any reading", body["temperature"])
	}
	if body["status"] != "starting" {
		t.Errorf("status = %v, want starting", body["status"])
	}

	srv.history.Add(newDataPoint(reading.Reading{Temperature: 25, CapturedAt: 500}, time.Now(), "s1"))

	_, body = get(t, router, "/api/latest")
	latest, ok := body["temperature"].(map[string]any)
	if !ok {
		t.Fatalf("temperature = %v, want object", body["temperature"])
	}
	if latest["temperature"] != 25.0 || latest["fahrenheit"] != 77.0 || latest["node_timestamp"] != 500.0 {
		t.Errorf("latest = %v", latest)
	}
}

func TestHandleHistoryAndStats(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	_, stats := get(t, router, "/api/stats")
	if stats["min"] != nil || stats["max"] != nil || stats["avg"] != nil || stats["count"] != 0.0 {
		t.Errorf("empty stats = %v", stats)
	}

	for _, temp := range []float64{20, 22, 24} {
		srv.history.Add(newDataPoint(reading.Reading{Temperature: temp}, time.Now(), "s"))
	}

	_, hist := get(t, router, "/api/history")
	data, ok := hist["data"].([]any)
	if !ok || len(data) != 3 {
		t.Fatalf("history data = %v", hist["data"])
	}
	if _, ok := hist["status"].(string); !ok {
		t.Errorf("history status = %v", hist["status"])
	}

	_, stats = get(t, router, "/api/stats")
	if stats["min"] != 20.0 || stats["max"] != 24.0 || stats["avg"] != 22.0 || stats["count"] != 3.0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestHandleNodes(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	srv.nodes.Update("greenhouse", status.Message{Status: status.Online, NodeID: "greenhouse"})

	rec, body := get(t, router, "/api/nodes")
	if rec.Code != http.StatusOK || body["count"] != 1.0 {
		t.Errorf("GET /api/nodes = %d %v", rec.Code, body)
	}

	rec, body = get(t, router, "/api/nodes/greenhouse")
	if rec.Code != http.StatusOK || body["node_id"] != "greenhouse" {
		t.Errorf("GET /api/nodes/greenhouse = %d %v", rec.Code, body)
	}

	rec, body = get(t, router, "/api/nodes/missing")
	if rec.Code != http.StatusNotFound || body["code"] != ErrCodeNotFound {
		t.Errorf("GET /api/nodes/missing = %d %v", rec.Code, body)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t)
	rec, body := get(t, srv.buildRouter(), "/api/v1/health")

	if rec.Code != http.StatusOK || body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health = %d %v", rec.Code, body)
	}
	if _, ok := body["ingest"].(map[string]any); !ok {
		t.Errorf("ingest stats missing: %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
	if _, ok := body["mqtt"]; ok {
		t.Errorf("mqtt reported without a broker: %v", body)
	}
}

func TestHandleHealth_MQTT(t *testing.T) {
	tests := []struct {
		name          string
		healthErr     error
		wantStatus    string
		wantConnected bool
	}{
		{"connected", nil, "ok", true},
		{"disconnected", mqtt.ErrNotConnected, "degraded", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t)
			srv.mqtt = &mockSubscriber{healthErr: tt.healthErr}

			rec, body := get(t, srv.buildRouter(), "/api/v1/health")
			if rec.Code != http.StatusOK || body["status"] != tt.wantStatus {
				t.Errorf("health = %d %v, want status %q", rec.Code, body, tt.wantStatus)
			}
			broker, ok := body["mqtt"].(map[string]any)
			if !ok {
				t.Fatalf("mqtt missing: %v", body)
			}
			if broker["connected"] != tt.wantConnected {
				t.Errorf("mqtt.connected = %v, want %v", broker["connected"], tt.wantConnected)
			}
		})
	}
}

func TestMiddleware_RequestIDAndCORS(t *testing.T) {
	srv := testServer(t)
	srv.cfg.API.CORS.AllowedOrigins = []string{"http://dash.local"}
	router := srv.buildRouter()

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantACAO   string
	}{
		{"allowed origin", http.MethodGet, "http://dash.local", http.StatusOK, "http://dash.local"},
		{"denied origin", http.MethodGet, "http://evil.local", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "http://dash.local", http.StatusNoContent, "http://dash.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/stats", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("X-Request-ID", "req-1")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantACAO {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantACAO)
			}
			if got := rec.Header().Get("X-Request-ID"); got != "req-1" {
				t.Errorf("X-Request-ID = %q, want req-1", got)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec, body := get(t, h, "/")
	if rec.Code != http.StatusInternalServerError || body["code"] != ErrCodeInternal {
		t.Errorf("recovered response = %d %v", rec.Code, body)
	}
}

func TestWebSocket_ReceivesBroadcasts(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?channels=" + ChannelReading
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, "client registration", func() bool { return srv.hub.ClientCount() == 1 })

	srv.hub.Broadcast(ChannelNodeStatus, map[string]string{"ignored": "yes"})
	srv.hub.Broadcast(ChannelReading, map[string]float64{"temperature": 21.5})

	//nolint:errcheck // test read deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != ChannelReading {
		t.Errorf("message = %+v, want reading event", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("message = %+v, want pong p1", msg)
	}
}

func TestWebSocket_Subscribe(t *testing.T) {
	srv := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{ChannelNodeStatus}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	//nolint:errcheck // test read deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != WSTypeResponse || msg.ID != "s1" {
		t.Fatalf("message = %+v, want subscribe response", msg)
	}

	if err := srv.nodes.HandleMessage("thermolink/status/n1", []byte(`{"status":"online"}`)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.EventType != ChannelNodeStatus {
		t.Errorf("event = %q, want %q", msg.EventType, ChannelNodeStatus)
	}
}

func TestStartAndClose(t *testing.T) {
	log := testLogger()
	cfg := testServerConfig()
	sub := &mockSubscriber{}

	srv, err := New(Deps{
		Config:  cfg,
		Logger:  log,
		History: NewHistory(1),
		Hub:     NewHub(cfg.WebSocket, log),
		MQTT:    sub,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := srv.HealthCheck(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("HealthCheck() before Start = %v, want ErrNotStarted", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if sub.topic != "thermolink/status/+" || sub.handler == nil {
		t.Errorf("subscribed to %q", sub.topic)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
