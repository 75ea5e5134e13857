package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/monitor"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/player/backend/mock"
	"github.com/sendspin/endpoint-core/internal/playermanager"
)

func newStreamTestController(t *testing.T) (*Controller, *events.Bus) {
	t.Helper()
	bus := events.New(events.DefaultConfig())
	registry := playermanager.BackendRegistry{"mock": mock.New(backend.DeviceInfo{ID: "mock-0", IsDefault: true})}
	m := playermanager.New(registry, bus, nil, nil)
	if _, err := m.Create(conf.PlayerConfiguration{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	b := monitor.New(m, bus, time.Hour)
	return New(m, bus, b, nil, nil), bus
}

func TestStream_SubscribeReceivesImmediateSnapshot(t *testing.T) {
	c, _ := newStreamTestController(t)
	server := httptest.NewServer(c.Echo)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env streamMessage
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "status_update" {
		t.Fatalf("type = %q, want status_update", env.Type)
	}
}

func TestStream_StatusUpdateEventIsForwardedToSubscribers(t *testing.T) {
	c, bus := newStreamTestController(t)
	server := httptest.NewServer(c.Echo)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Drain the immediate snapshot.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}

	bus.TryPublish(monitor.StatusUpdate{Players: []monitor.PlayerStatus{{Name: "garage"}}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pushed update: %v", err)
	}
	if !strings.Contains(string(msg), "garage") {
		t.Fatalf("message = %s, want it to mention garage", msg)
	}
}

func TestStream_HealthCheckStillWorksOverHTTP(t *testing.T) {
	c, _ := newStreamTestController(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	c.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
