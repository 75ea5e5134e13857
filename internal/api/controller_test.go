package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/metrics"
	"github.com/sendspin/endpoint-core/internal/monitor"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/player/backend/mock"
	"github.com/sendspin/endpoint-core/internal/playermanager"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	bus := events.New(events.DefaultConfig())
	registry := playermanager.BackendRegistry{"mock": mock.New(
		backend.DeviceInfo{ID: "mock-0", Name: "Primary", IsDefault: true},
	)}
	m := playermanager.New(registry, bus, nil, nil)
	b := monitor.New(m, bus, time.Hour) // no ticking during tests
	return New(m, bus, b, map[string]string{"card0": "output:analog-stereo"}, nil)
}

func doJSON(c *Controller, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, rec.Body.String())
	}
	return env
}

func TestController_HealthCheck(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestController_CreateListGetDeletePlayer(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(c, http.MethodPost, "/api/players", PlayerRequest{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("create: success = false, error=%s", env.Error)
	}

	rec = doJSON(c, http.MethodGet, "/api/players", nil)
	env = decodeEnvelope(t, rec)
	players, ok := env.Data.([]any)
	if !ok || len(players) != 1 {
		t.Fatalf("list = %+v, want 1 player", env.Data)
	}

	rec = doJSON(c, http.MethodGet, "/api/players/kitchen", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(c, http.MethodDelete, "/api/players/kitchen", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(c, http.MethodGet, "/api/players/kitchen", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", rec.Code)
	}
}

func TestController_CreateRejectsInvalidNameWith400(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodPost, "/api/players", PlayerRequest{Name: "kitchen/main", Backend: "mock"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error == "" {
		t.Fatalf("expected a populated error field")
	}
}

func TestController_StartStopLifecycleAndConflict(t *testing.T) {
	c := newTestController(t)
	doJSON(c, http.MethodPost, "/api/players", PlayerRequest{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"})

	rec := doJSON(c, http.MethodPost, "/api/players/kitchen/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(c, http.MethodPost, "/api/players/kitchen/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double-start status = %d, want 409", rec.Code)
	}

	rec = doJSON(c, http.MethodPost, "/api/players/kitchen/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
}

func TestController_SetVolumeValidatesRange(t *testing.T) {
	c := newTestController(t)
	doJSON(c, http.MethodPost, "/api/players", PlayerRequest{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"})

	rec := doJSON(c, http.MethodPost, "/api/players/kitchen/volume", VolumeRequest{Volume: 150})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(c, http.MethodPost, "/api/players/kitchen/volume", VolumeRequest{Volume: 42})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestController_SetOffsetValidatesRange(t *testing.T) {
	c := newTestController(t)
	doJSON(c, http.MethodPost, "/api/players", PlayerRequest{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"})

	rec := doJSON(c, http.MethodPut, "/api/players/kitchen/offset", OffsetRequest{DelayMS: 5000})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(c, http.MethodPut, "/api/players/kitchen/offset", OffsetRequest{DelayMS: -250})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestController_SetMutedTogglesConfig(t *testing.T) {
	c := newTestController(t)
	doJSON(c, http.MethodPost, "/api/players", PlayerRequest{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"})

	rec := doJSON(c, http.MethodPut, "/api/players/kitchen/mute", MuteRequest{Muted: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(c, http.MethodGet, "/api/players/kitchen", nil)
	env := decodeEnvelope(t, rec)
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape: %#v", env.Data)
	}
	if muted, _ := data["muted"].(bool); !muted {
		t.Fatalf("expected muted=true after PUT mute, got %#v", data["muted"])
	}
}

func TestController_ListDevicesProvidersCards(t *testing.T) {
	c := newTestController(t)

	rec := doJSON(c, http.MethodGet, "/api/devices", nil)
	env := decodeEnvelope(t, rec)
	devices, _ := env.Data.([]any)
	if len(devices) != 1 {
		t.Fatalf("devices = %+v, want 1", env.Data)
	}

	rec = doJSON(c, http.MethodGet, "/api/providers", nil)
	env = decodeEnvelope(t, rec)
	providers, _ := env.Data.([]any)
	if len(providers) != 1 {
		t.Fatalf("providers = %+v, want 1", env.Data)
	}

	rec = doJSON(c, http.MethodGet, "/api/cards", nil)
	env = decodeEnvelope(t, rec)
	cards, _ := env.Data.([]any)
	if len(cards) != 1 {
		t.Fatalf("cards = %+v, want 1", env.Data)
	}
}

func TestController_MetricsRouteServesPrometheusExposition(t *testing.T) {
	bus := events.New(events.DefaultConfig())
	registry := playermanager.BackendRegistry{"mock": mock.New(
		backend.DeviceInfo{ID: "mock-0", Name: "Primary", IsDefault: true},
	)}
	m := playermanager.New(registry, bus, nil, nil)
	if _, err := m.Create(conf.PlayerConfiguration{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	b := monitor.New(m, bus, time.Hour)

	promReg := prometheus.NewRegistry()
	if err := promReg.Register(metrics.NewCollector(m)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	c := New(m, bus, b, nil, promReg)

	rec := doJSON(c, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "endpointd_buffer_total_written_samples") {
		t.Fatalf("expected /metrics body to contain the buffer counter, got: %s", rec.Body.String())
	}
}

func TestController_MetricsRouteOmittedWhenRegistryIsNil(t *testing.T) {
	c := newTestController(t)
	rec := doJSON(c, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when no registry is wired", rec.Code)
	}
}
