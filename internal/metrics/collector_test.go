package metrics

import (
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/player/backend/mock"
	"github.com/sendspin/endpoint-core/internal/playermanager"
)

func newTestManager(t *testing.T) *playermanager.Manager {
	t.Helper()
	registry := playermanager.BackendRegistry{"mock": mock.New(
		backend.DeviceInfo{ID: "mock-0", Name: "Primary", IsDefault: true},
	)}
	bus := events.New(events.DefaultConfig())
	return playermanager.New(registry, bus, nil, nil)
}

func TestCollector_CollectEmitsOneSeriesPerPlayer(t *testing.T) {
	manager := newTestManager(t)
	if _, err := manager.Create(conf.PlayerConfiguration{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := NewCollector(manager)
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)

	var sawTotalWritten, sawPlaybackGauge bool
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		desc := m.Desc().String()
		switch {
		case strings.Contains(desc, "endpointd_buffer_total_written_samples"):
			sawTotalWritten = true
			if pb.GetCounter().GetValue() != 0 {
				t.Fatalf("expected a freshly created player to report 0 total_written, got %v", pb.GetCounter().GetValue())
			}
		case strings.Contains(desc, "endpointd_playback_active"):
			sawPlaybackGauge = true
			if pb.GetGauge().GetValue() != 0 {
				t.Fatalf("expected a freshly created (not started) player to report playback_active=0")
			}
		}
	}
	if !sawTotalWritten || !sawPlaybackGauge {
		t.Fatal("expected both a total_written counter and a playback_active gauge for the kitchen player")
	}
}

func TestCollector_CollectEmitsNothingForAnEmptyRoster(t *testing.T) {
	manager := newTestManager(t)
	c := NewCollector(manager)
	ch := make(chan prometheus.Metric, 8)
	c.Collect(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	if count != 0 {
		t.Fatalf("expected no metrics for an empty roster, got %d", count)
	}
}

func TestCollector_DescribeReportsElevenMetrics(t *testing.T) {
	manager := newTestManager(t)
	c := NewCollector(manager)
	ch := make(chan *prometheus.Desc, 32)
	c.Describe(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	if count != 11 {
		t.Fatalf("expected 11 described metrics, got %d", count)
	}
}

func TestCollector_RegistersCleanlyWithARegistry(t *testing.T) {
	manager := newTestManager(t)
	if _, err := manager.Create(conf.PlayerConfiguration{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(manager)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n := testutil.CollectAndCount(reg, "endpointd_buffer_total_read_samples"); n != 1 {
		t.Fatalf("expected exactly one total_read series, got %d", n)
	}
}
