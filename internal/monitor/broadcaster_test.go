package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/player/backend/mock"
	"github.com/sendspin/endpoint-core/internal/playermanager"
)

type recordingConsumer struct {
	name string
	mu   sync.Mutex
	got  []events.Event
}

func (c *recordingConsumer) Name() string { return c.name }

func (c *recordingConsumer) ProcessEvent(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
	return nil
}

func (c *recordingConsumer) snapshot() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.got))
	copy(out, c.got)
	return out
}

func newTestManager(t *testing.T, bus *events.Bus) *playermanager.Manager {
	t.Helper()
	registry := playermanager.BackendRegistry{"mock": mock.New(backend.DeviceInfo{ID: "mock-0", IsDefault: true})}
	return playermanager.New(registry, bus, nil, nil)
}

func TestBroadcaster_PublishesSnapshotOnStartAndTick(t *testing.T) {
	bus := events.New(events.DefaultConfig())
	consumer := &recordingConsumer{name: "test"}
	if err := bus.RegisterConsumer(consumer); err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}

	m := newTestManager(t, bus)
	if _, err := m.Create(conf.PlayerConfiguration{Name: "kitchen", Backend: "mock", DeviceID: "mock-0"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	b := New(m, bus, 10*time.Millisecond)
	b.Start()
	defer b.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, e := range consumer.snapshot() {
			if su, ok := e.(StatusUpdate); ok {
				if len(su.Players) == 1 && su.Players[0].Name == "kitchen" {
					return
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for StatusUpdate containing kitchen, got %+v", consumer.snapshot())
}

func TestBroadcaster_SnapshotReflectsCurrentRoster(t *testing.T) {
	bus := events.New(events.DefaultConfig())
	m := newTestManager(t, bus)
	if _, err := m.Create(conf.PlayerConfiguration{Name: "kitchen", Backend: "mock", DeviceID: "mock-0", Volume: 55}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	b := New(m, bus, time.Hour) // never ticks during the test
	snap := b.Snapshot()

	if len(snap.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(snap.Players))
	}
	p := snap.Players[0]
	if p.Name != "kitchen" || p.Volume != 55 || p.State != "stopped" {
		t.Fatalf("player = %+v, want name=kitchen volume=55 state=stopped", p)
	}
}
