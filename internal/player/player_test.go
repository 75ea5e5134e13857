package player

import (
	"sync"
	"testing"
	"time"

	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/player/backend/mock"
	"github.com/sendspin/endpoint-core/internal/samplesource"
)

// toneSource is a minimal samplesource.Source double that emits a fixed
// value, for player-level tests that don't need real resampling.
type toneSource struct {
	value float32
}

func (t *toneSource) Read(out []float32) int {
	for i := range out {
		out[i] = t.value
	}
	return len(out)
}

func (t *toneSource) Stats() samplesource.Stats { return samplesource.Stats{} }

// panicSource always panics, for exercising deviceCallback's recover path.
type panicSource struct{}

func (panicSource) Read(out []float32) int { panic("boom") }
func (panicSource) Stats() samplesource.Stats { return samplesource.Stats{} }

func newTestPlayer(t *testing.T, bus *events.Bus) (*Player, *mock.Backend) {
	t.Helper()
	be := mock.New()
	p := New("living-room", be, bus)
	format := backend.Format{SampleRate: 48000, Channels: 2}
	if err := p.Initialize(format, "mock-0"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p, be
}

func TestPlayer_InitializeRejectsUnknownDevice(t *testing.T) {
	be := mock.New()
	p := New("living-room", be, nil)
	err := p.Initialize(backend.Format{SampleRate: 48000, Channels: 2}, "does-not-exist")
	if err == nil {
		t.Fatal("expected error for unknown device")
	}
	if p.State() != StateUninitialized {
		t.Fatalf("state = %s, want uninitialized", p.State())
	}
}

func TestPlayer_InitializeTwiceFails(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.Initialize(backend.Format{SampleRate: 48000, Channels: 2}, "mock-0"); err == nil {
		t.Fatal("expected error re-initializing")
	}
}

func TestPlayer_PlayWithoutSourceFails(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.Play(); err == nil {
		t.Fatal("expected error playing without a sample source")
	}
}

func TestPlayer_FullLifecycleTransitions(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.SetSampleSource(&toneSource{value: 0.5}); err != nil {
		t.Fatalf("SetSampleSource: %v", err)
	}

	if p.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", p.State())
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if p.State() != StatePlaying {
		t.Fatalf("state = %s, want playing", p.State())
	}

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if p.State() != StatePaused {
		t.Fatalf("state = %s, want paused", p.State())
	}

	if err := p.Play(); err != nil {
		t.Fatalf("resume Play: %v", err)
	}
	if p.State() != StatePlaying {
		t.Fatalf("state = %s, want playing after resume", p.State())
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", p.State())
	}
}

func TestPlayer_PauseFromStoppedFails(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.Pause(); err == nil {
		t.Fatal("expected error pausing from stopped")
	}
}

func TestPlayer_StopIsIdempotentWhenNotPlaying(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop from stopped should be a no-op, got: %v", err)
	}
}

func TestPlayer_DisposeIsIdempotent(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.SetSampleSource(&toneSource{value: 0}); err != nil {
		t.Fatalf("SetSampleSource: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if p.State() != StateUninitialized {
		t.Fatalf("state after Dispose = %s, want uninitialized", p.State())
	}
	if err := p.Dispose(); err != nil {
		t.Fatalf("second Dispose should be a no-op, got: %v", err)
	}
}

func TestPlayer_SwitchDeviceResumesPlaybackOnNewDevice(t *testing.T) {
	devices := []backend.DeviceInfo{
		{ID: "mock-0", Name: "Primary", IsDefault: true},
		{ID: "mock-1", Name: "Secondary"},
	}
	be := mock.New(devices...)
	p := New("living-room", be, nil)
	if err := p.Initialize(backend.Format{SampleRate: 48000, Channels: 2}, "mock-0"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.SetSampleSource(&toneSource{value: 0.25}); err != nil {
		t.Fatalf("SetSampleSource: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if err := p.SwitchDevice("mock-1"); err != nil {
		t.Fatalf("SwitchDevice: %v", err)
	}
	if p.State() != StatePlaying {
		t.Fatalf("state after SwitchDevice = %s, want playing", p.State())
	}

	_ = p.Dispose()
}

func TestPlayer_SwitchDeviceRejectsUnknownDevice(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	if err := p.SetSampleSource(&toneSource{value: 0}); err != nil {
		t.Fatalf("SetSampleSource: %v", err)
	}
	if err := p.SwitchDevice("does-not-exist"); err == nil {
		t.Fatal("expected error switching to unknown device")
	}
	// The player is left stopped (SwitchDevice stops before validating);
	// it must not be stuck mid-transition.
	if p.State() != StateStopped {
		t.Fatalf("state = %s, want stopped after failed switch", p.State())
	}
}

func TestPlayer_VolumeAndMuteAppliedInCallback(t *testing.T) {
	p, _ := newTestPlayer(t, nil)
	p.SetVolume(50)
	out := make([]float32, 4)
	for i := range out {
		out[i] = 1
	}
	p.source = &toneSource{value: 1}
	p.deviceCallback(out, 2)
	for _, s := range out {
		if s < 0.49 || s > 0.51 {
			t.Fatalf("sample = %v, want ~0.5 after 50%% volume", s)
		}
	}

	p.SetMuted(true)
	p.deviceCallback(out, 2)
	for _, s := range out {
		if s != 0 {
			t.Fatalf("sample = %v, want 0 when muted", s)
		}
	}
}

// recordingConsumer captures every event of a given topic published to it,
// for asserting state/error events fired during player tests.
type recordingConsumer struct {
	name string

	mu     sync.Mutex
	events []events.Event
}

func (c *recordingConsumer) Name() string { return c.name }

func (c *recordingConsumer) ProcessEvent(e events.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *recordingConsumer) snapshot() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestPlayer_DeviceCallbackPanicPublishesErrorEvent(t *testing.T) {
	bus := events.New(events.DefaultConfig())
	consumer := &recordingConsumer{name: "test-panic"}
	if err := bus.RegisterConsumer(consumer); err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}

	p, _ := newTestPlayer(t, bus)
	p.source = panicSource{}

	out := make([]float32, 4)
	p.deviceCallback(out, 2)

	for _, s := range out {
		if s != 0 {
			t.Fatalf("expected silence after trapped panic, got %v", s)
		}
	}

	var found ErrorOccurred
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, e := range consumer.snapshot() {
			if errEvt, ok := e.(ErrorOccurred); ok {
				found = errEvt
				goto done
			}
		}
		time.Sleep(time.Millisecond)
	}
done:
	if found.Endpoint != "living-room" {
		t.Fatalf("endpoint = %q, want living-room (expected an ErrorOccurred event after device callback panic)", found.Endpoint)
	}
}

func TestPlayer_StateChangedEventsPublishedOnTransitions(t *testing.T) {
	bus := events.New(events.DefaultConfig())
	consumer := &recordingConsumer{name: "test-transitions"}
	if err := bus.RegisterConsumer(consumer); err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}

	p, _ := newTestPlayer(t, bus)
	if err := p.SetSampleSource(&toneSource{value: 0}); err != nil {
		t.Fatalf("SetSampleSource: %v", err)
	}
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var count int
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		count = 0
		for _, e := range consumer.snapshot() {
			if _, ok := e.(StateChanged); ok {
				count++
			}
		}
		if count >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if count < 3 {
		t.Fatalf("got %d StateChanged events, want at least 3 (stopped, playing, stopped)", count)
	}
}
