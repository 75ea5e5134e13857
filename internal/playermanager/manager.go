// Package playermanager implements C7, the Player Manager: CRUD and
// lifecycle operations over the named-endpoint roster, dependency-ordered
// startup, and per-endpoint concurrency control (spec §4.7, §5).
package playermanager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sendspin/endpoint-core/internal/audiobuffer"
	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/logging"
	"github.com/sendspin/endpoint-core/internal/player"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/protocol"
)

// DefaultLifecycleTimeout is the deadline applied to every lifecycle
// operation unless the caller's context already carries a tighter one
// (spec §5: "every lifecycle operation accepts a cancellation token with a
// 5 s default deadline").
const DefaultLifecycleTimeout = 5 * time.Second

// defaultFormat seeds every endpoint's pipeline (C2-C4) at Create time and
// stays its format for the pipeline's lifetime. C2 rejects a frame in any
// other format; C8 logs the rejection, publishes ErrorOccurred and drops
// the frame. No code path tears down or rebuilds a pipeline when the
// stream's format differs.
var defaultFormat = audiobuffer.AudioFormat{SampleRate: 48000, Channels: 2, Codec: "pcm_f32le"}

// Manager owns the named-endpoint roster. Its own mutex (the "map-level
// mutex" of spec §5) guards only Create/Delete/the map itself; each
// Runtime's own mutex guards its state transitions.
type Manager struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime

	backends BackendRegistry
	bus      *events.Bus
	log      *slog.Logger

	cardRestorer CardProfileRestorer
	sinkCreator  CustomSinkCreator
}

// New constructs a Manager. backends, bus must be non-nil; cardRestorer
// and sinkCreator may be nil, in which case no-op implementations are used
// (appropriate for the Mock backend / tests).
func New(backends BackendRegistry, bus *events.Bus, cardRestorer CardProfileRestorer, sinkCreator CustomSinkCreator) *Manager {
	if cardRestorer == nil {
		cardRestorer = noopCardProfileRestorer{}
	}
	if sinkCreator == nil {
		sinkCreator = noopCustomSinkCreator{}
	}
	return &Manager{
		runtimes:     make(map[string]*Runtime),
		backends:     backends,
		bus:          bus,
		log:          logging.ForService("playermanager"),
		cardRestorer: cardRestorer,
		sinkCreator:  sinkCreator,
	}
}

// Create registers a new named endpoint in the Stopped state. Does not
// start playback or open a device (spec §4.7: create is distinct from
// start).
func (m *Manager) Create(cfg conf.PlayerConfiguration) (Snapshot, error) {
	if err := conf.ValidateName(cfg.Name); err != nil {
		return Snapshot{}, newFailure(FailureNameInvalid, "%v", err)
	}
	cfg.Defaults()
	if err := conf.ValidatePlayerConfiguration(cfg); err != nil {
		return Snapshot{}, newFailure(FailureNameInvalid, "%v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runtimes[cfg.Name]; exists {
		return Snapshot{}, newFailure(FailureNameConflict, "player %q already exists", cfg.Name)
	}

	be, err := m.backends.resolve(cfg.Backend)
	if err != nil {
		return Snapshot{}, err
	}

	rt, err := buildPipelineLocked(cfg, defaultFormat, be, m.bus)
	if err != nil {
		return Snapshot{}, err
	}

	m.runtimes[cfg.Name] = rt
	m.log.Info("player created", "name", cfg.Name, "backend", cfg.Backend)
	return rt.snapshot(), nil
}

// Backends returns the backend registry the manager was built with, so
// internal/api can enumerate devices/providers without duplicating the
// resolve logic (spec §6: GET /api/devices, /api/providers).
func (m *Manager) Backends() BackendRegistry { return m.backends }

// Get returns a lock-free snapshot of one endpoint.
func (m *Manager) Get(name string) (Snapshot, error) {
	rt, err := m.lookup(name)
	if err != nil {
		return Snapshot{}, err
	}
	return rt.snapshot(), nil
}

// BufferStats returns every endpoint's current C2 counters, keyed by
// player name, for the Prometheus collector in internal/metrics (spec §3's
// stat fields: total_written, total_read, dropped_overflow, ...).
func (m *Manager) BufferStats() map[string]audiobuffer.Stats {
	m.mu.Lock()
	runtimes := make(map[string]*Runtime, len(m.runtimes))
	for name, rt := range m.runtimes {
		runtimes[name] = rt
	}
	m.mu.Unlock()

	nowUS := time.Now().UnixMicro()
	out := make(map[string]audiobuffer.Stats, len(runtimes))
	for name, rt := range runtimes {
		if stats, ok := rt.bufferStats(nowUS); ok {
			out[name] = stats
		}
	}
	return out
}

// List returns a lock-free snapshot of every endpoint.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	runtimes := make([]*Runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		runtimes = append(runtimes, rt)
	}
	m.mu.Unlock()

	out := make([]Snapshot, len(runtimes))
	for i, rt := range runtimes {
		out[i] = rt.snapshot()
	}
	return out
}

// Update replaces a stopped endpoint's configuration. Fails with
// AlreadyRunning if the endpoint is currently playing, since several
// fields (backend, device) require a full pipeline rebuild.
func (m *Manager) Update(name string, cfg conf.PlayerConfiguration) (Snapshot, error) {
	rt, err := m.lookup(name)
	if err != nil {
		return Snapshot{}, err
	}

	cfg.Name = name
	cfg.Defaults()
	if err := conf.ValidatePlayerConfiguration(cfg); err != nil {
		return Snapshot{}, newFailure(FailureNameInvalid, "%v", err)
	}

	if !rt.mu.TryLock() {
		return Snapshot{}, newFailure(FailureBusy, "player %q: transition in progress", name)
	}
	defer rt.mu.Unlock()

	if rt.state == RuntimeRunning || rt.state == RuntimeStarting {
		return Snapshot{}, newFailure(FailureAlreadyRunning, "player %q: stop before updating", name)
	}

	be, err := m.backends.resolve(cfg.Backend)
	if err != nil {
		return Snapshot{}, err
	}

	rebuilt, err := buildPipelineLocked(cfg, defaultFormat, be, m.bus)
	if err != nil {
		return Snapshot{}, err
	}

	rt.replacePipelineLocked(rebuilt)
	m.log.Info("player updated", "name", name)
	return rt.snapshotLocked(), nil
}

// Delete stops (if needed) and removes an endpoint. Deleting twice
// returns NotFound the second time, not success (spec §8's idempotence
// property distinguishes that from a silent no-op).
func (m *Manager) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	rt, exists := m.runtimes[name]
	if !exists {
		m.mu.Unlock()
		return newFailure(FailureNotFound, "player %q not found", name)
	}
	delete(m.runtimes, name)
	m.mu.Unlock()

	rt.mu.Lock()
	if rt.adapterCancel != nil {
		rt.adapterCancel()
	}
	rt.mu.Unlock()

	if err := m.stopRuntime(ctx, rt); err != nil {
		m.log.Warn("error stopping player during delete", "name", name, "error", err)
	}
	_ = rt.player.Dispose()
	m.log.Info("player deleted", "name", name)
	return nil
}

// Start opens the device and begins playback for name.
func (m *Manager) Start(ctx context.Context, name string) error {
	rt, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.startRuntime(ctx, rt)
}

// Stop halts playback and releases the device for name.
func (m *Manager) Stop(ctx context.Context, name string) error {
	rt, err := m.lookup(name)
	if err != nil {
		return err
	}
	return m.stopRuntime(ctx, rt)
}

// Connect attaches a decoded-frame stream to name's pipeline and starts
// the protocol adapter's run loop in the background (spec §5's
// network/decode task, a thread of control distinct from the device
// callback and the lifecycle task). Reconnecting replaces any adapter
// already attached rather than erroring, since a dropped and re-accepted
// connection is the common case, not a conflict.
func (m *Manager) Connect(name string, source protocol.FrameSource) error {
	rt, err := m.lookup(name)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.adapterCancel != nil {
		rt.adapterCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	adapter := protocol.New(name, source, rt.buffer, rt.estimator, m.bus, nil)
	rt.adapter = adapter
	rt.adapterCancel = cancel

	go func() {
		if err := adapter.Run(ctx); err != nil {
			m.log.Error("protocol adapter exited", "name", name, "error", err)
		}
	}()
	m.log.Info("protocol adapter connected", "name", name)
	return nil
}

// Disconnect stops name's protocol adapter, if one is attached. Playback
// continues from whatever is already buffered until it drains.
func (m *Manager) Disconnect(name string) error {
	rt, err := m.lookup(name)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.adapterCancel != nil {
		rt.adapterCancel()
		rt.adapterCancel = nil
		rt.adapter = nil
	}
	return nil
}

// SetVolume sets the software volume (0-100) for a running or stopped
// endpoint; takes effect immediately if playing.
func (m *Manager) SetVolume(name string, percent int) error {
	if err := conf.ValidateVolume(percent); err != nil {
		return newFailure(FailureNameInvalid, "%v", err)
	}
	rt, err := m.lookup(name)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.cfg.Volume = percent
	rt.player.SetVolume(percent)
	rt.mu.Unlock()
	return nil
}

// SetMuted toggles software mute for a running or stopped endpoint,
// independent of its volume; takes effect immediately if playing.
func (m *Manager) SetMuted(name string, muted bool) error {
	rt, err := m.lookup(name)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.cfg.Muted = muted
	rt.player.SetMuted(muted)
	rt.mu.Unlock()
	return nil
}

// SetOffset adjusts the per-endpoint delay offset in milliseconds
// (spec §3, clamped to [-1000, 1000]).
func (m *Manager) SetOffset(name string, delayMS int) error {
	if err := conf.ValidateOffsetMS(delayMS); err != nil {
		return newFailure(FailureNameInvalid, "%v", err)
	}
	rt, err := m.lookup(name)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.cfg.DelayOffsetMS = delayMS
	rt.mu.Unlock()
	return nil
}

// AutostartAllOnBoot restores card profiles, creates custom sinks, then
// starts every endpoint with Autostart set, in that order (spec §4.7). All
// autostarts run concurrently once the ordering prerequisites complete;
// the first hard failure (profile/sink step) aborts the whole sequence,
// but one endpoint's start failure does not block the others.
func (m *Manager) AutostartAllOnBoot(ctx context.Context) error {
	if err := m.cardRestorer.RestoreProfiles(ctx); err != nil {
		return newFailure(FailureInternal, "restore card profiles: %v", err)
	}

	configs := make([]conf.PlayerConfiguration, 0)
	for _, rt := range m.List() {
		configs = append(configs, rt.Config)
	}
	if err := m.sinkCreator.CreateSinks(ctx, configs); err != nil {
		return newFailure(FailureInternal, "create custom sinks: %v", err)
	}

	m.mu.Lock()
	var toStart []*Runtime
	for _, rt := range m.runtimes {
		if rt.snapshot().Config.Autostart {
			toStart = append(toStart, rt)
		}
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, rt := range toStart {
		rt := rt
		g.Go(func() error {
			if err := m.startRuntime(gctx, rt); err != nil {
				m.log.Error("autostart failed", "name", rt.name, "error", err)
			}
			return nil // one endpoint's failure must not cancel the others
		})
	}
	return g.Wait()
}

func (m *Manager) lookup(name string) (*Runtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, exists := m.runtimes[name]
	if !exists {
		return nil, newFailure(FailureNotFound, "player %q not found", name)
	}
	return rt, nil
}

func withLifecycleDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultLifecycleTimeout)
}

func (m *Manager) startRuntime(ctx context.Context, rt *Runtime) error {
	if !rt.mu.TryLock() {
		return newFailure(FailureBusy, "player %q: transition in progress", rt.name)
	}
	defer rt.mu.Unlock()

	if rt.state == RuntimeRunning {
		return newFailure(FailureAlreadyRunning, "player %q already running", rt.name)
	}

	ctx, cancel := withLifecycleDeadline(ctx)
	defer cancel()

	opID := uuid.NewString()
	m.log.Info("starting player", "name", rt.name, "op_id", opID)
	rt.transitionLocked(RuntimeStarting)

	p := rt.player
	src := rt.source
	backendFormat := backend.Format{SampleRate: rt.format.SampleRate, Channels: rt.format.Channels}
	deviceID := rt.cfg.DeviceID

	done := make(chan error, 1)
	go func() {
		// A player stopped earlier is already initialized; only a fresh
		// one needs Initialize.
		if p.State() == player.StateUninitialized {
			if err := p.Initialize(backendFormat, deviceID); err != nil {
				done <- err
				return
			}
		}
		if err := p.SetSampleSource(src); err != nil {
			done <- err
			return
		}
		done <- p.Play()
	}()

	select {
	case err := <-done:
		if err != nil {
			rt.transitionLocked(RuntimeError)
			return newFailure(FailureDeviceInvalid, "start player %q: %v", rt.name, err)
		}
		rt.transitionLocked(RuntimeRunning)
		m.log.Info("player started", "name", rt.name, "op_id", opID)
		return nil
	case <-ctx.Done():
		rt.transitionLocked(RuntimeError)
		return newFailure(FailureTimeout, "start player %q timed out", rt.name)
	}
}

func (m *Manager) stopRuntime(ctx context.Context, rt *Runtime) error {
	if !rt.mu.TryLock() {
		return newFailure(FailureBusy, "player %q: transition in progress", rt.name)
	}
	defer rt.mu.Unlock()

	if rt.state != RuntimeRunning && rt.state != RuntimeError {
		return newFailure(FailureNotRunning, "player %q not running", rt.name)
	}

	ctx, cancel := withLifecycleDeadline(ctx)
	defer cancel()

	rt.transitionLocked(RuntimeStopping)

	p := rt.player
	done := make(chan error, 1)
	go func() { done <- p.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			rt.transitionLocked(RuntimeError)
			return newFailure(FailureInternal, "stop player %q: %v", rt.name, err)
		}
		rt.transitionLocked(RuntimeStopped)
		return nil
	case <-ctx.Done():
		rt.transitionLocked(RuntimeError)
		return newFailure(FailureTimeout, "stop player %q timed out", rt.name)
	}
}
