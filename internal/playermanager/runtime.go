package playermanager

import (
	"context"
	"sync"
	"time"

	"github.com/sendspin/endpoint-core/internal/audiobuffer"
	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/player"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/protocol"
	"github.com/sendspin/endpoint-core/internal/resampler"
	"github.com/sendspin/endpoint-core/internal/samplesource"
	"github.com/sendspin/endpoint-core/internal/syncest"
)

// RuntimeState is C7's view of one endpoint's lifecycle, distinct from
// player.State: it additionally covers pipeline assembly/teardown, not
// just the device play/pause state (spec §3's PlayerRuntime).
type RuntimeState int

const (
	RuntimeStopped RuntimeState = iota
	RuntimeStarting
	RuntimeRunning
	RuntimeStopping
	RuntimeError
)

func (s RuntimeState) String() string {
	switch s {
	case RuntimeStarting:
		return "starting"
	case RuntimeRunning:
		return "running"
	case RuntimeStopping:
		return "stopping"
	case RuntimeError:
		return "error"
	default:
		return "stopped"
	}
}

// Runtime is one named endpoint's full pipeline (C2-C6) plus the
// bookkeeping C7 needs to drive its lifecycle. A per-runtime mutex guards
// transitions (spec §5); TryLock is used by the manager to report Busy
// instead of blocking when a transition is already in flight.
type Runtime struct {
	mu sync.Mutex

	name   string
	cfg    conf.PlayerConfiguration
	format audiobuffer.AudioFormat

	state          RuntimeState
	lastTransition time.Time

	buffer    *audiobuffer.Buffer
	estimator *syncest.Estimator
	converter *resampler.Converter
	source    samplesource.Source
	player    *player.Player
	backend   backend.Backend

	adapter       *protocol.Adapter
	adapterCancel context.CancelFunc
}

// Snapshot is the read-only view returned by Get/List, safe to read
// without holding the runtime's mutex (spec §5: "read-only queries are
// lock-free against a snapshot").
type Snapshot struct {
	Name             string
	Config           conf.PlayerConfiguration
	State            RuntimeState
	LastTransitionAt time.Time
}

func (r *Runtime) snapshotLocked() Snapshot {
	return Snapshot{
		Name:             r.name,
		Config:           r.cfg,
		State:            r.state,
		LastTransitionAt: r.lastTransition,
	}
}

func (r *Runtime) transitionLocked(to RuntimeState) {
	r.state = to
	r.lastTransition = time.Now()
}

func (r *Runtime) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// bufferStats returns the runtime's C2 counters, false if the pipeline has
// no buffer yet (shouldn't happen post-Create, but guards a racing Delete).
func (r *Runtime) bufferStats(nowUS int64) (audiobuffer.Stats, bool) {
	r.mu.Lock()
	buf := r.buffer
	r.mu.Unlock()
	if buf == nil {
		return audiobuffer.Stats{}, false
	}
	return buf.GetStats(nowUS), true
}

// replacePipelineLocked swaps in a freshly built pipeline (config, buffer,
// estimator, converter, source, player, backend), leaving r's own mutex
// untouched — a plain struct-copy would clobber an already-held mutex with
// a zero-valued (and unlocked) one. Caller holds r.mu.
func (r *Runtime) replacePipelineLocked(fresh *Runtime) {
	// The old adapter, if any, is wired to the buffer/estimator being
	// replaced below — stop it rather than leave it writing into a
	// buffer nothing reads from anymore.
	if r.adapterCancel != nil {
		r.adapterCancel()
	}
	r.cfg = fresh.cfg
	r.format = fresh.format
	r.buffer = fresh.buffer
	r.estimator = fresh.estimator
	r.converter = fresh.converter
	r.source = fresh.source
	r.player = fresh.player
	r.backend = fresh.backend
	r.adapter = nil
	r.adapterCancel = nil
	r.transitionLocked(RuntimeStopped)
}

// buildPipelineLocked constructs C2 through C6 for cfg in the given format.
// Create calls it for a new endpoint; Update calls it to rebuild a stopped
// endpoint's pipeline.
func buildPipelineLocked(cfg conf.PlayerConfiguration, format audiobuffer.AudioFormat, be backend.Backend, bus *events.Bus) (*Runtime, error) {
	buf, err := audiobuffer.New(format, 200, bus, cfg.Name)
	if err != nil {
		return nil, newFailure(FailureInternal, "create buffer for %q: %v", cfg.Name, err)
	}

	conv, err := resampler.New(cfg.Preset, format.SampleRate, format.Channels, 480)
	if err != nil {
		return nil, newFailure(FailureInternal, "create resampler for %q: %v", cfg.Name, err)
	}

	estimator := syncest.New(syncest.DefaultTunables())

	var src samplesource.Source
	switch cfg.SyncStrategy {
	case conf.SyncStrategyLegacy:
		src = samplesource.NewLegacySource(buf, cfg.LegacyBlend, format.Channels, nil)
	default:
		src = samplesource.NewASRCSource(buf, conv, estimator, format.Channels, nil)
	}

	p := player.New(cfg.Name, be, bus)

	return &Runtime{
		name:      cfg.Name,
		cfg:       cfg,
		format:    format,
		buffer:    buf,
		estimator: estimator,
		converter: conv,
		source:    src,
		player:    p,
		backend:   be,
		state:     RuntimeStopped,
	}, nil
}
