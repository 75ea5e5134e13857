// Package player implements C6, the Audio Player: a state machine wrapping
// a device Backend, pulling from a sample source on the device's real-time
// callback thread and applying software volume/mute (spec §4.6).
package player

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sendspin/endpoint-core/internal/errors"
	"github.com/sendspin/endpoint-core/internal/events"
	"github.com/sendspin/endpoint-core/internal/logging"
	"github.com/sendspin/endpoint-core/internal/player/backend"
	"github.com/sendspin/endpoint-core/internal/samplesource"
)

// Player is C6.
type Player struct {
	mu       sync.Mutex
	endpoint string
	backend  backend.Backend
	bus      *events.Bus
	log      *slog.Logger

	state    State
	disposed bool

	format   backend.Format
	deviceID string
	source   samplesource.Source
	handle   backend.Player

	volumePercent atomic.Int32
	muted         atomic.Bool
}

// New constructs a Player bound to be (not yet initialized). bus may be
// nil, in which case state/error events are simply not published.
func New(endpoint string, be backend.Backend, bus *events.Bus) *Player {
	p := &Player{
		endpoint: endpoint,
		backend:  be,
		bus:      bus,
		log:      logging.ForService("player"),
		state:    StateUninitialized,
	}
	p.volumePercent.Store(100)
	return p
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize must be called first, fixing this Player's audio format for
// its lifetime (spec §4.6).
func (p *Player) Initialize(format backend.Format, deviceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateUninitialized {
		return errors.Newf("player %q already initialized", p.endpoint).
			Component("player").Category(errors.CategoryState).Build()
	}
	if err := p.backend.ValidateDevice(context.Background(), deviceID); err != nil {
		return err
	}
	p.format = format
	p.deviceID = deviceID
	p.transitionLocked(StateStopped)
	return nil
}

// SetSampleSource must be called before Play (spec §4.6).
func (p *Player) SetSampleSource(src samplesource.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateUninitialized {
		return errors.Newf("player %q not initialized", p.endpoint).
			Component("player").Category(errors.CategoryState).Build()
	}
	p.source = src
	return nil
}

// Play starts (or resumes, from Paused) playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StatePlaying:
		return nil
	case StatePaused:
		if err := p.handle.Start(); err != nil {
			return p.failLocked(err)
		}
		p.transitionLocked(StatePlaying)
		return nil
	case StateStopped:
		if p.source == nil {
			return errors.Newf("player %q has no sample source", p.endpoint).
				Component("player").Category(errors.CategoryState).Build()
		}
		handle, err := p.backend.CreatePlayer(p.deviceID, p.format, p.deviceCallback)
		if err != nil {
			return p.failLocked(err)
		}
		if err := handle.Start(); err != nil {
			_ = handle.Close()
			return p.failLocked(err)
		}
		p.handle = handle
		p.transitionLocked(StatePlaying)
		return nil
	default:
		return errors.Newf("cannot play from state %s", p.state).
			Component("player").Category(errors.CategoryState).Build()
	}
}

// Pause suspends playback without releasing the device handle.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return errors.Newf("cannot pause from state %s", p.state).
			Component("player").Category(errors.CategoryState).Build()
	}
	if err := p.handle.Stop(); err != nil {
		return p.failLocked(err)
	}
	p.transitionLocked(StatePaused)
	return nil
}

// Stop halts playback and releases the device handle.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Player) stopLocked() error {
	if p.state != StatePlaying && p.state != StatePaused {
		return nil
	}
	if p.handle != nil {
		if err := p.handle.Close(); err != nil {
			p.log.Warn("error closing device handle", "endpoint", p.endpoint, "error", err)
		}
		p.handle = nil
	}
	p.transitionLocked(StateStopped)
	return nil
}

// SwitchDevice stops, disposes the stream, reopens with the same format
// and source on the new device, and resumes if playback was active
// (spec §4.6, scenario 4).
func (p *Player) SwitchDevice(deviceID string) error {
	p.mu.Lock()
	wasPlaying := p.state == StatePlaying
	p.mu.Unlock()

	if err := p.Stop(); err != nil {
		return err
	}

	p.mu.Lock()
	if err := p.backend.ValidateDevice(context.Background(), deviceID); err != nil {
		p.mu.Unlock()
		return err
	}
	p.deviceID = deviceID
	p.mu.Unlock()

	if wasPlaying {
		return p.Play()
	}
	return nil
}

// SetVolume sets the software volume percentage (0-100); callers are
// expected to have already clamped via internal/conf.
func (p *Player) SetVolume(percent int) {
	p.volumePercent.Store(int32(percent))
}

// SetMuted toggles software mute, independent of volume.
func (p *Player) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Dispose releases all resources. Idempotent (spec §4.6).
func (p *Player) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil
	}
	_ = p.stopLocked()
	p.disposed = true
	p.state = StateUninitialized
	return nil
}

// deviceCallback runs on the backend's real-time thread. Panics and
// sample-source errors are trapped and converted to ErrorOccurred events
// rather than crashing the device thread (spec §4.6).
func (p *Player) deviceCallback(out []float32, frames int) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in device callback", "endpoint", p.endpoint, "panic", r)
			for i := range out {
				out[i] = 0
			}
			p.publishError("panic in device callback")
		}
	}()

	p.source.Read(out)

	if p.muted.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	vol := float32(p.volumePercent.Load()) / 100
	if vol != 1 {
		for i := range out {
			out[i] *= vol
		}
	}
}

func (p *Player) publishError(msg string) {
	if p.bus == nil {
		return
	}
	p.bus.TryPublish(ErrorOccurred{Endpoint: p.endpoint, Message: msg})
}

// failLocked transitions to StateError and wraps err. Caller holds mu.
func (p *Player) failLocked(err error) error {
	p.transitionLocked(StateError)
	p.log.Error("player entering error state", "endpoint", p.endpoint, "error", err)
	return errors.Newf("player %q: %v", p.endpoint, err).
		Component("player").Category(errors.CategoryPlayback).Build()
}

// transitionLocked updates state and publishes StateChanged. Caller holds mu.
func (p *Player) transitionLocked(to State) {
	from := p.state
	p.state = to
	if p.bus != nil && from != to {
		p.bus.TryPublish(StateChanged{Endpoint: p.endpoint, From: from, To: to})
	}
}
