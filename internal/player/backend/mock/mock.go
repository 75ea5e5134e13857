// Package mock implements the Mock device backend (spec §4.6/§9): an
// in-process, software-clocked player used by tests and as the backend
// ("mock") of players that name none, with optional WAV capture for diagnosing
// what the pipeline actually produced.
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sendspin/endpoint-core/internal/errors"
	"github.com/sendspin/endpoint-core/internal/player/backend"
)

// Backend is the Mock variant of backend.Backend.
type Backend struct {
	mu          sync.Mutex
	devices     []backend.DeviceInfo
	volumes     map[string]int
	capturePath string // when set, every CreatePlayer's output is appended to a WAV file
}

// New creates a Mock backend exposing a single synthetic device, unless
// devices is non-empty in which case those are exposed instead (useful for
// exercising multi-device enumeration in tests).
func New(devices ...backend.DeviceInfo) *Backend {
	if len(devices) == 0 {
		devices = []backend.DeviceInfo{{ID: "mock-0", Name: "Mock Output", IsDefault: true}}
	}
	return &Backend{devices: devices, volumes: make(map[string]int)}
}

// WithWAVCapture enables writing every player's rendered output to path as
// a PCM WAV file, for offline inspection (spec §9's optional diagnostic
// capture).
func (b *Backend) WithWAVCapture(path string) *Backend {
	b.capturePath = path
	return b
}

func (b *Backend) Name() string { return "mock" }

func (b *Backend) ListDevices(ctx context.Context) ([]backend.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.DeviceInfo, len(b.devices))
	copy(out, b.devices)
	return out, nil
}

func (b *Backend) DefaultDevice(ctx context.Context) (backend.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.IsDefault {
			return d, nil
		}
	}
	if len(b.devices) > 0 {
		return b.devices[0], nil
	}
	return backend.DeviceInfo{}, errors.Newf("no mock devices configured").
		Component("player_backend_mock").Category(errors.CategoryNotFound).Build()
}

func (b *Backend) ValidateDevice(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.ID == id {
			return nil
		}
	}
	return errors.Newf("mock device %q not found", id).
		Component("player_backend_mock").Category(errors.CategoryNotFound).Build()
}

func (b *Backend) Capabilities(ctx context.Context, id string) (backend.Capabilities, error) {
	if err := b.ValidateDevice(ctx, id); err != nil {
		return backend.Capabilities{}, err
	}
	return backend.Capabilities{MaxChannels: 8, SupportedRates: []int{44100, 48000, 96000}, Tag: backend.TagAlsa}, nil
}

func (b *Backend) SetHardwareVolume(id string, volumePercent int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volumes[id] = volumePercent
	return nil
}

// CreatePlayer returns a software-clocked Player that invokes cb on a
// fixed-period ticker, simulating a real device callback thread.
func (b *Backend) CreatePlayer(id string, format backend.Format, cb backend.SampleCallback) (backend.Player, error) {
	if err := b.ValidateDevice(context.Background(), id); err != nil {
		return nil, err
	}

	const periodFrames = 480 // 10ms @ 48kHz-class rates, matches the teacher's default device period
	period := time.Duration(periodFrames) * time.Second / time.Duration(format.SampleRate)

	p := &player{
		format:   format,
		cb:       cb,
		period:   period,
		frames:   periodFrames,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if b.capturePath != "" {
		p.capturePath = b.capturePath
	}
	return p, nil
}

type player struct {
	format backend.Format
	cb     backend.SampleCallback
	period time.Duration
	frames int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	capturePath string
	captured    []float32
}

func (p *player) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.run()
	return nil
}

func (p *player) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	buf := make([]float32, p.frames*p.format.Channels)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.cb(buf, p.frames)
			if p.capturePath != "" {
				p.captured = append(p.captured, buf...)
			}
		}
	}
}

func (p *player) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()
	<-p.doneCh
	return p.flushCapture()
}

func (p *player) Close() error {
	return p.Stop()
}

// flushCapture writes any accumulated samples to capturePath as a 16-bit
// PCM WAV file, for offline inspection of what the mock device rendered.
func (p *player) flushCapture() error {
	if p.capturePath == "" || len(p.captured) == 0 {
		return nil
	}

	f, err := os.Create(p.capturePath)
	if err != nil {
		return errors.Newf("create capture file: %v", err).
			Component("player_backend_mock").Category(errors.CategoryResource).Build()
	}
	defer f.Close()

	enc := wav.NewEncoder(f, p.format.SampleRate, 16, p.format.Channels, 1)
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{SampleRate: p.format.SampleRate, NumChannels: p.format.Channels},
		Data:   make([]int, len(p.captured)),
	}
	for i, s := range p.captured {
		intBuf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(intBuf); err != nil {
		return errors.Newf("write capture: %v", err).
			Component("player_backend_mock").Category(errors.CategoryResource).Build()
	}
	return enc.Close()
}
