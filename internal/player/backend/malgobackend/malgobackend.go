// Package malgobackend implements the PulseAudio and ALSA-direct device
// backends on top of gen2brain/malgo (spec §4.6), generalized from the
// teacher's capture-side malgo device wrapper to a playback-side backend.
package malgobackend

import (
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/sendspin/endpoint-core/internal/errors"
	"github.com/sendspin/endpoint-core/internal/player/backend"
)

// Variant selects which of the two malgo-backed backends this instance is
// (spec §4.6 names them PulseAudio and ALSA-direct).
type Variant int

const (
	VariantPulse Variant = iota
	VariantAlsaDirect
)

// Backend is the PulseAudio/ALSA-direct variant of backend.Backend.
type Backend struct {
	variant Variant
}

// New constructs a malgo-backed Backend. variant picks which malgo
// backend hint and capability tag to use.
func New(variant Variant) *Backend {
	return &Backend{variant: variant}
}

func (b *Backend) Name() string {
	if b.variant == VariantPulse {
		return "pulse"
	}
	return "alsa"
}

func (b *Backend) malgoBackends() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		if b.variant == VariantPulse {
			return []malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa}
		}
		return []malgo.Backend{malgo.BackendAlsa}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	default:
		return []malgo.Backend{malgo.BackendNull}
	}
}

func (b *Backend) withContext(fn func(ctx *malgo.AllocatedContext) error) error {
	ctx, err := malgo.InitContext(b.malgoBackends(), malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.Newf("init malgo context: %v", err).
			Component("player_backend_malgo").Category(errors.CategoryDeviceBackend).Build()
	}
	defer func() { _ = ctx.Uninit() }()
	return fn(ctx)
}

func (b *Backend) ListDevices(ctx context.Context) ([]backend.DeviceInfo, error) {
	var out []backend.DeviceInfo
	err := b.withContext(func(mctx *malgo.AllocatedContext) error {
		infos, err := mctx.Devices(malgo.Playback)
		if err != nil {
			return errors.Newf("enumerate playback devices: %v", err).
				Component("player_backend_malgo").Category(errors.CategoryDeviceBackend).Build()
		}
		for i := range infos {
			out = append(out, backend.DeviceInfo{
				ID:        infos[i].ID.String(),
				Name:      infos[i].Name(),
				IsDefault: infos[i].IsDefault == 1,
			})
		}
		return nil
	})
	return out, err
}

func (b *Backend) DefaultDevice(ctx context.Context) (backend.DeviceInfo, error) {
	devices, err := b.ListDevices(ctx)
	if err != nil {
		return backend.DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return backend.DeviceInfo{}, errors.Newf("no playback devices found").
		Component("player_backend_malgo").Category(errors.CategoryNotFound).Build()
}

func (b *Backend) ValidateDevice(ctx context.Context, id string) error {
	devices, err := b.ListDevices(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.ID == id {
			return nil
		}
	}
	return errors.Newf("device %q not found", id).
		Component("player_backend_malgo").Category(errors.CategoryNotFound).Build()
}

func (b *Backend) Capabilities(ctx context.Context, id string) (backend.Capabilities, error) {
	if b.variant == VariantPulse {
		return backend.PulseMaxCapabilities(), nil
	}
	cardPath := filepath.Join("/proc/asound", "card"+id)
	return backend.ProbeALSACapabilities(cardPath), nil
}

func (b *Backend) SetHardwareVolume(id string, volumePercent int) error {
	// malgo does not expose a hardware mixer API directly; volume is
	// applied in software by the player callback (spec §4.6). This is a
	// deliberate no-op kept to satisfy the Backend contract identically
	// across variants.
	return nil
}

// CreatePlayer opens a playback stream on the named device and drives cb
// on malgo's real-time data callback.
func (b *Backend) CreatePlayer(id string, format backend.Format, cb backend.SampleCallback) (backend.Player, error) {
	ctx, err := malgo.InitContext(b.malgoBackends(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.Newf("init malgo context: %v", err).
			Component("player_backend_malgo").Category(errors.CategoryDeviceBackend).Build()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	scratch := make([]float32, 0, 4096)

	dataCallback := func(outputSamples, _ []byte, frameCount uint32) {
		needed := int(frameCount) * format.Channels
		if cap(scratch) < needed {
			scratch = make([]float32, needed)
		}
		scratch = scratch[:needed]
		cb(scratch, int(frameCount))
		encodeS16(outputSamples, scratch)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: dataCallback})
	if err != nil {
		_ = ctx.Uninit()
		return nil, errors.Newf("init playback device %q: %v", id, err).
			Component("player_backend_malgo").Category(errors.CategoryDeviceBackend).Build()
	}

	return &player{ctx: ctx, device: device}, nil
}

// encodeS16 converts float32 [-1,1] samples into little-endian signed
// 16-bit PCM, matching deviceConfig.Playback.Format above.
func encodeS16(dst []byte, src []float32) {
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
	}
}

type player struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	mu     sync.Mutex
}

func (p *player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.device.Start(); err != nil {
		return errors.Newf("start device: %v", err).
			Component("player_backend_malgo").Category(errors.CategoryDeviceBackend).Build()
	}
	return nil
}

func (p *player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.device.Stop(); err != nil {
		return errors.Newf("stop device: %v", err).
			Component("player_backend_malgo").Category(errors.CategoryDeviceBackend).Build()
	}
	return nil
}

func (p *player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device.Uninit()
	return p.ctx.Uninit()
}
