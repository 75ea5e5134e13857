// Package backend defines the device backend abstraction C6 delegates
// device enumeration, validation and stream creation to (spec §4.6): one
// of PulseAudio, ALSA-direct or Mock.
package backend

import "context"

// DeviceInfo describes one enumerable playback device.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// CapabilityTag explains, for the UI, which source a device's advertised
// capabilities came from (spec §4.6).
type CapabilityTag string

const (
	TagPulseAudioMax CapabilityTag = "PulseAudioMax"
	TagAlsa          CapabilityTag = "Alsa"
)

// Capabilities is a device's advertised channel/rate support.
type Capabilities struct {
	MaxChannels    int
	SupportedRates []int
	Tag            CapabilityTag
}

// Format is the fixed PCM format a Player is opened with.
type Format struct {
	SampleRate int
	Channels   int
}

// SampleCallback is invoked by a Player on its real-time device thread to
// fill one device period. Implementations must treat it as non-blocking.
type SampleCallback func(out []float32, frames int)

// Player is a single open playback stream.
type Player interface {
	Start() error
	Stop() error
	Close() error
}

// Backend is the device abstraction every variant (Pulse, AlsaDirect,
// Mock) implements identically (spec §4.6).
type Backend interface {
	Name() string
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
	DefaultDevice(ctx context.Context) (DeviceInfo, error)
	ValidateDevice(ctx context.Context, id string) error
	Capabilities(ctx context.Context, id string) (Capabilities, error)
	CreatePlayer(id string, format Format, cb SampleCallback) (Player, error)
	SetHardwareVolume(id string, volumePercent int) error
}
