// Package conf loads and validates the endpoint core's configuration: the
// process-wide Settings (logging, HTTP, environment) and the YAML-backed
// roster of PlayerConfiguration entries (spec §3, §6).
package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LogRotation selects how the file logger rotates (mirrors the teacher's
// Main.Log.Rotation knob).
type LogRotation string

const (
	RotationDaily  LogRotation = "daily"
	RotationWeekly LogRotation = "weekly"
	RotationSize   LogRotation = "size"
)

// LogConfig holds the file-logging settings loaded from config.
// internal/logging does not read them and writes no log file.
type LogConfig struct {
	Enabled  bool        `mapstructure:"enabled" yaml:"enabled"`
	Path     string      `mapstructure:"path" yaml:"path"`
	Rotation LogRotation `mapstructure:"rotation" yaml:"rotation"`
	MaxSize  int64       `mapstructure:"maxsize" yaml:"maxsize"`
}

// HTTPConfig controls the REST+WebSocket control plane (spec §6).
type HTTPConfig struct {
	Listen             string        `mapstructure:"listen" yaml:"listen"`
	StatusInterval     time.Duration `mapstructure:"statusinterval" yaml:"statusinterval"`
	LifecycleTimeout   time.Duration `mapstructure:"lifecycletimeout" yaml:"lifecycletimeout"`
}

// Settings is the process-wide configuration, independent of any one
// endpoint.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Main struct {
		Name string    `mapstructure:"name" yaml:"name"`
		Log  LogConfig `mapstructure:"log" yaml:"log"`
	} `mapstructure:"main" yaml:"main"`

	HTTP HTTPConfig `mapstructure:"http" yaml:"http"`

	Telemetry struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		DSN     string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"telemetry" yaml:"telemetry"`

	// Players is the single YAML mapping from endpoint name to
	// configuration described in spec §6.
	Players map[string]PlayerConfiguration `mapstructure:"players" yaml:"players"`

	// Cards maps an ALSA card name to the profile NewPactlCardProfileRestorer
	// should reapply on startup (spec §4.7's "restore card profiles" step).
	// Also the source enumerated by GET /api/cards.
	Cards map[string]string `mapstructure:"cards" yaml:"cards"`
}

// SyncStrategy is the explicit per-player choice between the ASRC and
// legacy drop/insert correction paths (Open Question (b), §9).
type SyncStrategy string

const (
	SyncStrategyASRC   SyncStrategy = "asrc"
	SyncStrategyLegacy SyncStrategy = "legacy"
)

// LegacyBlend selects the 3-point weighted blend used by the legacy
// correction path (Open Question (c), §9).
type LegacyBlend string

const (
	LegacyBlendDefault  LegacyBlend = "default"  // {0.25, 0.5, 0.25}
	LegacyBlendGaussian LegacyBlend = "gaussian" // {0.2, 0.6, 0.2}
)

// ResamplerPreset selects a polyphase bank size (spec §4.4).
type ResamplerPreset string

const (
	PresetLarge  ResamplerPreset = "128x48"
	PresetMedium ResamplerPreset = "64x32"
	PresetSmall  ResamplerPreset = "32x24"
)

// PlayerConfiguration is one named endpoint's persisted configuration
// (spec §3). Field names match the YAML keys lowercase.
type PlayerConfiguration struct {
	Name         string          `mapstructure:"-" yaml:"-"`
	ServerEndpoint string        `mapstructure:"serverendpoint" yaml:"serverendpoint"`
	DeviceID     string          `mapstructure:"deviceid" yaml:"deviceid"`
	Backend      string          `mapstructure:"backend" yaml:"backend"` // pulse|alsa|mock
	DelayOffsetMS int            `mapstructure:"delayoffsetms" yaml:"delayoffsetms"`
	Volume       int             `mapstructure:"volume" yaml:"volume"`
	Muted        bool            `mapstructure:"muted" yaml:"muted"`
	Autostart    bool            `mapstructure:"autostart" yaml:"autostart"`
	Group        string          `mapstructure:"group" yaml:"group"`
	SyncStrategy SyncStrategy    `mapstructure:"syncstrategy" yaml:"syncstrategy"`
	LegacyBlend  LegacyBlend     `mapstructure:"legacyblend" yaml:"legacyblend"`
	Preset       ResamplerPreset `mapstructure:"preset" yaml:"preset"`
}

// Defaults fills zero-valued optional fields the way Load does for a
// freshly created player (used by both Load and the player-manager Create
// path so the two never drift apart).
func (p *PlayerConfiguration) Defaults() {
	if p.Backend == "" {
		p.Backend = "mock"
	}
	if p.Volume == 0 {
		p.Volume = 100
	}
	if p.SyncStrategy == "" {
		p.SyncStrategy = SyncStrategyASRC
	}
	if p.LegacyBlend == "" {
		p.LegacyBlend = LegacyBlendDefault
	}
	if p.Preset == "" {
		p.Preset = PresetMedium
	}
}

// DefaultSettings returns the Settings used when no config file exists.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.Main.Name = "endpoint-core"
	s.Main.Log.Rotation = RotationSize
	s.Main.Log.MaxSize = 10 * 1024 * 1024
	s.HTTP.Listen = ":8080"
	s.HTTP.StatusInterval = 2 * time.Second
	s.HTTP.LifecycleTimeout = 5 * time.Second
	s.Players = make(map[string]PlayerConfiguration)
	s.Cards = make(map[string]string)
	return s
}

// Load reads configPath (or the default search paths if empty) into a
// Settings value via viper. Unknown fields warn (via viper's default
// decoder behavior is strict, so it's enforced in decodeStrict below);
// invalid field values fail the whole load (spec §6: "invalid fields fail
// the whole load ... process starts with an empty roster").
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/endpoint-core")
	}

	settings := DefaultSettings()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return settings, nil
		}
		return emptyRosterSettings(), fmt.Errorf("reading config: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return emptyRosterSettings(), fmt.Errorf("binding environment: %w", err)
	}

	if err := decodeStrict(v, settings); err != nil {
		return emptyRosterSettings(), fmt.Errorf("decoding config: %w", err)
	}

	for name, p := range settings.Players {
		p.Name = name
		p.Defaults()
		if err := ValidatePlayerConfiguration(p); err != nil {
			return emptyRosterSettings(), fmt.Errorf("player %q: %w", name, err)
		}
		settings.Players[name] = p
	}

	return settings, nil
}

// emptyRosterSettings is what the process starts with when config load
// fails validation — defaults with a guaranteed-empty player roster,
// matching spec §6's "the process starts with an empty roster".
func emptyRosterSettings() *Settings {
	s := DefaultSettings()
	s.Players = make(map[string]PlayerConfiguration)
	return s
}
