package api

import (
	"time"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/playermanager"
)

// PlayerRequest is the JSON body accepted by POST/PUT /api/players(/{name}).
// Kept distinct from conf.PlayerConfiguration so the wire format (snake_case
// JSON) never leaks into the YAML-backed config model.
type PlayerRequest struct {
	Name          string `json:"name"`
	ServerEndpoint string `json:"server_endpoint"`
	DeviceID      string `json:"device_id"`
	Backend       string `json:"backend"`
	DelayOffsetMS int    `json:"delay_offset_ms"`
	Volume        int    `json:"volume"`
	Muted         bool   `json:"muted"`
	Autostart     bool   `json:"autostart"`
	Group         string `json:"group"`
	SyncStrategy  string `json:"sync_strategy"`
	LegacyBlend   string `json:"legacy_blend"`
	Preset        string `json:"preset"`
}

func (r PlayerRequest) toConfig() conf.PlayerConfiguration {
	return conf.PlayerConfiguration{
		Name:           r.Name,
		ServerEndpoint: r.ServerEndpoint,
		DeviceID:       r.DeviceID,
		Backend:        r.Backend,
		DelayOffsetMS:  r.DelayOffsetMS,
		Volume:         r.Volume,
		Muted:          r.Muted,
		Autostart:      r.Autostart,
		Group:          r.Group,
		SyncStrategy:   conf.SyncStrategy(r.SyncStrategy),
		LegacyBlend:    conf.LegacyBlend(r.LegacyBlend),
		Preset:         conf.ResamplerPreset(r.Preset),
	}
}

// PlayerResponse is the JSON shape returned for one endpoint.
type PlayerResponse struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	ServerEndpoint   string    `json:"server_endpoint"`
	DeviceID         string    `json:"device_id"`
	Backend          string    `json:"backend"`
	DelayOffsetMS    int       `json:"delay_offset_ms"`
	Volume           int       `json:"volume"`
	Muted            bool      `json:"muted"`
	Autostart        bool      `json:"autostart"`
	Group            string    `json:"group"`
	SyncStrategy     string    `json:"sync_strategy"`
	LegacyBlend      string    `json:"legacy_blend"`
	Preset           string    `json:"preset"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

func fromSnapshot(snap playermanager.Snapshot) PlayerResponse {
	cfg := snap.Config
	return PlayerResponse{
		Name:             snap.Name,
		State:            snap.State.String(),
		ServerEndpoint:   cfg.ServerEndpoint,
		DeviceID:         cfg.DeviceID,
		Backend:          cfg.Backend,
		DelayOffsetMS:    cfg.DelayOffsetMS,
		Volume:           cfg.Volume,
		Muted:            cfg.Muted,
		Autostart:        cfg.Autostart,
		Group:            cfg.Group,
		SyncStrategy:     string(cfg.SyncStrategy),
		LegacyBlend:      string(cfg.LegacyBlend),
		Preset:           string(cfg.Preset),
		LastTransitionAt: snap.LastTransitionAt,
	}
}

func fromSnapshots(snaps []playermanager.Snapshot) []PlayerResponse {
	out := make([]PlayerResponse, len(snaps))
	for i, s := range snaps {
		out[i] = fromSnapshot(s)
	}
	return out
}

// VolumeRequest is the JSON body for POST /api/players/{name}/volume.
type VolumeRequest struct {
	Volume int `json:"volume"`
}

// OffsetRequest is the JSON body for PUT /api/players/{name}/offset.
type OffsetRequest struct {
	DelayMS int `json:"delay_ms"`
}

// MuteRequest is the JSON body for PUT /api/players/{name}/mute.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// DeviceResponse is one enumerable playback device (GET /api/devices).
type DeviceResponse struct {
	Backend   string `json:"backend"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// ProviderResponse names one registered backend (GET /api/providers).
type ProviderResponse struct {
	Name string `json:"name"`
}

// CardResponse is one configured ALSA card/profile pair (GET /api/cards).
type CardResponse struct {
	Card    string `json:"card"`
	Profile string `json:"profile"`
}
