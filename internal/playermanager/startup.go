// startup.go implements the dependency ordering spec §4.7 requires before
// autostarting players: restore card profiles, then create custom sinks,
// then autostart. Both steps talk to the host audio stack via narrow
// collaborator interfaces so the manager itself stays untestable-without-
// a-sound-card-free: tests inject stub implementations, production wiring
// installs the exec.CommandContext-backed ones below.
package playermanager

import (
	"context"
	"os/exec"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/errors"
	"github.com/sendspin/endpoint-core/internal/logging"
)

// CardProfileRestorer restores ALSA card profiles (e.g. surround 7.1) so
// sinks subsequently created advertise the right channel count (spec
// §4.7: "violating this order yields sinks with the wrong channel map").
type CardProfileRestorer interface {
	RestoreProfiles(ctx context.Context) error
}

// CustomSinkCreator creates the remap/combine sinks a roster of players
// needs before any of them autostart.
type CustomSinkCreator interface {
	CreateSinks(ctx context.Context, players []conf.PlayerConfiguration) error
}

// noopCardProfileRestorer is used when the host has no card profiles to
// manage (e.g. the Mock backend's test environment).
type noopCardProfileRestorer struct{}

func (noopCardProfileRestorer) RestoreProfiles(ctx context.Context) error { return nil }

// noopCustomSinkCreator mirrors noopCardProfileRestorer for sink creation.
type noopCustomSinkCreator struct{}

func (noopCustomSinkCreator) CreateSinks(ctx context.Context, players []conf.PlayerConfiguration) error {
	return nil
}

// pactlCardProfileRestorer shells out to pactl to reapply each card's last
// known profile, grounded on the teacher's exec.CommandContext idiom for
// driving external tools (e.g. its ffmpeg process manager).
type pactlCardProfileRestorer struct {
	profiles map[string]string // card name -> profile name
}

// NewPactlCardProfileRestorer builds a restorer for the given card->profile
// mapping (typically sourced from the YAML config's card section).
func NewPactlCardProfileRestorer(profiles map[string]string) CardProfileRestorer {
	return &pactlCardProfileRestorer{profiles: profiles}
}

func (r *pactlCardProfileRestorer) RestoreProfiles(ctx context.Context) error {
	log := logging.ForService("playermanager")
	for card, profile := range r.profiles {
		cmd := exec.CommandContext(ctx, "pactl", "set-card-profile", card, profile)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Newf("restore profile %q on card %q: %v (%s)", profile, card, err, out).
				Component("playermanager").Category(errors.CategoryResource).Build()
		}
		log.Info("restored card profile", "card", card, "profile", profile)
	}
	return nil
}

// pactlCustomSinkCreator loads one module-remap-sink, via pactl
// load-module, for every configured player whose backend is "pulse" and
// that names a DeviceID. It creates no combine sinks.
type pactlCustomSinkCreator struct{}

// NewPactlCustomSinkCreator builds the pactl-backed sink creator.
func NewPactlCustomSinkCreator() CustomSinkCreator { return &pactlCustomSinkCreator{} }

func (c *pactlCustomSinkCreator) CreateSinks(ctx context.Context, players []conf.PlayerConfiguration) error {
	log := logging.ForService("playermanager")
	for _, p := range players {
		if p.Backend != "pulse" || p.DeviceID == "" {
			continue
		}
		args := []string{"load-module", "module-remap-sink",
			"sink_name=" + sinkNameFor(p.Name),
			"master=" + p.DeviceID,
			"channels=2",
		}
		cmd := exec.CommandContext(ctx, "pactl", args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Newf("create sink for %q: %v (%s)", p.Name, err, out).
				Component("playermanager").Category(errors.CategoryResource).Build()
		}
		log.Info("created custom sink", "player", p.Name, "sink", sinkNameFor(p.Name))
	}
	return nil
}

func sinkNameFor(playerName string) string { return "endpoint_" + playerName }
