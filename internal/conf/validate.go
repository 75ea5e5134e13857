package conf

import (
	"fmt"
	"strings"

	"github.com/sendspin/endpoint-core/internal/errors"
)

// invalidNameChars are the characters forbidden in a player name (spec §3:
// "excluding /\:*?\"<>|").
const invalidNameChars = `/\:*?"<>|`

// ValidateName enforces spec §3's naming rule: non-empty, <=64 chars, none
// of the reserved characters.
func ValidateName(name string) error {
	if name == "" {
		return errors.Newf("name must not be empty").
			Component("conf").Category(errors.CategoryValidation).Build()
	}
	if len(name) > 64 {
		return errors.Newf("name %q exceeds 64 characters", name).
			Component("conf").Category(errors.CategoryValidation).
			Context("length", len(name)).Build()
	}
	if strings.ContainsAny(name, invalidNameChars) {
		return errors.Newf("name %q contains a reserved character", name).
			Component("conf").Category(errors.CategoryValidation).
			Context("reserved", invalidNameChars).Build()
	}
	return nil
}

// ValidateVolume enforces the 0..100 clamp from spec §3/§8.
func ValidateVolume(v int) error {
	if v < 0 || v > 100 {
		return errors.Newf("volume %d out of range [0,100]", v).
			Component("conf").Category(errors.CategoryValidation).Build()
	}
	return nil
}

// ValidateOffsetMS enforces the -1000..1000 clamp from spec §3/§8.
func ValidateOffsetMS(ms int) error {
	if ms < -1000 || ms > 1000 {
		return errors.Newf("offset %dms out of range [-1000,1000]", ms).
			Component("conf").Category(errors.CategoryValidation).Build()
	}
	return nil
}

// ValidatePlayerConfiguration checks every field with a spec-defined range.
func ValidatePlayerConfiguration(p PlayerConfiguration) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := ValidateVolume(p.Volume); err != nil {
		return err
	}
	if err := ValidateOffsetMS(p.DelayOffsetMS); err != nil {
		return err
	}
	switch p.Backend {
	case "pulse", "alsa", "mock":
	default:
		return errors.Newf("unknown backend %q", p.Backend).
			Component("conf").Category(errors.CategoryValidation).Build()
	}
	switch p.SyncStrategy {
	case SyncStrategyASRC, SyncStrategyLegacy:
	default:
		return errors.Newf("unknown sync strategy %q", p.SyncStrategy).
			Component("conf").Category(errors.CategoryValidation).Build()
	}
	switch p.Preset {
	case PresetLarge, PresetMedium, PresetSmall:
	default:
		return errors.Newf("unknown resampler preset %q", p.Preset).
			Component("conf").Category(errors.CategoryValidation).Build()
	}
	return nil
}

// fmtName is a tiny helper kept for parity with the teacher's
// message-formatting style in validation errors.
func fmtName(name string) string { return fmt.Sprintf("%q", name) }
