// env.go - environment variable binding and process-wide environment
// detection (spec §6: "/data/options.json or a non-empty SUPERVISOR_TOKEN").
package conf

import (
	"log/slog"
	"os"
	"sync"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// envBinding wires one config key to one environment variable.
type envBinding struct {
	ConfigKey string
	EnvVar    string
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "ENDPOINT_DEBUG"},
		{"main.name", "ENDPOINT_NAME"},
		{"http.listen", "ENDPOINT_HTTP_LISTEN"},
		{"telemetry.enabled", "ENDPOINT_TELEMETRY_ENABLED"},
		{"telemetry.dsn", "ENDPOINT_TELEMETRY_DSN"},
	}
}

func bindEnvVars(v *viper.Viper) error {
	for _, b := range getEnvBindings() {
		if err := v.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			return err
		}
	}
	return nil
}

// decodeStrict unmarshals v's settings into out, warning (not failing) on
// unknown keys and failing the whole decode on a type mismatch — the
// "unknown fields warn; invalid fields fail" split from spec §6.
func decodeStrict(v *viper.Viper, out *Settings) error {
	decoderOpt := func(c *mapstructure.DecoderConfig) {
		c.ErrorUnused = false // unknown fields warn, handled below
		c.WeaklyTypedInput = false
	}
	if err := v.Unmarshal(out, decoderOpt); err != nil {
		return err
	}

	strictOpt := func(c *mapstructure.DecoderConfig) { c.ErrorUnused = true }
	probe := &Settings{}
	if err := v.Unmarshal(probe, strictOpt); err != nil {
		// ErrorUnused failures are warnings per spec; log and continue.
		warnUnknownFields(err)
	}
	return nil
}

// warnFn logs through slog's default logger, which logging.Init installs.
var warnFn = func(msg string) { slog.Warn(msg) }

func warnUnknownFields(err error) {
	warnFn("config: unknown fields present: " + err.Error())
}

// Environment captures the two process-wide inputs that decide paths and
// audio backend defaults (spec §6). Computed once at startup; immutable.
type Environment struct {
	IsHomeAssistantAddon bool
	HasSupervisorToken   bool
}

var (
	envOnce   sync.Once
	detected  Environment
)

// DetectEnvironment queries the two process-wide inputs exactly once and
// caches the result for the process lifetime.
func DetectEnvironment() Environment {
	envOnce.Do(func() {
		_, statErr := os.Stat("/data/options.json")
		detected = Environment{
			IsHomeAssistantAddon: statErr == nil,
			HasSupervisorToken:   os.Getenv("SUPERVISOR_TOKEN") != "",
		}
	})
	return detected
}

// resetEnvironmentForTest clears the memoized detection; test-only.
func resetEnvironmentForTest() {
	envOnce = sync.Once{}
}
