package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("kitchen main"))
	assert.Error(t, ValidateName("kitchen/main"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName(string(make([]byte, 65))))
}

func TestValidateVolumeAndOffsetClamp(t *testing.T) {
	assert.NoError(t, ValidateVolume(0))
	assert.NoError(t, ValidateVolume(100))
	assert.Error(t, ValidateVolume(101))
	assert.Error(t, ValidateVolume(-1))

	assert.NoError(t, ValidateOffsetMS(-1000))
	assert.NoError(t, ValidateOffsetMS(1000))
	assert.Error(t, ValidateOffsetMS(1001))
	assert.Error(t, ValidateOffsetMS(-1001))
}

func TestPlayerConfiguration_Defaults(t *testing.T) {
	p := PlayerConfiguration{}
	p.Defaults()
	assert.Equal(t, "mock", p.Backend)
	assert.Equal(t, 100, p.Volume)
	assert.Equal(t, SyncStrategyASRC, p.SyncStrategy)
	assert.Equal(t, LegacyBlendDefault, p.LegacyBlend)
	assert.Equal(t, PresetMedium, p.Preset)
}

func TestLoad_MissingFileReturnsDefaultsWithEmptyRoster(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Empty(t, settings.Players)
}

func TestLoad_InvalidPlayerFailsWholeLoadWithEmptyRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	const badYAML = `
players:
  kitchen/main:
    volume: 50
`
	require.NoError(t, os.WriteFile(path, []byte(badYAML), 0o644))

	settings, err := Load(path)
	require.Error(t, err)
	assert.Empty(t, settings.Players)
}

func TestSaveYAML_RoundTripPreservesComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	const initial = `# top level comment
debug: false
players:
  kitchen: # kitchen comment
    volume: 50
    backend: mock
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)

	p := settings.Players["kitchen"]
	p.Volume = 75
	settings.Players["kitchen"] = p

	require.NoError(t, SaveYAML(path, settings))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(out), "top level comment")
}

func TestDetectEnvironment_DefaultsFalseWithoutSignals(t *testing.T) {
	resetEnvironmentForTest()
	os.Unsetenv("SUPERVISOR_TOKEN")
	env := DetectEnvironment()
	assert.False(t, env.HasSupervisorToken)
}
