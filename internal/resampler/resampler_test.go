package resampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendspin/endpoint-core/internal/conf"
)

func sineInput(frames, channels int, freqHz, sampleRate float64, startPhase float64) []float32 {
	out := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		v := float32(math.Sin(startPhase + 2*math.Pi*freqHz*float64(i)/sampleRate))
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = v
		}
	}
	return out
}

func TestConverter_UnityRatioPassesApproximatelyThrough(t *testing.T) {
	c, err := New(conf.PresetMedium, 48000, 2, 480)
	require.NoError(t, err)

	input := sineInput(2000, 2, 440, 48000, 0)
	output := make([]float32, 2000*2)

	outLen, consumed, err := c.Process(input, output)
	require.NoError(t, err)
	assert.Greater(t, outLen, 0)
	assert.Greater(t, consumed, 0)
	assert.LessOrEqual(t, consumed, len(input)/2)
}

func TestConverter_RatioStaysWithinFastAcquisitionClamp(t *testing.T) {
	c, err := New(conf.PresetMedium, 48000, 2, 480)
	require.NoError(t, err)

	// Inject a drift far larger than the clamp to verify the ratio never
	// exceeds the active window.
	c.PushDrift(5000, true) // 5000ppm, deliberately pathological
	input := sineInput(4096, 2, 440, 48000, 0)
	output := make([]float32, 4096*2)

	for i := 0; i < 5; i++ {
		_, _, err := c.Process(input, output)
		require.NoError(t, err)
	}

	ratio := c.CurrentRatio()
	assert.InDelta(t, 1.0, ratio, fastClampPct+1e-6)
}

func TestConverter_RatioTightensToSteadyClampAfterFastWindow(t *testing.T) {
	c, err := New(conf.PresetSmall, 48000, 1, 480)
	require.NoError(t, err)

	c.PushDrift(5000, true)
	input := sineInput(480, 1, 440, 48000, 0)
	output := make([]float32, 480)

	for i := 0; i < c.callsPerFastWindow+20; i++ {
		_, _, err := c.Process(input, output)
		require.NoError(t, err)
	}

	ratio := c.CurrentRatio()
	assert.InDelta(t, 1.0, ratio, steadyClampPct+1e-6)
}

func TestConverter_SmallDriftConvergesNearExpectedRatio(t *testing.T) {
	c, err := New(conf.PresetMedium, 48000, 1, 480)
	require.NoError(t, err)

	const driftPPM = 50.0
	c.PushDrift(driftPPM, true)
	input := sineInput(480, 1, 440, 48000, 0)
	output := make([]float32, 480)

	for i := 0; i < 200; i++ {
		_, _, err := c.Process(input, output)
		require.NoError(t, err)
	}

	expected := 1 - driftPPM/1e6
	assert.InDelta(t, expected, c.CurrentRatio(), 0.0005)
}

func TestConverter_RejectsMismatchedChannelBuffers(t *testing.T) {
	c, err := New(conf.PresetMedium, 48000, 2, 480)
	require.NoError(t, err)

	_, _, err = c.Process(make([]float32, 5), make([]float32, 4))
	assert.Error(t, err)
}

func TestConverter_ResetPreservesDriftByDefault(t *testing.T) {
	c, err := New(conf.PresetMedium, 48000, 1, 480)
	require.NoError(t, err)

	c.PushDrift(80, true)
	input := sineInput(480, 1, 440, 48000, 0)
	output := make([]float32, 480)
	for i := 0; i < 50; i++ {
		_, _, _ = c.Process(input, output)
	}
	ratioBefore := c.CurrentRatio()

	c.Reset(true)
	assert.Equal(t, ratioBefore, c.CurrentRatio())
	assert.Equal(t, 0, c.leftoverLen)
}

func TestConverter_ResetWithoutPreserveDriftClearsRatio(t *testing.T) {
	c, err := New(conf.PresetMedium, 48000, 1, 480)
	require.NoError(t, err)

	c.PushDrift(80, true)
	input := sineInput(480, 1, 440, 48000, 0)
	output := make([]float32, 480)
	for i := 0; i < 50; i++ {
		_, _, _ = c.Process(input, output)
	}

	c.Reset(false)
	assert.Equal(t, 1.0, c.CurrentRatio())
}

func TestConverter_ProcessAllocatesNothingOnceWarm(t *testing.T) {
	c, err := New(conf.PresetMedium, 48000, 2, 480)
	require.NoError(t, err)

	input := sineInput(480, 2, 440, 48000, 0)
	output := make([]float32, 480*2)

	// Warm the leftover/combined scratch buffers up to their steady-state
	// size before measuring; growth itself is allowed to allocate.
	for i := 0; i < 16; i++ {
		_, _, err := c.Process(input, output)
		require.NoError(t, err)
	}

	allocs := testing.AllocsPerRun(50, func() {
		_, _, err := c.Process(input, output)
		require.NoError(t, err)
	})
	assert.Equal(t, float64(0), allocs, "Process must not allocate on the steady-state hot path")
}

func TestConverter_UnknownPresetRejected(t *testing.T) {
	_, err := New(conf.ResamplerPreset("unknown"), 48000, 2, 480)
	assert.Error(t, err)
}
