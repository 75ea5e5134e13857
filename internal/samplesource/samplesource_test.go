package samplesource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendspin/endpoint-core/internal/audiobuffer"
	"github.com/sendspin/endpoint-core/internal/clock"
	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/resampler"
)

func newTestBuffer(t *testing.T) *audiobuffer.Buffer {
	t.Helper()
	format := audiobuffer.AudioFormat{SampleRate: 48000, Channels: 2, Codec: "pcm_f32le"}
	buf, err := audiobuffer.New(format, 500, nil, "kitchen")
	require.NoError(t, err)
	return buf
}

func writeTone(t *testing.T, buf *audiobuffer.Buffer, frames int, tsUS, nowUS int64) {
	t.Helper()
	samples := make([]float32, frames*2)
	for i := range samples {
		samples[i] = 0.5
	}
	format := audiobuffer.AudioFormat{SampleRate: 48000, Channels: 2, Codec: "pcm_f32le"}
	require.NoError(t, buf.Write(format, samples, tsUS, nowUS))
}

func TestASRCSource_FillsSilenceWhenBufferEmpty(t *testing.T) {
	buf := newTestBuffer(t)
	conv, err := resampler.New(conf.PresetMedium, 48000, 2, 480)
	require.NoError(t, err)

	fc := clock.NewFake(0)
	src := NewASRCSource(buf, conv, nil, 2, fc)

	out := make([]float32, 480*2)
	n := src.Read(out)
	assert.Equal(t, 0, n)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestASRCSource_ProducesOutputOnceBufferPrimed(t *testing.T) {
	buf := newTestBuffer(t)
	conv, err := resampler.New(conf.PresetMedium, 48000, 2, 480)
	require.NoError(t, err)

	fc := clock.NewFake(0)
	writeTone(t, buf, 4000, 0, 0)

	src := NewASRCSource(buf, conv, nil, 2, fc)
	out := make([]float32, 480*2)
	n := src.Read(out)
	assert.Greater(t, n, 0)
}

func TestASRCSource_StatsTrackTotalReads(t *testing.T) {
	buf := newTestBuffer(t)
	conv, err := resampler.New(conf.PresetMedium, 48000, 2, 480)
	require.NoError(t, err)

	fc := clock.NewFake(0)
	src := NewASRCSource(buf, conv, nil, 2, fc)

	out := make([]float32, 480*2)
	src.Read(out)
	src.Read(out)
	assert.Equal(t, uint64(2), src.Stats().TotalReads)
}

func TestLegacySource_StaysIdleUnderSmallError(t *testing.T) {
	buf := newTestBuffer(t)
	fc := clock.NewFake(0)
	writeTone(t, buf, 48000, 0, 0)

	src := NewLegacySource(buf, conf.LegacyBlendDefault, 2, fc)
	out := make([]float32, 480*2)
	src.Read(out)
	assert.Equal(t, StateIdle, src.State())
}

func TestLegacySource_NoDirectDroppingToInsertingTransition(t *testing.T) {
	src := &LegacySource{state: StateDropping}
	src.updateState(-20_000) // far beyond entry threshold on the opposite side
	assert.Equal(t, StateIdle, src.State(), "overshoot must land on Idle, never jump straight to Inserting")
}

func TestLegacySource_EntersDroppingPastEntryThreshold(t *testing.T) {
	src := &LegacySource{state: StateIdle}
	src.updateState(hysteresisEntryUS + 1)
	assert.Equal(t, StateDropping, src.State())
}

func TestLegacySource_EntersInsertingPastEntryThreshold(t *testing.T) {
	src := &LegacySource{state: StateIdle}
	src.updateState(-hysteresisEntryUS - 1)
	assert.Equal(t, StateInserting, src.State())
}

func TestLegacySource_ExitsDroppingOnlyBelowExitThreshold(t *testing.T) {
	src := &LegacySource{state: StateDropping}
	src.updateState(hysteresisExitUS + 1000) // still above exit threshold
	assert.Equal(t, StateDropping, src.State())

	src.updateState(hysteresisExitUS - 1000)
	assert.Equal(t, StateIdle, src.State())
}

func TestLegacySource_UnknownBlendFallsBackToDefault(t *testing.T) {
	buf := newTestBuffer(t)
	fc := clock.NewFake(0)
	src := NewLegacySource(buf, conf.LegacyBlend("bogus"), 2, fc)
	assert.Equal(t, blendWeights[conf.LegacyBlendDefault], src.weights)
}
