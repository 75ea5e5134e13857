// Package resampler implements C4, the Adaptive Sample-Rate Converter: a
// polyphase SINC bank whose output/input ratio is steered by a two-term
// control law driven by C3's drift estimate and C2's sync error (spec §4.4).
package resampler

import (
	"sync"

	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/errors"
)

const (
	tauOffsetUS    = 60_000_000 // 60s, expressed in microseconds
	offsetDeadband = 30_000     // 30ms, spec §4.4
	controlAlpha   = 0.02
	fastClampPct   = 0.02
	steadyClampPct = 0.005
	fastAcqSeconds = 10
)

// Converter is C4. One Converter serves one endpoint's audio pipeline and
// is rebuilt whenever AudioFormat changes.
type Converter struct {
	mu sync.Mutex

	shape    bankShape
	bank     [][]float64
	bankF32  [][]float32
	useSIMD  bool
	channels int

	callsPerFastWindow int
	callsSinceReset    int

	driftPPM      float64
	driftReliable bool
	syncErrorUS   float64

	currentRatio float64

	// leftoverBuf holds interleaved samples carried across Process calls,
	// valid up to leftoverLen. combinedBuf is scratch into which leftover
	// and the new input are copied for the convolution pass. Both are
	// owned buffers grown geometrically (never shrunk) so steady-state
	// Process calls never allocate (spec §4.4, §5).
	leftoverBuf []float32
	leftoverLen int
	combinedBuf []float32
	pos         float64 // fractional read position into leftover+input

	sampleScratch    []float64 // reused per-channel gather buffer for dotProduct
	sampleScratchF32 []float32 // reused float32 mirror for the SIMD dot product
}

// New builds a Converter for the given preset, sample rate and channel
// count. framesPerCallHint is the typical per-call output frame count,
// used only to scale the fast-acquisition window to approximately 10s of
// calls (spec §4.4).
func New(preset conf.ResamplerPreset, sampleRate, channels, framesPerCallHint int) (*Converter, error) {
	shape, ok := presetShapes[preset]
	if !ok {
		return nil, errors.Newf("unknown resampler preset %q", preset).
			Component("resampler").Category(errors.CategoryValidation).Build()
	}
	if channels < 1 {
		return nil, errors.Newf("channels must be >= 1, got %d", channels).
			Component("resampler").Category(errors.CategoryValidation).Build()
	}
	if framesPerCallHint <= 0 {
		framesPerCallHint = sampleRate / 100 // default to a 10ms callback period
	}

	callsPerFastWindow := (fastAcqSeconds * sampleRate) / framesPerCallHint
	if callsPerFastWindow < 1 {
		callsPerFastWindow = 1
	}

	bank := buildBank(shape)
	return &Converter{
		shape:              shape,
		bank:               bank,
		bankF32:            bankToFloat32(bank),
		useSIMD:            useSIMDDotProduct(),
		channels:           channels,
		callsPerFastWindow: callsPerFastWindow,
		currentRatio:       1.0,
		sampleScratch:      make([]float64, shape.Taps),
		sampleScratchF32:   make([]float32, shape.Taps),
	}, nil
}

// PushDrift feeds C3's latest drift estimate.
func (c *Converter) PushDrift(driftPPM float64, reliable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driftPPM = driftPPM
	c.driftReliable = reliable
}

// PushSyncError feeds C2's latest smoothed sync error in microseconds.
func (c *Converter) PushSyncError(syncErrorUS float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncErrorUS = syncErrorUS
}

// CurrentRatio returns the smoothed output/input ratio currently in
// effect.
func (c *Converter) CurrentRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRatio
}

// updateControlLaw runs the spec §4.4 two-term control law once per
// Process call. Caller holds mu.
func (c *Converter) updateControlLaw() {
	driftTerm := 0.0
	if c.driftReliable {
		driftTerm = -c.driftPPM / 1e6
	}

	offsetTerm := 0.0
	if c.syncErrorUS > offsetDeadband || c.syncErrorUS < -offsetDeadband {
		offsetTerm = -c.syncErrorUS / tauOffsetUS
	}

	target := 1 + driftTerm + offsetTerm

	maxDev := steadyClampPct
	if c.callsSinceReset < c.callsPerFastWindow {
		maxDev = fastClampPct
	}
	if target > 1+maxDev {
		target = 1 + maxDev
	} else if target < 1-maxDev {
		target = 1 - maxDev
	}

	c.currentRatio += controlAlpha * (target - c.currentRatio)
	c.callsSinceReset++
}

// Process converts interleaved input into interleaved output, filling as
// much of output as the available input (plus carried-over leftover)
// allows. It returns the number of interleaved output samples written
// (frames produced times channels) and the number of new input frames
// consumed from input (leftover frames are not
// counted as "consumed" again). Never blocks; never allocates once the
// Converter's internal buffers have grown to their working size.
func (c *Converter) Process(input []float32, output []float32) (outFrames, inputFramesConsumed int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channels <= 0 {
		return 0, 0, errors.Newf("resampler not initialized").
			Component("resampler").Category(errors.CategoryResampler).Build()
	}
	if len(input)%c.channels != 0 || len(output)%c.channels != 0 {
		return 0, 0, errors.Newf("buffer length not a multiple of channel count").
			Component("resampler").Category(errors.CategoryResampler).Build()
	}

	c.updateControlLaw()

	oldLeftoverLen := c.leftoverLen
	combinedLen := oldLeftoverLen + len(input)
	c.combinedBuf = growFloat32(c.combinedBuf, combinedLen)
	copy(c.combinedBuf[:oldLeftoverLen], c.leftoverBuf[:oldLeftoverLen])
	copy(c.combinedBuf[oldLeftoverLen:combinedLen], input)
	combined := c.combinedBuf[:combinedLen]

	availFrames := len(combined) / c.channels
	half := c.shape.Taps / 2

	outCap := len(output) / c.channels
	produced := 0
	pos := c.pos

	for produced < outCap {
		idx := int(pos)
		if idx+half >= availFrames {
			break
		}
		frac := pos - float64(idx)
		phase := int(frac * float64(c.shape.Phases))
		if phase >= c.shape.Phases {
			phase = c.shape.Phases - 1
		}
		base := idx - half + 1

		if c.useSIMD {
			tapsF32 := c.bankF32[phase]
			for ch := 0; ch < c.channels; ch++ {
				for k := 0; k < c.shape.Taps; k++ {
					sampleIdx := base + k
					if sampleIdx < 0 || sampleIdx >= availFrames {
						c.sampleScratchF32[k] = 0
						continue
					}
					c.sampleScratchF32[k] = combined[sampleIdx*c.channels+ch]
				}
				acc := simdDotProduct(c.sampleScratchF32, tapsF32)
				output[produced*c.channels+ch] = acc
			}
		} else {
			taps := c.bank[phase]
			for ch := 0; ch < c.channels; ch++ {
				for k := 0; k < c.shape.Taps; k++ {
					sampleIdx := base + k
					if sampleIdx < 0 || sampleIdx >= availFrames {
						c.sampleScratch[k] = 0
						continue
					}
					c.sampleScratch[k] = float64(combined[sampleIdx*c.channels+ch])
				}
				acc := scalarDotProduct(c.sampleScratch, taps)
				output[produced*c.channels+ch] = float32(acc)
			}
		}

		produced++
		pos += 1.0 / c.currentRatio
	}

	consumedIdx := int(pos) - half
	if consumedIdx < 0 {
		consumedIdx = 0
	}
	if consumedIdx > availFrames {
		consumedIdx = availFrames
	}

	tailStart := consumedIdx * c.channels
	tailLen := len(combined) - tailStart
	c.leftoverBuf = growFloat32(c.leftoverBuf, tailLen)
	copy(c.leftoverBuf[:tailLen], combined[tailStart:])
	c.leftoverLen = tailLen
	c.pos = pos - float64(consumedIdx)

	oldLeftoverFrames := oldLeftoverLen / c.channels
	if consumedIdx > oldLeftoverFrames {
		inputFramesConsumed = consumedIdx - oldLeftoverFrames
	}

	return produced * c.channels, inputFramesConsumed, nil
}

// Reset clears the Converter's carried state. When preserveDrift is true,
// the last pushed drift estimate and current ratio are kept so playback
// does not audibly re-pitch; the leftover buffer and fractional position
// are always cleared since they reference samples from before the
// discontinuity. C8's reanchor does not call Reset.
func (c *Converter) Reset(preserveDrift bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Only the logical length is cleared; the backing array is kept so a
	// post-reanchor Process call doesn't have to regrow it from scratch.
	c.leftoverLen = 0
	c.pos = 0
	c.callsSinceReset = 0
	c.syncErrorUS = 0

	if !preserveDrift {
		c.driftPPM = 0
		c.driftReliable = false
		c.currentRatio = 1.0
	}
}

// growFloat32 returns buf resized to exactly need elements, reusing the
// existing backing array when it already has enough capacity and growing
// geometrically (doubling) otherwise. Used for Converter's leftover/combined
// scratch so steady-state Process calls make no allocations (spec §4.4).
func growFloat32(buf []float32, need int) []float32 {
	if cap(buf) >= need {
		return buf[:need]
	}
	newCap := cap(buf) * 2
	if newCap < need {
		newCap = need
	}
	grown := make([]float32, newCap)
	copy(grown, buf)
	return grown[:need]
}

// bankToFloat32 converts the polyphase bank to float32 once, outside the
// callback, for the SIMD dot-product path (spec §4.4).
func bankToFloat32(bank [][]float64) [][]float32 {
	out := make([][]float32, len(bank))
	for i, taps := range bank {
		f32 := make([]float32, len(taps))
		for k, v := range taps {
			f32[k] = float32(v)
		}
		out[i] = f32
	}
	return out
}
