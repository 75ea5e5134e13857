package samplesource

import (
	"log/slog"
	"sync/atomic"

	"github.com/sendspin/endpoint-core/internal/audiobuffer"
	"github.com/sendspin/endpoint-core/internal/clock"
	"github.com/sendspin/endpoint-core/internal/conf"
	"github.com/sendspin/endpoint-core/internal/logging"
)

// HysteresisState is the legacy correction path's 3-state machine
// (spec §4.5).
type HysteresisState int

const (
	StateIdle HysteresisState = iota
	StateDropping
	StateInserting
)

func (s HysteresisState) String() string {
	switch s {
	case StateDropping:
		return "dropping"
	case StateInserting:
		return "inserting"
	default:
		return "idle"
	}
}

const (
	hysteresisEntryUS = 15_000 // spec §4.5: entry 15ms
	hysteresisExitUS  = 3_000  // spec §4.5: exit 3ms
)

var blendWeights = map[conf.LegacyBlend][3]float32{
	conf.LegacyBlendDefault:  {0.25, 0.5, 0.25},
	conf.LegacyBlendGaussian: {0.2, 0.6, 0.2},
}

// LegacySource implements the frame-drop-and-insert correction strategy
// used where resampling is disallowed (spec §4.5).
type LegacySource struct {
	buffer   *audiobuffer.Buffer
	clock    clock.Clock
	channels int
	weights  [3]float32

	state HysteresisState

	scratch []float32

	totalReads      atomic.Uint64
	zeroReads       atomic.Uint64
	underrunFrames  atomic.Uint64
	firstSampleSeen atomic.Bool
	limiter         diagnosticLimiter

	log *slog.Logger
}

// NewLegacySource wires C2 directly to the device buffer using the
// 3-point weighted blend named by blend.
func NewLegacySource(buf *audiobuffer.Buffer, blend conf.LegacyBlend, channels int, clk clock.Clock) *LegacySource {
	weights, ok := blendWeights[blend]
	if !ok {
		weights = blendWeights[conf.LegacyBlendDefault]
	}
	return &LegacySource{
		buffer:   buf,
		clock:    clockOrDefault(clk),
		channels: channels,
		weights:  weights,
		scratch:  make([]float32, 4096*channels),
	}
}

// State returns the current hysteresis state, for diagnostics/tests.
func (s *LegacySource) State() HysteresisState { return s.state }

// updateState advances the hysteresis machine from a fresh sync-error
// sample. Direct Dropping<->Inserting transitions are forbidden: an
// overshoot from either active state always lands on Idle first, and a
// subsequent call may then re-enter the opposite state.
func (s *LegacySource) updateState(syncErrorUS float64) {
	switch s.state {
	case StateIdle:
		if syncErrorUS > hysteresisEntryUS {
			s.state = StateDropping
		} else if syncErrorUS < -hysteresisEntryUS {
			s.state = StateInserting
		}
	case StateDropping:
		if syncErrorUS < hysteresisExitUS {
			s.state = StateIdle
		}
	case StateInserting:
		if syncErrorUS > -hysteresisExitUS {
			s.state = StateIdle
		}
	}
}

// Read implements Source. In Dropping it fetches one extra frame of
// headroom and discards one frame; in Inserting it fetches one frame fewer
// and repeats the last fetched frame. The s.weights blend is written only
// into the discarded frame, so neither path smooths the frames it outputs.
func (s *LegacySource) Read(out []float32) int {
	nowUS := s.clock.NowUS()
	s.totalReads.Add(1)

	outFrames := len(out) / s.channels
	syncErrorUS := s.buffer.SmoothedSyncErrorUS()
	s.updateState(syncErrorUS)

	switch s.state {
	case StateDropping:
		return s.readDropping(out, outFrames, nowUS)
	case StateInserting:
		return s.readInserting(out, outFrames, nowUS)
	default:
		return s.readPlain(out, nowUS)
	}
}

func (s *LegacySource) readPlain(out []float32, nowUS int64) int {
	n := s.buffer.ReadRaw(out, nowUS)
	s.trackShortfall(n, len(out), nowUS)
	return n
}

// readDropping fetches one extra frame and discards the middle frame.
// blendFrame writes its 3-point blend into that discarded frame, so the
// seam left in the output is not smoothed.
func (s *LegacySource) readDropping(out []float32, outFrames int, nowUS int64) int {
	needed := (outFrames + 1) * s.channels
	if cap(s.scratch) < needed {
		s.scratch = make([]float32, needed*2)
	}
	scratch := s.scratch[:needed]

	n := s.buffer.ReadRaw(scratch, nowUS)
	availFrames := n / s.channels
	if availFrames <= 1 {
		copy(out, scratch[:n])
		s.trackShortfall(n, len(out), nowUS)
		return n
	}

	dropAt := availFrames / 2
	blendFrame(scratch, dropAt-1, dropAt, dropAt+1, s.channels, s.weights)

	copy(out, scratch[:dropAt*s.channels])
	copy(out[dropAt*s.channels:], scratch[(dropAt+1)*s.channels:availFrames*s.channels])

	produced := (availFrames - 1) * s.channels
	s.trackShortfall(produced, len(out), nowUS)
	return min(produced, len(out))
}

// readInserting fetches one frame fewer than needed and appends an
// unblended copy of the last fetched frame to pad the shortfall.
func (s *LegacySource) readInserting(out []float32, outFrames int, nowUS int64) int {
	needed := (outFrames - 1) * s.channels
	if needed < s.channels {
		needed = s.channels
	}
	if cap(s.scratch) < needed {
		s.scratch = make([]float32, needed*2)
	}
	scratch := s.scratch[:needed]

	n := s.buffer.ReadRaw(scratch, nowUS)
	availFrames := n / s.channels
	if availFrames == 0 {
		fillSilence(out)
		s.trackShortfall(0, len(out), nowUS)
		return 0
	}

	copy(out, scratch[:n])
	lastFrame := scratch[(availFrames-1)*s.channels : availFrames*s.channels]

	insertPos := availFrames
	for ch := 0; ch < s.channels; ch++ {
		out[insertPos*s.channels+ch] = lastFrame[ch]
	}

	produced := (availFrames + 1) * s.channels
	if produced < len(out) {
		fillSilence(out[produced:])
	}
	s.trackShortfall(min(produced, len(out)), len(out), nowUS)
	return min(produced, len(out))
}

// blendFrame smooths the 3 frames straddling a drop/insert seam using the
// configured weights, in place.
func blendFrame(samples []float32, a, b, c, channels int, weights [3]float32) {
	if a < 0 {
		return
	}
	for ch := 0; ch < channels; ch++ {
		blended := samples[a*channels+ch]*weights[0] +
			samples[b*channels+ch]*weights[1] +
			samples[c*channels+ch]*weights[2]
		samples[b*channels+ch] = blended
	}
}

func (s *LegacySource) trackShortfall(produced, requested int, nowUS int64) {
	if produced == 0 {
		s.zeroReads.Add(1)
		if s.limiter.allow(nowUS) {
			s.logger().Warn("zero samples read from buffer", "now_us", nowUS)
		}
	} else if !s.firstSampleSeen.Load() {
		s.firstSampleSeen.Store(true)
		s.logger().Info("first sample emitted", "now_us", nowUS)
	}
}

func (s *LegacySource) logger() *slog.Logger {
	if s.log == nil {
		s.log = logging.ForService("samplesource_legacy")
	}
	return s.log
}

// Stats implements Source.
func (s *LegacySource) Stats() Stats {
	return Stats{
		TotalReads:      s.totalReads.Load(),
		ZeroReads:       s.zeroReads.Load(),
		UnderrunFrames:  s.underrunFrames.Load(),
		FirstSampleSeen: s.firstSampleSeen.Load(),
	}
}
