package samplesource

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/sendspin/endpoint-core/internal/audiobuffer"
	"github.com/sendspin/endpoint-core/internal/clock"
	"github.com/sendspin/endpoint-core/internal/logging"
	"github.com/sendspin/endpoint-core/internal/resampler"
	"github.com/sendspin/endpoint-core/internal/syncest"
)

const asrcInputMargin = 0.02 // spec §4.5 step 3

// ASRCSource drives C4 off C2, the default strategy (spec §4.5).
type ASRCSource struct {
	buffer    *audiobuffer.Buffer
	converter *resampler.Converter
	estimator *syncest.Estimator // optional; nil disables drift feed-forward
	clock     clock.Clock
	channels  int

	scratch []float32 // pre-grown input scratch, reused across calls
	limiter diagnosticLimiter

	totalReads      atomic.Uint64
	zeroReads       atomic.Uint64
	underrunFrames  atomic.Uint64
	firstSampleSeen atomic.Bool

	log *slog.Logger
}

// NewASRCSource wires C2, C4 and an optional C3 estimator into a Source.
func NewASRCSource(buf *audiobuffer.Buffer, conv *resampler.Converter, estimator *syncest.Estimator, channels int, clk clock.Clock) *ASRCSource {
	return &ASRCSource{
		buffer:    buf,
		converter: conv,
		estimator: estimator,
		clock:     clockOrDefault(clk),
		channels:  channels,
		scratch:   make([]float32, 4096*channels),
		log:       logging.ForService("samplesource"),
	}
}

// Read implements Source (spec §4.5 steps 1-7).
func (s *ASRCSource) Read(out []float32) int {
	nowUS := s.clock.NowUS()
	s.totalReads.Add(1)

	if s.estimator != nil {
		s.converter.PushDrift(s.estimator.DriftPPM(), s.estimator.IsDriftReliable())
	}
	s.converter.PushSyncError(s.buffer.SmoothedSyncErrorUS())

	ratio := s.converter.CurrentRatio()
	outFrames := len(out) / s.channels
	inputNeeded := int(math.Ceil(float64(outFrames)/ratio*(1+asrcInputMargin))) + 16
	neededSamples := inputNeeded * s.channels

	if cap(s.scratch) < neededSamples {
		s.scratch = make([]float32, neededSamples*2)
	}
	scratch := s.scratch[:neededSamples]

	n := s.buffer.ReadRaw(scratch, nowUS)

	outN, _, err := s.converter.Process(scratch[:n], out)
	if err != nil {
		fillSilence(out)
		if s.limiter.allow(nowUS) {
			s.log.Warn("resampler error, emitting silence", "error", err, "now_us", nowUS)
		}
		return 0
	}

	if outN < len(out) {
		fillSilence(out[outN:])
		s.underrunFrames.Add(uint64((len(out) - outN) / s.channels))
	}

	if n == 0 {
		s.zeroReads.Add(1)
		if s.limiter.allow(nowUS) {
			s.log.Warn("zero samples read from buffer", "now_us", nowUS)
		}
	} else if !s.firstSampleSeen.Load() {
		s.firstSampleSeen.Store(true)
		s.log.Info("first sample emitted", "now_us", nowUS)
	}

	return outN
}

// Stats implements Source.
func (s *ASRCSource) Stats() Stats {
	return Stats{
		TotalReads:      s.totalReads.Load(),
		ZeroReads:       s.zeroReads.Load(),
		UnderrunFrames:  s.underrunFrames.Load(),
		FirstSampleSeen: s.firstSampleSeen.Load(),
	}
}
