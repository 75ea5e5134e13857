// Package audiobuffer implements C2, the Timed Audio Buffer: a bounded
// queue of timestamped PCM frames with sync-error measurement (spec §4.2).
package audiobuffer

import "github.com/sendspin/endpoint-core/internal/errors"

// AudioFormat is immutable per pipeline lifetime (spec §3). Changing it
// requires tearing down and rebuilding C4, C5, C6.
type AudioFormat struct {
	SampleRate int    // Hz, positive
	Channels   int    // 1-8
	Codec      string // opaque codec tag, e.g. "pcm_f32le"
}

// Validate checks the format's own invariants.
func (f AudioFormat) Validate() error {
	if f.SampleRate <= 0 {
		return errors.Newf("sample rate must be positive, got %d", f.SampleRate).
			Component("audiobuffer").Category(errors.CategoryValidation).Build()
	}
	if f.Channels < 1 || f.Channels > 8 {
		return errors.Newf("channels must be 1-8, got %d", f.Channels).
			Component("audiobuffer").Category(errors.CategoryValidation).Build()
	}
	return nil
}

func (f AudioFormat) Equal(other AudioFormat) bool {
	return f.SampleRate == other.SampleRate && f.Channels == other.Channels && f.Codec == other.Codec
}

// TimedFrame is a block of interleaved float32 PCM samples tagged with the
// microsecond timestamp at which its first sample should play (spec §3).
type TimedFrame struct {
	PlayoutTSUS int64
	Samples     []float32 // interleaved, len == frameCount*Channels
}

// FrameCount returns the number of per-channel sample frames this
// TimedFrame carries, given format.
func (t TimedFrame) FrameCount(format AudioFormat) int {
	if format.Channels == 0 {
		return 0
	}
	return len(t.Samples) / format.Channels
}
