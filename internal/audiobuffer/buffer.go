package audiobuffer

import (
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/sendspin/endpoint-core/internal/errors"
	"github.com/sendspin/endpoint-core/internal/events"
)

const (
	// bytesPerSample is the float32 PCM sample width.
	bytesPerSample = 4
	// defaultLookaheadUS is the "due" tolerance from spec §4.2: at most
	// one device buffer (~20ms).
	defaultLookaheadUS = 20_000
	// smoothingTauUS is the sync-error IIR time constant (spec §4.2: ~200ms).
	smoothingTauUS = 200_000
)

// frameHeader tracks one written TimedFrame's remaining unread portion.
// Splitting metadata (this slice, guarded by mu) from the bulk sample
// bytes (the ringbuffer, which does its own internal locking) is what lets
// the hot bulk copy in Read avoid contending on buffer-wide state beyond
// the header queue bookkeeping (spec §5 "Locking").
type frameHeader struct {
	tsUS             int64
	remainingSamples int // per-channel sample frames
}

// Stats is the snapshot returned by GetStats (spec §3).
type Stats struct {
	TotalWritten     uint64
	TotalRead        uint64
	DroppedOverflow  uint64
	DroppedSync      uint64
	InsertedSync     uint64
	OverrunCount     uint64
	UnderrunCount    uint64
	BufferedMS       float64
	TargetMS         float64
	IsPlaybackActive bool
	SyncErrorUS      float64
}

// RateChangedEvent is published on the events bus when an external
// controller drives a target_playback_rate_changed notification.
type RateChangedEvent struct {
	Endpoint string
	NewRate  int
}

func (RateChangedEvent) Topic() string { return "target_playback_rate_changed" }

// Buffer is C2, the Timed Audio Buffer.
type Buffer struct {
	format     AudioFormat
	targetMS   float64
	lookaheadUS int64

	mu            sync.Mutex
	ring          *ringbuffer.RingBuffer
	capacityBytes int
	headers       []frameHeader

	totalWritten    uint64
	totalRead       uint64
	droppedOverflow uint64
	droppedSync     uint64
	insertedSync    uint64
	overrunCount    uint64
	underrunCount   uint64

	lastWrittenTS      int64
	firstScheduledTS   int64
	haveFirstScheduled bool
	isPlaybackActive   bool

	actualPositionUS   float64
	havePosition       bool
	smoothedErrorUS    float64
	haveSmoothedError  bool
	lastSmoothUpdateUS int64

	bus      *events.Bus
	endpoint string
}

// New creates a Buffer holding up to targetMS milliseconds of format-typed
// audio.
func New(format AudioFormat, targetMS float64, bus *events.Bus, endpoint string) (*Buffer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if targetMS <= 0 {
		return nil, errors.Newf("target_ms must be positive, got %v", targetMS).
			Component("audiobuffer").Category(errors.CategoryValidation).Build()
	}
	capacitySamples := int(targetMS / 1000 * float64(format.SampleRate))
	capacityBytes := capacitySamples * format.Channels * bytesPerSample
	if capacityBytes < format.Channels*bytesPerSample {
		capacityBytes = format.Channels * bytesPerSample
	}
	return &Buffer{
		format:        format,
		targetMS:      targetMS,
		lookaheadUS:   defaultLookaheadUS,
		ring:          ringbuffer.New(capacityBytes),
		capacityBytes: capacityBytes,
		bus:           bus,
		endpoint:      endpoint,
	}, nil
}

// SetLookahead overrides the "due" tolerance; tests use this to avoid
// waiting out the default ~20ms window.
func (b *Buffer) SetLookahead(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookaheadUS = d.Microseconds()
}

// Write appends samples (interleaved, in format's channel layout) scheduled
// to play starting at playoutTSUS. Overflow drops the oldest buffered
// frames; duplicates and too-late frames are dropped without error (spec
// §4.2, §8). Returns FormatMismatch if format differs from the buffer's.
func (b *Buffer) Write(format AudioFormat, samples []float32, playoutTSUS int64, nowUS int64) error {
	if !format.Equal(b.format) {
		return errors.Newf("frame format does not match buffer format").
			Component("audiobuffer").Category(errors.CategoryValidation).
			Context("expected", b.format).Context("got", format).Build()
	}
	if format.Channels == 0 || len(samples)%format.Channels != 0 {
		return errors.Newf("sample count %d not divisible by channel count %d", len(samples), format.Channels).
			Component("audiobuffer").Category(errors.CategoryValidation).Build()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sampleFrames := len(samples) / format.Channels

	// Duplicate or too-late frame: drop, not play (spec §8).
	if playoutTSUS <= b.lastWrittenTS && b.totalWritten > 0 {
		b.droppedSync += uint64(sampleFrames)
		return nil
	}
	if playoutTSUS < nowUS-b.lookaheadUS {
		b.droppedSync += uint64(sampleFrames)
		return nil
	}

	needBytes := sampleFrames * format.Channels * bytesPerSample
	if needBytes > b.capacityBytes {
		// A single frame bigger than the whole configured capacity can
		// never be stored whole no matter how much is evicted; booking
		// part of it as written and the rest as overflow would break the
		// total_written accounting (spec §8), so the frame is rejected
		// outright, same as a too-late frame.
		b.droppedSync += uint64(sampleFrames)
		return nil
	}

	if !b.haveFirstScheduled {
		b.firstScheduledTS = playoutTSUS
		b.haveFirstScheduled = true
	}

	for b.ring.Free() < needBytes && len(b.headers) > 0 {
		b.dropOldestLocked()
	}

	raw := float32SliceToBytes(samples)
	n, _ := b.ring.Write(raw)
	written := n / (format.Channels * bytesPerSample)
	if written > 0 {
		b.headers = append(b.headers, frameHeader{tsUS: playoutTSUS, remainingSamples: written})
		b.totalWritten += uint64(written)
		b.lastWrittenTS = playoutTSUS
	}
	return nil
}

// dropOldestLocked evicts the single oldest buffered frame header and its
// bytes from the ring, bumping dropped_overflow/overrun_count (spec §4.2:
// "Oldest-drop on overflow, never block the writer"). Caller holds mu.
func (b *Buffer) dropOldestLocked() {
	if len(b.headers) == 0 {
		return
	}
	h := b.headers[0]
	b.headers = b.headers[1:]
	discard := make([]byte, h.remainingSamples*b.format.Channels*bytesPerSample)
	_, _ = b.ring.Read(discard)
	b.droppedOverflow += uint64(h.remainingSamples)
	b.overrunCount++
}

// ReadRaw writes as many samples as are due (timestamp <= now+lookahead) up
// to len(out), returning the count of interleaved samples written. Returns
// 0 before the first due sample without signalling failure (pre-roll).
func (b *Buffer) ReadRaw(out []float32, nowUS int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	channels := b.format.Channels
	if channels == 0 {
		return 0
	}
	outFrames := len(out) / channels
	written := 0

	for written < outFrames && len(b.headers) > 0 {
		h := &b.headers[0]
		if h.tsUS > nowUS+b.lookaheadUS {
			break // not due yet: pre-roll, or a gap -> underrun
		}
		take := outFrames - written
		if take > h.remainingSamples {
			take = h.remainingSamples
		}
		raw := make([]byte, take*channels*bytesPerSample)
		n, _ := b.ring.Read(raw)
		got := n / (channels * bytesPerSample)
		bytesToFloat32Slice(raw[:got*channels*bytesPerSample], out[written*channels:(written+got)*channels])

		h.remainingSamples -= got
		h.tsUS += int64(got) * 1_000_000 / int64(b.format.SampleRate)
		written += got
		if h.remainingSamples <= 0 {
			b.headers = b.headers[1:]
		}
		if got == 0 {
			break
		}
	}

	if written == 0 && len(b.headers) > 0 && b.haveFirstScheduled {
		b.underrunCount++
	}

	b.totalRead += uint64(written)
	if b.haveFirstScheduled && nowUS >= b.firstScheduledTS {
		b.isPlaybackActive = true
	}

	b.advancePositionLocked(written, nowUS)
	return written * channels
}

// NotifyExternalCorrection lets C5 tell the TAB how many samples it
// dropped or duplicated while bridging to the device, keeping the TAB's
// internal playback-position counter truthful (spec §4.2).
func (b *Buffer) NotifyExternalCorrection(dropped, inserted int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insertedSync += uint64(inserted)
	b.droppedSync += uint64(dropped)
	b.actualPositionUS += float64(dropped+inserted) * 1_000_000 / float64(b.format.SampleRate)
}

// advancePositionLocked updates the actual-output-position estimate and
// feeds the smoothed sync error IIR. Caller holds mu.
func (b *Buffer) advancePositionLocked(samplesRead int, nowUS int64) {
	if !b.havePosition {
		b.actualPositionUS = float64(nowUS)
		b.havePosition = true
		b.lastSmoothUpdateUS = nowUS
	}
	b.actualPositionUS += float64(samplesRead) * 1_000_000 / float64(b.format.SampleRate)

	rawError := float64(nowUS) - b.actualPositionUS

	if !b.haveSmoothedError {
		b.smoothedErrorUS = rawError
		b.haveSmoothedError = true
		b.lastSmoothUpdateUS = nowUS
		return
	}
	dt := float64(nowUS - b.lastSmoothUpdateUS)
	b.lastSmoothUpdateUS = nowUS
	if dt <= 0 {
		return
	}
	alpha := dt / (smoothingTauUS + dt)
	b.smoothedErrorUS += alpha * (rawError - b.smoothedErrorUS)
}

// SmoothedSyncErrorUS returns the single-pole-IIR-smoothed sync error
// (spec §4.2).
func (b *Buffer) SmoothedSyncErrorUS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.smoothedErrorUS
}

// GetStats returns a snapshot of all counters plus derived fields.
func (b *Buffer) GetStats(nowUS int64) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	bufferedSamples := 0
	for _, h := range b.headers {
		bufferedSamples += h.remainingSamples
	}
	bufferedUS := float64(b.lastWrittenTS-nowUS) + float64(bufferedSamples)*1_000_000/float64(b.format.SampleRate)
	if bufferedUS < 0 {
		bufferedUS = 0
	}

	return Stats{
		TotalWritten:     b.totalWritten,
		TotalRead:        b.totalRead,
		DroppedOverflow:  b.droppedOverflow,
		DroppedSync:      b.droppedSync,
		InsertedSync:     b.insertedSync,
		OverrunCount:     b.overrunCount,
		UnderrunCount:    b.underrunCount,
		BufferedMS:       bufferedUS / 1000,
		TargetMS:         b.targetMS,
		IsPlaybackActive: b.isPlaybackActive,
		SyncErrorUS:      b.smoothedErrorUS,
	}
}

// Clear empties the buffer (used by C8 on Reanchor) without touching
// learned clock-drift state, which lives in C3.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.headers = nil
	b.ring.Reset()
	b.haveFirstScheduled = false
	b.isPlaybackActive = false
}

// PublishRateChanged notifies subscribers of a target playback rate
// change. Subscribers must call events.Bus.Unsubscribe on teardown (spec §9).
func (b *Buffer) PublishRateChanged(newRate int) {
	if b.bus == nil {
		return
	}
	b.bus.TryPublish(RateChangedEvent{Endpoint: b.endpoint, NewRate: newRate})
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*bytesPerSample)
	for i, v := range s {
		putFloat32(out[i*bytesPerSample:], v)
	}
	return out
}

func bytesToFloat32Slice(b []byte, out []float32) {
	n := len(b) / bytesPerSample
	for i := 0; i < n && i < len(out); i++ {
		out[i] = getFloat32(b[i*bytesPerSample:])
	}
}
