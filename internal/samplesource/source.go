// Package samplesource implements C5, the Buffered Sample Source: the
// pull-based bridge between C2's Timed Audio Buffer and the device
// callback, in either ASRC or legacy drop/insert mode (spec §4.5).
package samplesource

import (
	"sync/atomic"
	"time"

	"github.com/sendspin/endpoint-core/internal/clock"
)

// Source is what C6's device callback pulls from. Read fills out
// completely: any shortfall from the upstream buffer is padded with
// silence. It must never block and must be safe to call from a real-time
// audio callback thread.
type Source interface {
	Read(out []float32) int
	Stats() Stats
}

// Stats mirrors the rate-limited diagnostics named in spec §4.5.
type Stats struct {
	TotalReads      uint64
	ZeroReads       uint64
	UnderrunFrames  uint64
	FirstSampleSeen bool
}

// diagnosticLimiter throttles log output to at most once per second
// (spec §4.5 step 7), grounded on the teacher's rate-limiting helpers used
// around noisy analysis loops.
type diagnosticLimiter struct {
	lastLogUS atomic.Int64
}

func (d *diagnosticLimiter) allow(nowUS int64) bool {
	last := d.lastLogUS.Load()
	if nowUS-last < int64(time.Second/time.Microsecond) {
		return false
	}
	return d.lastLogUS.CompareAndSwap(last, nowUS)
}

func fillSilence(out []float32) {
	for i := range out {
		out[i] = 0
	}
}

// clockOrDefault returns c, or a System clock if c is nil, so constructors
// remain usable in tests without threading a clock through everywhere.
func clockOrDefault(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.NewSystem()
	}
	return c
}
