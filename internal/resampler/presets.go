package resampler

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"

	"github.com/sendspin/endpoint-core/internal/conf"
)

// bankShape describes a polyphase bank's (phases, taps) size (spec §4.4).
type bankShape struct {
	Phases int
	Taps   int
}

var presetShapes = map[conf.ResamplerPreset]bankShape{
	conf.PresetLarge:  {Phases: 128, Taps: 48},
	conf.PresetMedium: {Phases: 64, Taps: 32},
	conf.PresetSmall:  {Phases: 32, Taps: 24},
}

// kaiserBeta is the window shape parameter named in spec §4.4 ("β ≈ 6"),
// carried as a literal constant per DESIGN.md's Open Question decision.
const kaiserBeta = 6.0

// cutoff is the normalized passband edge used for the prototype sinc
// filter. The ASRC only ever trims the rate by a few percent (spec §4.4's
// clamp windows), so a single near-unity prototype filter serves every
// phase; it is not redesigned per callback.
const cutoff = 0.92

// buildBank constructs a phases×taps polyphase filter bank: a windowed-sinc
// prototype low-pass filter, polyphase-decomposed by fractional delay.
// Coefficients are normalized so each phase's taps sum to 1.
func buildBank(shape bankShape) [][]float64 {
	total := shape.Phases * shape.Taps
	proto := make([]float64, total)
	half := float64(total-1) / 2

	for i := 0; i < total; i++ {
		x := float64(i) - half
		proto[i] = sinc(cutoff*x) * cutoff
	}

	win := window.NewKaiser(kaiserBeta)
	proto = win(proto)

	bank := make([][]float64, shape.Phases)
	for p := 0; p < shape.Phases; p++ {
		taps := make([]float64, shape.Taps)
		sum := 0.0
		for k := 0; k < shape.Taps; k++ {
			idx := k*shape.Phases + p
			if idx < total {
				taps[k] = proto[idx]
				sum += taps[k]
			}
		}
		if sum != 0 {
			for k := range taps {
				taps[k] /= sum
			}
		}
		bank[p] = taps
	}
	return bank
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
