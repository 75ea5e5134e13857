package resampler

import (
	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/simd"
)

// useSIMDDotProduct reports whether the running CPU has a usable SIMD
// dot-product implementation. Converter caches the result at construction
// time and branches on it per call instead of re-probing cpuid in the hot
// path.
func useSIMDDotProduct() bool {
	return cpuid.CPU.Supports(cpuid.AVX2) || cpuid.CPU.Supports(cpuid.NEON)
}

// simdDotProduct computes the inner product of a window of samples against
// a polyphase tap set, both already converted to float32 outside the
// callback (Converter.sampleScratchF32 and Converter.bankF32) so this call
// itself never allocates.
func simdDotProduct(a, b []float32) float32 {
	return simd.DotProductFloat32(a, b)
}

func scalarDotProduct(a, b []float64) float64 {
	var acc float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		acc += a[i] * b[i]
	}
	return acc
}
