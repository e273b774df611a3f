package metrics

import (
	"math"
	"math/cmplx"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Overlap returns the complex inner product Σ a_i·conj(b_i) on a uniform
// frequency grid with a flat noise spectrum.
func Overlap(a, b []complex128) complex128 {
	var s complex128
	for i := range a {
		s += a[i] * cmplx.Conj(b[i])
	}
	return s
}

// Mismatch returns 1 − |⟨a,b⟩| / √(⟨a,a⟩⟨b,b⟩). Taking the modulus of the
// complex overlap maximizes over a constant phase offset. Two identical
// waveforms have mismatch 0; the value lies in [0, 1].
func Mismatch(a, b []complex128) (float64, error) {
	if len(a) == 0 {
		return 0, errors.NewValueError("Mismatch", "empty waveform")
	}
	if len(a) != len(b) {
		return 0, errors.NewDimensionError("Mismatch", len(a), len(b), 0)
	}
	na := real(Overlap(a, a))
	nb := real(Overlap(b, b))
	if na == 0 || nb == 0 {
		return 0, errors.NewValueError("Mismatch", "waveform with zero norm")
	}
	m := 1 - cmplx.Abs(Overlap(a, b))/math.Sqrt(na*nb)
	if m < 0 {
		m = 0
	}
	return m, nil
}
