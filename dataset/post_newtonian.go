package dataset

import (
	"context"
	"math"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

const eulerGamma = 0.5772156649015329

// WaveformGenerator produces the analytic baseline and the reference
// waveform the surrogate is trained on. Frequencies are in natural units
// on request and response; phases are continuous (unwrapped).
type WaveformGenerator interface {
	PostNewtonianAmplitude(p WaveformParameters, f []float64) []float64
	PostNewtonianPhase(p WaveformParameters, f []float64) []float64
	EffectiveOneBodyWaveform(ctx context.Context, p WaveformParameters, f []float64) (freqs, amp, phase []float64, err error)
	Name() string
}

// pnTerms holds the frequency-independent part of the baseline.
type pnTerms struct {
	eta        float64
	delta      float64
	chiA, chiS float64

	// Amplitude correction H22 = 1 + a2 v² + a3 v³ + a4 v⁴.
	a2, a3, a4 float64

	// TaylorF2 coefficients; phi5 and phi6 carry log(v) dependencies
	// applied at evaluation.
	phi2, phi3, phi4, phi5, phi6, phi7 float64
	tidal10, tidal12                   float64

	lambdaTilde float64
}

func newPNTerms(p WaveformParameters) pnTerms {
	q := p.MassRatio
	eta := p.Eta()
	eta2 := eta * eta
	eta3 := eta2 * eta
	delta := (q - 1) / (q + 1)
	chiA := (p.Chi1 - p.Chi2) / 2
	chiS := (p.Chi1 + p.Chi2) / 2
	m1, m2 := p.massFractions()
	pi2 := math.Pi * math.Pi

	t := pnTerms{eta: eta, delta: delta, chiA: chiA, chiS: chiS}

	t.a2 = 451*eta/168 - 323.0/224
	t.a3 = 27*delta*chiA/8 - 11*eta*chiS/6 + 27*chiS/8
	t.a4 = -49*delta*chiA*chiS/16 +
		105271*eta2/24192 +
		6*eta*chiA*chiA +
		eta*chiS*chiS/8 -
		1975055*eta/338688 -
		49*chiA*chiA/32 -
		49*chiS*chiS/32 -
		27312085.0/8128512

	beta := (113.0/12*m1*m1+25.0/4*eta)*p.Chi1 + (113.0/12*m2*m2+25.0/4*eta)*p.Chi2
	sigma := 79.0 / 8 * eta * p.Chi1 * p.Chi2

	t.phi2 = 3715.0/756 + 55*eta/9
	t.phi3 = -16*math.Pi + 4*beta
	t.phi4 = 15293365.0/508032 + 27145*eta/504 + 3085*eta2/72 - 10*sigma
	t.phi5 = math.Pi * (38645.0/756 - 65*eta/9)
	t.phi6 = 11583231236531.0/4694215680 - 640*pi2/3 - 6848*eulerGamma/21 +
		(-15737765635.0/3048192+2255*pi2/12)*eta +
		76055*eta2/1728 - 127825*eta3/1296
	t.phi7 = math.Pi * (77096675.0/254016 + 378515*eta/1512 - 74045*eta2/756)

	t.lambdaTilde = p.LambdaTilde()
	t.tidal10 = -39.0 / 2 * t.lambdaTilde
	t.tidal12 = -3115.0/64*t.lambdaTilde + 6595.0/364*math.Sqrt(1-4*eta)*p.DeltaLambdaTilde()
	return t
}

func pnVelocity(f float64) float64 {
	return math.Cbrt(math.Pi * math.Abs(f))
}

func (t pnTerms) amplitude(v float64) float64 {
	v2 := v * v
	h := 1 + t.a2*v2 + t.a3*v2*v + t.a4*v2*v2
	return math.Pi * math.Sqrt(2/(3*t.eta)) * math.Pow(v, -3.5) * h
}

// psi is the TaylorF2 phase Ψ(v) without the time and phase constants.
func (t pnTerms) psi(v float64) float64 {
	v2 := v * v
	v4 := v2 * v2
	v5 := v4 * v
	v10 := v5 * v5
	bracket := 1 +
		t.phi2*v2 +
		t.phi3*v2*v +
		t.phi4*v4 +
		t.phi5*(1+3*math.Log(v*math.Sqrt(6)))*v5 +
		(t.phi6-6848.0/21*math.Log(4*v))*v5*v +
		t.phi7*v5*v2 +
		t.tidal10*v10 +
		t.tidal12*v10*v2
	return 3 / (128 * t.eta * v5) * bracket
}

// higherOrderPsi is the part of the phase beyond the baseline carried by
// the analytic reference approximant: the 3PN spin-orbit term and the
// 6.5PN tidal tail.
func (t pnTerms) higherOrderPsi(v float64) float64 {
	v5 := v * v * v * v * v
	so := math.Pi * (2270.0/3*t.delta*t.chiA + (2270.0/3-520*t.eta)*t.chiS)
	tail := 39.0 / 2 * math.Pi * t.lambdaTilde
	return 3 / (128 * t.eta * v5) * (so*v5*v + tail*v5*v5*v*v*v)
}

// tidalTaper suppresses the amplitude near merger for deformable stars.
func (t pnTerms) tidalTaper(v float64) float64 {
	x := v * v
	kappa := 3 * t.lambdaTilde / 16
	return math.Exp(-0.5 * kappa * math.Pow(x, 13.0/4) / (1 + x*x*x*x))
}

// PostNewtonianAmplitude evaluates the baseline amplitude of the (2,2)
// mode at natural-unit frequencies f.
func PostNewtonianAmplitude(p WaveformParameters, f []float64) []float64 {
	t := newPNTerms(p)
	out := make([]float64, len(f))
	for i, fi := range f {
		out[i] = t.amplitude(pnVelocity(fi))
	}
	return out
}

// PostNewtonianPhase evaluates the baseline phase −Ψ of the (2,2) mode at
// natural-unit frequencies f.
func PostNewtonianPhase(p WaveformParameters, f []float64) []float64 {
	t := newPNTerms(p)
	out := make([]float64, len(f))
	for i, fi := range f {
		out[i] = -t.psi(pnVelocity(fi))
	}
	return out
}

// AnalyticReferenceWaveform evaluates the higher-order analytic
// approximant used when no numerical effective-one-body integrator is
// available.
func AnalyticReferenceWaveform(p WaveformParameters, f []float64) (amp, phase []float64) {
	t := newPNTerms(p)
	amp = make([]float64, len(f))
	phase = make([]float64, len(f))
	for i, fi := range f {
		v := pnVelocity(fi)
		amp[i] = t.amplitude(v) * t.tidalTaper(v)
		phase[i] = -t.psi(v) - t.higherOrderPsi(v)
	}
	return amp, phase
}

func checkMode(mode Mode) error {
	if mode != Mode22 {
		return errors.NewNotSupportedError("post-Newtonian baseline for mode", mode.String())
	}
	return nil
}

// PostNewtonianGenerator provides the baseline and, as its reference
// waveform, the analytic higher-order approximant.
type PostNewtonianGenerator struct {
	Mode Mode
}

// NewPostNewtonianGenerator returns a generator for mode. Only (2,2) has a
// baseline.
func NewPostNewtonianGenerator(mode Mode) (*PostNewtonianGenerator, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	return &PostNewtonianGenerator{Mode: mode}, nil
}

// Name implements WaveformGenerator.
func (g *PostNewtonianGenerator) Name() string { return "post-newtonian" }

// PostNewtonianAmplitude implements WaveformGenerator.
func (g *PostNewtonianGenerator) PostNewtonianAmplitude(p WaveformParameters, f []float64) []float64 {
	return PostNewtonianAmplitude(p, f)
}

// PostNewtonianPhase implements WaveformGenerator.
func (g *PostNewtonianGenerator) PostNewtonianPhase(p WaveformParameters, f []float64) []float64 {
	return PostNewtonianPhase(p, f)
}

// EffectiveOneBodyWaveform implements WaveformGenerator with the analytic
// approximant evaluated directly on f.
func (g *PostNewtonianGenerator) EffectiveOneBodyWaveform(ctx context.Context, p WaveformParameters, f []float64) ([]float64, []float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	amp, phase := AnalyticReferenceWaveform(p, f)
	freqs := make([]float64, len(f))
	copy(freqs, f)
	return freqs, amp, phase, nil
}
