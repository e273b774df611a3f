package dataset

import (
	"context"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// eobLeadSamples is the number of grid steps the integration starts below
// the first requested frequency, so the interpolation is never evaluated
// in the start-up transient.
const eobLeadSamples = 256

// EOBRunner is a numerical effective-one-body integrator. Run starts the
// evolution at initialFrequency and returns the waveform on its own
// increasing grid (natural units). The phase may be wrapped.
type EOBRunner interface {
	Available() bool
	Run(ctx context.Context, p WaveformParameters, initialFrequency, deltaF, srate float64) (freqs, amp, phase []float64, err error)
}

// EOBGenerator combines the post-Newtonian baseline with a numerical
// effective-one-body reference waveform.
type EOBGenerator struct {
	PostNewtonianGenerator
	Runner EOBRunner
}

// NewEOBGenerator returns a generator for mode backed by runner.
func NewEOBGenerator(mode Mode, runner EOBRunner) (*EOBGenerator, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, errors.NewValueError("NewEOBGenerator", "nil runner")
	}
	return &EOBGenerator{PostNewtonianGenerator: PostNewtonianGenerator{Mode: mode}, Runner: runner}, nil
}

// Name implements WaveformGenerator.
func (g *EOBGenerator) Name() string { return "effective-one-body" }

// EffectiveOneBodyWaveform runs the integrator from a lead below f[0] and
// interpolates the unwrapped result onto f.
func (g *EOBGenerator) EffectiveOneBodyWaveform(ctx context.Context, p WaveformParameters, f []float64) ([]float64, []float64, []float64, error) {
	if len(f) < 2 {
		return nil, nil, nil, errors.NewValueError("EOBGenerator.EffectiveOneBodyWaveform", "at least two frequencies are required")
	}
	df := math.Inf(1)
	for i := 1; i < len(f); i++ {
		step := f[i] - f[i-1]
		if step <= 0 {
			return nil, nil, nil, errors.NewValueError("EOBGenerator.EffectiveOneBodyWaveform", "frequencies must be strictly increasing")
		}
		df = math.Min(df, step)
	}
	f0 := math.Max(f[0]-eobLeadSamples*df, df)
	fMax := f[len(f)-1]
	srate := 2 * (fMax + eobLeadSamples*df)

	freqs, amp, phase, err := g.Runner.Run(ctx, p, f0, df, srate)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "effective-one-body run failed for q=%g", p.MassRatio)
	}
	if len(freqs) < 3 || len(amp) != len(freqs) || len(phase) != len(freqs) {
		return nil, nil, nil, errors.NewValueError("EOBGenerator.EffectiveOneBodyWaveform", "integrator returned inconsistent arrays")
	}
	if freqs[0] > f[0] || freqs[len(freqs)-1] < fMax {
		return nil, nil, nil, errors.NewValueError("EOBGenerator.EffectiveOneBodyWaveform", "integrator output does not cover the requested band")
	}

	unwrapped := Unwrap(phase)
	ampOut, err := interpolateOnto(freqs, amp, f)
	if err != nil {
		return nil, nil, nil, err
	}
	phaseOut, err := interpolateOnto(freqs, unwrapped, f)
	if err != nil {
		return nil, nil, nil, err
	}
	out := make([]float64, len(f))
	copy(out, f)
	return out, ampOut, phaseOut, nil
}

func interpolateOnto(x, y, target []float64) (out []float64, err error) {
	defer errors.Recover(&err, "dataset.interpolateOnto")
	var spline interp.NotAKnotCubic
	if err := spline.Fit(x, y); err != nil {
		return nil, errors.Wrap(err, "spline fit failed")
	}
	out = make([]float64, len(target))
	for i, t := range target {
		out[i] = spline.Predict(t)
	}
	return out, nil
}

// Unwrap removes 2π jumps between consecutive phase samples.
func Unwrap(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}
	out[0] = phase[0]
	offset := 0.0
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		if d > math.Pi || d < -math.Pi {
			offset -= 2 * math.Pi * math.Round(d/(2*math.Pi))
		}
		out[i] = phase[i] + offset
	}
	return out
}

// NewWaveformGenerator selects the backend once: the effective-one-body
// generator when runner is available, the post-Newtonian generator with
// its analytic reference otherwise. A missing integrator is logged, not
// returned as an error.
func NewWaveformGenerator(mode Mode, runner EOBRunner, logger log.Logger) (WaveformGenerator, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	if runner != nil && runner.Available() {
		g, err := NewEOBGenerator(mode, runner)
		if err != nil {
			return nil, err
		}
		logger.Debug("waveform generator selected", log.GeneratorKey, g.Name(), log.ModeKey, mode.String())
		return g, nil
	}
	g, err := NewPostNewtonianGenerator(mode)
	if err != nil {
		return nil, err
	}
	logger.Warn("effective-one-body integrator unavailable, using analytic reference",
		log.GeneratorKey, g.Name(), log.ModeKey, mode.String())
	return g, nil
}
