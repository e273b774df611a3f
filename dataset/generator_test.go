package dataset

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// analyticRunner integrates nothing: it evaluates the analytic reference
// on a grid finer than the requested one, as an integrator would.
type analyticRunner struct {
	available bool
	calls     int
}

func (r *analyticRunner) Available() bool { return r.available }

func (r *analyticRunner) Run(ctx context.Context, p WaveformParameters, f0, df, srate float64) ([]float64, []float64, []float64, error) {
	r.calls++
	step := df / 16
	var freqs []float64
	for k := 0; f0+float64(k)*step <= srate/2; k++ {
		freqs = append(freqs, f0+float64(k)*step)
	}
	amp, phase := AnalyticReferenceWaveform(p, freqs)
	return freqs, amp, phase, nil
}

func TestPostNewtonianBaseline(t *testing.T) {
	ds := coarseDataset(t)
	p := WaveformParameters{MassRatio: 1.2, Lambda1: 400, Lambda2: 400, Dataset: ds}
	f := ds.FrequenciesNatural()

	amp := PostNewtonianAmplitude(p, f)
	phase := PostNewtonianPhase(p, f)
	require.Len(t, amp, len(f))
	require.Len(t, phase, len(f))

	for i := range f {
		assert.False(t, math.IsNaN(amp[i]) || math.IsInf(amp[i], 0))
		assert.False(t, math.IsNaN(phase[i]) || math.IsInf(phase[i], 0))
		assert.Greater(t, amp[i], 0.0)
		if i > 0 {
			assert.Less(t, amp[i], amp[i-1], "amplitude must decrease during the inspiral")
		}
	}

	// leading order: A ∝ f^(−7/6)
	v := pnVelocity(f[0])
	newtonian := math.Pi * math.Sqrt(2/(3*p.Eta())) * math.Pow(v, -3.5)
	assert.InEpsilon(t, newtonian, amp[0], 0.05)
}

func TestAnalyticReferenceDiffersFromBaseline(t *testing.T) {
	ds := coarseDataset(t)
	f := ds.FrequenciesNatural()

	pp := WaveformParameters{MassRatio: 1, Dataset: ds}
	amp, _ := AnalyticReferenceWaveform(pp, f)
	// no tides: the taper is exactly one
	assert.InDeltaSlice(t, PostNewtonianAmplitude(pp, f), amp, 1e-30)

	tidal := WaveformParameters{MassRatio: 1.5, Lambda1: 1000, Lambda2: 2000, Chi1: 0.2, Dataset: ds}
	ampT, phaseT := AnalyticReferenceWaveform(tidal, f)
	pn := PostNewtonianAmplitude(tidal, f)
	last := len(f) - 1
	assert.Less(t, ampT[last], pn[last])
	assert.NotEqual(t, PostNewtonianPhase(tidal, f)[last], phaseT[last])
}

func TestGeneratorModes(t *testing.T) {
	_, err := NewPostNewtonianGenerator(Mode{3, 3})
	var ns *errors.NotSupportedError
	assert.True(t, errors.As(err, &ns))

	_, err = NewWaveformGenerator(Mode{2, 1}, nil, log.NewNopLogger())
	assert.True(t, errors.As(err, &ns))
}

func TestNewWaveformGeneratorFallback(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)

	gen, err := NewWaveformGenerator(Mode22, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "post-newtonian", gen.Name())
	assert.True(t, logger.ContainsMessage("effective-one-body integrator unavailable, using analytic reference"))
	assert.Equal(t, 1, logger.CountLevel(log.LevelWarn))

	gen, err = NewWaveformGenerator(Mode22, &analyticRunner{available: false}, logger)
	require.NoError(t, err)
	assert.Equal(t, "post-newtonian", gen.Name())

	gen, err = NewWaveformGenerator(Mode22, &analyticRunner{available: true}, logger)
	require.NoError(t, err)
	assert.Equal(t, "effective-one-body", gen.Name())
}

func TestEOBGeneratorInterpolatesRunnerOutput(t *testing.T) {
	ds := coarseDataset(t)
	runner := &analyticRunner{available: true}
	gen, err := NewEOBGenerator(Mode22, runner)
	require.NoError(t, err)

	p := WaveformParameters{MassRatio: 1.3, Lambda1: 600, Lambda2: 300, Chi1: 0.05, Chi2: -0.05, Dataset: ds}
	f := ds.FrequenciesNatural()[10:200]
	freqs, amp, phase, err := gen.EffectiveOneBodyWaveform(context.Background(), p, f)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, f, freqs)

	refAmp, refPhase := AnalyticReferenceWaveform(p, f)
	for i := range f {
		assert.InEpsilon(t, refAmp[i], amp[i], 1e-6)
		assert.InDelta(t, refPhase[i], phase[i], 1e-6*math.Abs(refPhase[i])+1e-6)
	}

	_, _, _, err = gen.EffectiveOneBodyWaveform(context.Background(), p, f[:1])
	assert.Error(t, err)
}

func TestUnwrap(t *testing.T) {
	n := 200
	ramp := make([]float64, n)
	wrapped := make([]float64, n)
	for i := range ramp {
		ramp[i] = -0.7 * float64(i)
		wrapped[i] = math.Remainder(ramp[i], 2*math.Pi)
	}
	assert.InDeltaSlice(t, ramp, Unwrap(wrapped), 1e-9)
	assert.Empty(t, Unwrap(nil))
}
