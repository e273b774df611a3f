package dataset

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/linear"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

func trainingSet(t *testing.T, ds *Dataset, n int) *ParameterSet {
	t.Helper()
	g, err := NewUniformParameterGenerator(DefaultParameterRanges(), ds, 7)
	require.NoError(t, err)
	return g.Generate(n)
}

func TestFlattenPhaseIdempotent(t *testing.T) {
	freqs := []float64{0.001, 0.002, 0.004, 0.008, 0.016}
	phase := mat.NewDense(2, len(freqs), nil)
	for j, f := range freqs {
		// affine part plus a curved part
		phase.Set(0, j, 3-2*math.Pi*0.5*f+100*f*f)
		phase.Set(1, j, -1+2*math.Pi*2*f+math.Sin(300*f))
	}
	res := &Residuals{Amplitude: mat.NewDense(2, 1, nil), Phase: phase}

	shifts, err := res.FlattenPhase(freqs)
	require.NoError(t, err)
	require.Len(t, shifts, 2)

	// flattened rows have no affine component left
	_, slopes, err := linear.FitAffine(freqs, res.Phase.T())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0}, slopes, 1e-8)

	before := mat.DenseCopyOf(res.Phase)
	again, err := res.FlattenPhase(freqs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0}, again, 1e-8)
	assert.True(t, mat.EqualApprox(before, res.Phase, 1e-8))

	_, err = res.FlattenPhase(freqs[:3])
	assert.Error(t, err)
}

func TestFlattenPhaseRecoversTimeShift(t *testing.T) {
	freqs := []float64{0.01, 0.02, 0.03, 0.04}
	const dt = 12.5
	phase := mat.NewDense(1, len(freqs), nil)
	for j, f := range freqs {
		phase.Set(0, j, 0.3-2*math.Pi*dt*f)
	}
	res := &Residuals{Amplitude: mat.NewDense(1, 1, nil), Phase: phase}
	shifts, err := res.FlattenPhase(freqs)
	require.NoError(t, err)
	assert.InDelta(t, dt, shifts[0], 1e-8)
	assert.InDeltaSlice(t, make([]float64, 4), res.Phase.RawRowView(0), 1e-10)
}

func TestCombinedRoundTrip(t *testing.T) {
	res := &Residuals{
		Amplitude: mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
		Phase:     mat.NewDense(2, 3, []float64{5, 6, 7, 8, 9, 10}),
	}
	c := res.Combined()
	assert.Equal(t, []float64{1, 2, 5, 6, 7}, c.RawRowView(0))

	back, err := ResidualsFromCombined(c, 2, 3)
	require.NoError(t, err)
	assert.True(t, mat.Equal(res.Amplitude, back.Amplitude))
	assert.True(t, mat.Equal(res.Phase, back.Phase))

	_, err = ResidualsFromCombined(c, 2, 2)
	assert.Error(t, err)
}

func TestDownsamplingIndicesValidate(t *testing.T) {
	ok := &DownsamplingIndices{Amplitude: []int{0, 3, 9}, Phase: []int{0, 1, 9}}
	assert.NoError(t, ok.Validate(10))
	na, np := ok.NumbersOfPoints()
	assert.Equal(t, 3, na)
	assert.Equal(t, 3, np)

	assert.Error(t, ok.Validate(9))
	assert.Error(t, (&DownsamplingIndices{Amplitude: []int{0, 0}, Phase: []int{1}}).Validate(10))
	assert.Error(t, (&DownsamplingIndices{Amplitude: []int{1}}).Validate(10))
	assert.NoError(t, FullIndices(5).Validate(5))
}

func TestUnion(t *testing.T) {
	merged, pa, pb := union([]int{0, 2, 5}, []int{1, 2, 7})
	assert.Equal(t, []int{0, 1, 2, 5, 7}, merged)
	assert.Equal(t, []int{0, 2, 3}, pa)
	assert.Equal(t, []int{1, 2, 4}, pb)
}

func TestGenerateResiduals(t *testing.T) {
	ds := coarseDataset(t)
	gen, err := NewPostNewtonianGenerator(Mode22)
	require.NoError(t, err)
	params := trainingSet(t, ds, 6)
	indices := &DownsamplingIndices{
		Amplitude: []int{0, 5, 20, 60, 120, 200, 253},
		Phase:     []int{0, 2, 10, 40, 90, 150, 220, 253},
	}

	res, shifts, err := ds.GenerateResiduals(context.Background(), gen, params, indices)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Len())
	assert.Len(t, shifts, 6)
	_, c := res.Phase.Dims()
	assert.Equal(t, 8, c)

	ampFreqs := ds.Frequencies(indices.Amplitude)
	for i := 0; i < res.Len(); i++ {
		p := params.At(i, ds)
		ref, _ := AnalyticReferenceWaveform(p, ampFreqs)
		pn := PostNewtonianAmplitude(p, ampFreqs)
		for k := range ampFreqs {
			assert.InDelta(t, math.Log(ref[k]/pn[k]), res.Amplitude.At(i, k), 1e-9)
		}
		assert.LessOrEqual(t, floats.Max(res.Amplitude.RawRowView(i)), 1e-12, "the tidal taper only reduces the amplitude")
	}

	// rows follow the order of params
	single, err := params.Subset([]int{3})
	require.NoError(t, err)
	one, _, err := ds.GenerateResiduals(context.Background(), gen, single, indices)
	require.NoError(t, err)
	assert.InDeltaSlice(t, res.Amplitude.RawRowView(3), one.Amplitude.RawRowView(0), 1e-12)
	assert.InDeltaSlice(t, res.Phase.RawRowView(3), one.Phase.RawRowView(0), 1e-6)
}

func TestGenerateResidualsCancelled(t *testing.T) {
	ds := coarseDataset(t)
	gen, err := NewPostNewtonianGenerator(Mode22)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = ds.GenerateResiduals(ctx, gen, trainingSet(t, ds, 4), FullIndices(ds.Len()))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerateResidualsRejectsBadInput(t *testing.T) {
	ds := coarseDataset(t)
	gen, err := NewPostNewtonianGenerator(Mode22)
	require.NoError(t, err)

	_, _, err = ds.GenerateResiduals(context.Background(), gen, &ParameterSet{}, FullIndices(ds.Len()))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, _, err = ds.GenerateResiduals(context.Background(), gen, trainingSet(t, ds, 2), FullIndices(ds.Len()+1))
	assert.Error(t, err)
}

func TestRecomposeResiduals(t *testing.T) {
	ds := coarseDataset(t)
	gen, err := NewPostNewtonianGenerator(Mode22)
	require.NoError(t, err)
	params := trainingSet(t, ds, 3)
	indices := FullIndices(ds.Len())

	res, shifts, err := ds.GenerateResiduals(context.Background(), gen, params, indices)
	require.NoError(t, err)
	wf, err := ds.RecomposeResiduals(res, params, indices, gen)
	require.NoError(t, err)
	assert.Equal(t, 3, wf.Len())

	f := ds.FrequenciesNatural()
	for i := 0; i < 3; i++ {
		refAmp, refPhase := AnalyticReferenceWaveform(params.At(i, ds), f)
		for k := range f {
			assert.InEpsilon(t, refAmp[k], wf.Amplitudes.At(i, k), 1e-9)
		}
		// recomposed phase differs from the reference by the removed
		// affine term only
		diff := make([]float64, len(f))
		for k := range f {
			diff[k] = refPhase[k] - wf.Phases.At(i, k)
		}
		_, slopes, err := linear.FitAffine(f, mat.NewDense(len(f), 1, diff))
		require.NoError(t, err)
		assert.InDelta(t, -2*math.Pi*shifts[i], slopes[0], 1e-6*math.Abs(slopes[0])+1e-6)
	}

	_, err = ds.RecomposeResiduals(res, &ParameterSet{}, indices, gen)
	assert.Error(t, err)
}
