package dataset

import (
	"context"
	"math"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/core/parallel"
	"github.com/YuminosukeSato/gwsurrogate/linear"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// FDWaveforms holds frequency-domain waveforms, one per row.
type FDWaveforms struct {
	Amplitudes *mat.Dense
	Phases     *mat.Dense
}

// Len returns the number of waveforms.
func (w *FDWaveforms) Len() int {
	if w == nil || w.Amplitudes == nil {
		return 0
	}
	r, _ := w.Amplitudes.Dims()
	return r
}

// Residuals are the deviations of reference waveforms from the baseline:
// log(amplitude ratio) and phase difference, one waveform per row.
type Residuals struct {
	Amplitude *mat.Dense
	Phase     *mat.Dense
}

// Len returns the number of waveforms.
func (r *Residuals) Len() int {
	if r == nil || r.Amplitude == nil {
		return 0
	}
	n, _ := r.Amplitude.Dims()
	return n
}

// FlattenPhase fits phase ≈ a + b·f to each row by least squares,
// subtracts the fit in place and returns the time shifts Δt = −b/(2π).
func (r *Residuals) FlattenPhase(freqs []float64) ([]float64, error) {
	n, c := r.Phase.Dims()
	if c != len(freqs) {
		return nil, errors.NewDimensionError("Residuals.FlattenPhase", len(freqs), c, 1)
	}
	intercepts, slopes, err := linear.FitAffine(freqs, r.Phase.T())
	if err != nil {
		return nil, errors.Wrap(err, "phase flattening failed")
	}
	shifts := make([]float64, n)
	for i := 0; i < n; i++ {
		row := r.Phase.RawRowView(i)
		for j, f := range freqs {
			row[j] -= intercepts[i] + slopes[i]*f
		}
		shifts[i] = -slopes[i] / (2 * math.Pi)
	}
	return shifts, nil
}

// Combined concatenates the amplitude and phase columns.
func (r *Residuals) Combined() *mat.Dense {
	n, na := r.Amplitude.Dims()
	_, np := r.Phase.Dims()
	out := mat.NewDense(n, na+np, nil)
	out.Slice(0, n, 0, na).(*mat.Dense).Copy(r.Amplitude)
	out.Slice(0, n, na, na+np).(*mat.Dense).Copy(r.Phase)
	return out
}

// ResidualsFromCombined splits a combined matrix into its amplitude and
// phase parts.
func ResidualsFromCombined(c mat.Matrix, nAmp, nPhase int) (*Residuals, error) {
	n, cols := c.Dims()
	if cols != nAmp+nPhase {
		return nil, errors.NewDimensionError("ResidualsFromCombined", nAmp+nPhase, cols, 1)
	}
	return &Residuals{
		Amplitude: mat.DenseCopyOf(sliceColumns(c, n, 0, nAmp)),
		Phase:     mat.DenseCopyOf(sliceColumns(c, n, nAmp, nAmp+nPhase)),
	}, nil
}

func sliceColumns(m mat.Matrix, rows, from, to int) mat.Matrix {
	if s, ok := m.(interface {
		Slice(i, k, j, l int) mat.Matrix
	}); ok {
		return s.Slice(0, rows, from, to)
	}
	return mat.DenseCopyOf(m).Slice(0, rows, from, to)
}

// DownsamplingIndices select the dense-grid points at which amplitude and
// phase residuals are stored. Both lists are strictly increasing.
type DownsamplingIndices struct {
	Amplitude []int
	Phase     []int
}

// NumbersOfPoints returns the lengths of the two index lists.
func (d *DownsamplingIndices) NumbersOfPoints() (int, int) {
	return len(d.Amplitude), len(d.Phase)
}

// Validate checks that both lists are strictly increasing and lie inside
// a dense grid of nDense points.
func (d *DownsamplingIndices) Validate(nDense int) error {
	for name, idx := range map[string][]int{"amplitude": d.Amplitude, "phase": d.Phase} {
		if len(idx) == 0 {
			return errors.NewValidationError(name+"_indices", "must not be empty", 0)
		}
		for i, v := range idx {
			if v < 0 || v >= nDense {
				return errors.NewValidationError(name+"_indices", "index outside the dense grid", v)
			}
			if i > 0 && v <= idx[i-1] {
				return errors.NewValidationError(name+"_indices", "must be strictly increasing", v)
			}
		}
	}
	return nil
}

// FullIndices returns the indices of every dense-grid point for both
// amplitude and phase.
func FullIndices(nDense int) *DownsamplingIndices {
	idx := make([]int, nDense)
	for i := range idx {
		idx[i] = i
	}
	return &DownsamplingIndices{Amplitude: idx, Phase: append([]int(nil), idx...)}
}

// union merges two increasing index lists and returns the merged list
// with the positions of each input inside it.
func union(a, b []int) (merged, posA, posB []int) {
	merged = make([]int, 0, len(a)+len(b))
	posA = make([]int, len(a))
	posB = make([]int, len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			posA[i] = len(merged)
			merged = append(merged, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			posB[j] = len(merged)
			merged = append(merged, b[j])
			j++
		default:
			posA[i] = len(merged)
			posB[j] = len(merged)
			merged = append(merged, a[i])
			i++
			j++
		}
	}
	return merged, posA, posB
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = values[i]
	}
	return out
}

// Frequencies returns the natural-unit frequencies of idx.
func (d *Dataset) Frequencies(idx []int) []float64 {
	return pick(d.FrequenciesNatural(), idx)
}

// GenerateResiduals computes the residuals of every parameter vector at
// the given indices. Samples are processed in parallel; rows keep the
// order of params. The returned time shifts are those removed by phase
// flattening.
func (d *Dataset) GenerateResiduals(ctx context.Context, gen WaveformGenerator, params *ParameterSet, indices *DownsamplingIndices) (*Residuals, []float64, error) {
	if params.Len() == 0 {
		return nil, nil, errors.NewModelError("Dataset.GenerateResiduals", "empty data", errors.ErrEmptyData)
	}
	if err := indices.Validate(d.Len()); err != nil {
		return nil, nil, err
	}

	merged, posAmp, posPhase := union(indices.Amplitude, indices.Phase)
	freqs := d.Frequencies(merged)
	ampFreqs := d.Frequencies(indices.Amplitude)
	phaseFreqs := d.Frequencies(indices.Phase)

	n := params.Len()
	nAmp, nPhase := indices.NumbersOfPoints()
	res := &Residuals{
		Amplitude: mat.NewDense(n, nAmp, nil),
		Phase:     mat.NewDense(n, nPhase, nil),
	}

	err := parallel.ForEach(ctx, n, runtime.GOMAXPROCS(0), func(i int) error {
		p := params.At(i, d)
		_, amp, phase, err := gen.EffectiveOneBodyWaveform(ctx, p, freqs)
		if err != nil {
			return errors.Wrapf(err, "sample %d", i)
		}
		pnAmp := gen.PostNewtonianAmplitude(p, ampFreqs)
		pnPhase := gen.PostNewtonianPhase(p, phaseFreqs)

		ampRow := res.Amplitude.RawRowView(i)
		for k, pos := range posAmp {
			ampRow[k] = errors.StabilizeLog(amp[pos]) - math.Log(pnAmp[k])
		}
		phaseRow := res.Phase.RawRowView(i)
		for k, pos := range posPhase {
			phaseRow[k] = phase[pos] - pnPhase[k]
		}
		return errors.CheckNumericalStability("Dataset.GenerateResiduals", ampRow, i)
	})
	if err != nil {
		return nil, nil, err
	}

	shifts, err := res.FlattenPhase(phaseFreqs)
	if err != nil {
		return nil, nil, err
	}
	return res, shifts, nil
}

// recomposeParallelThreshold is the row count above which recomposition fans out.
const recomposeParallelThreshold = 64

// RecomposeResiduals adds residuals back onto the baseline: amplitude
// exp(r)·A_pn and phase r + φ_pn, on the downsampled grids.
func (d *Dataset) RecomposeResiduals(res *Residuals, params *ParameterSet, indices *DownsamplingIndices, gen WaveformGenerator) (*FDWaveforms, error) {
	n := res.Len()
	if params.Len() != n {
		return nil, errors.NewDimensionError("Dataset.RecomposeResiduals", n, params.Len(), 0)
	}
	nAmp, nPhase := indices.NumbersOfPoints()
	if _, c := res.Amplitude.Dims(); c != nAmp {
		return nil, errors.NewDimensionError("Dataset.RecomposeResiduals", nAmp, c, 1)
	}
	if _, c := res.Phase.Dims(); c != nPhase {
		return nil, errors.NewDimensionError("Dataset.RecomposeResiduals", nPhase, c, 1)
	}

	ampFreqs := d.Frequencies(indices.Amplitude)
	phaseFreqs := d.Frequencies(indices.Phase)
	out := &FDWaveforms{
		Amplitudes: mat.NewDense(n, nAmp, nil),
		Phases:     mat.NewDense(n, nPhase, nil),
	}
	// rows are independent
	parallel.ParallelizeWithThreshold(n, recomposeParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			p := params.At(i, d)
			pnAmp := gen.PostNewtonianAmplitude(p, ampFreqs)
			pnPhase := gen.PostNewtonianPhase(p, phaseFreqs)
			ampRow := out.Amplitudes.RawRowView(i)
			for k, r := range res.Amplitude.RawRowView(i) {
				ampRow[k] = errors.StabilizeExp(r) * pnAmp[k]
			}
			phaseRow := out.Phases.RawRowView(i)
			for k, r := range res.Phase.RawRowView(i) {
				phaseRow[k] = r + pnPhase[k]
			}
		}
	})
	return out, nil
}
