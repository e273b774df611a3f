package surrogate

import (
	"context"
	"math"
	"math/cmplx"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/core/parallel"
	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/decomposition"
	"github.com/YuminosukeSato/gwsurrogate/metrics"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// ValidateModel compares a model against waveforms generated directly on
// the dense grid.
type ValidateModel struct {
	Model *Model
}

// MismatchSummary condenses a list of mismatches.
type MismatchSummary struct {
	N      int
	Mean   float64
	Median float64
	Max    float64
}

// Summarize computes the summary of mismatches.
func Summarize(mismatches []float64) MismatchSummary {
	if len(mismatches) == 0 {
		return MismatchSummary{}
	}
	sorted := append([]float64(nil), mismatches...)
	sort.Float64s(sorted)
	return MismatchSummary{
		N:      len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

// ValidationMismatches draws n parameter vectors with seed and returns the
// mismatch between the prediction of the trained model and the reference
// waveform for each of them.
func (v *ValidateModel) ValidationMismatches(ctx context.Context, n int, seed uint64) ([]float64, error) {
	m := v.Model
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.stages.Require("ValidateModel.ValidationMismatches", model.Trained); err != nil {
		return nil, err
	}
	return v.mismatches(ctx, "validation", n, seed, func(params *dataset.ParameterSet) (*dataset.Residuals, error) {
		return m.predictResidualsBulk(params, m.regressor, m.hyper)
	})
}

// PCAReconstructionMismatches measures the error of the downsampling and
// PCA stages alone: residuals of n fresh waveforms are projected onto the
// basis and reconstructed before being compared.
func (v *ValidateModel) PCAReconstructionMismatches(ctx context.Context, n int, seed uint64) ([]float64, error) {
	m := v.Model
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.stages.Require("ValidateModel.PCAReconstructionMismatches", model.PCAFit); err != nil {
		return nil, err
	}
	return v.mismatches(ctx, "pca", n, seed, func(params *dataset.ParameterSet) (*dataset.Residuals, error) {
		res, _, err := m.Dataset.GenerateResiduals(ctx, m.Generator, params, m.indices)
		if err != nil {
			return nil, err
		}
		pca := decomposition.NewPrincipalComponentAnalysisModel(m.pcaData.Components())
		coeffs, err := pca.ReduceData(res.Combined(), m.pcaData)
		if err != nil {
			return nil, err
		}
		combined, err := pca.ReconstructData(coeffs, m.pcaData)
		if err != nil {
			return nil, err
		}
		nAmp, nPhase := m.indices.NumbersOfPoints()
		return dataset.ResidualsFromCombined(combined, nAmp, nPhase)
	})
}

// mismatches requires at least the read lock. approx returns residuals on
// the downsampled grids for every row of params.
func (v *ValidateModel) mismatches(ctx context.Context, kind string, n int, seed uint64,
	approx func(*dataset.ParameterSet) (*dataset.Residuals, error)) ([]float64, error) {
	m := v.Model
	if n <= 0 {
		return nil, errors.NewValidationError("n", "must be positive", n)
	}
	start := time.Now()

	g, err := dataset.NewUniformParameterGenerator(m.Downsampling.Ranges, m.Dataset, seed)
	if err != nil {
		return nil, err
	}
	params := g.Generate(n)

	dense := dataset.FullIndices(m.Dataset.Len())
	trueRes, denseShifts, err := m.Dataset.GenerateResiduals(ctx, m.Generator, params, dense)
	if err != nil {
		return nil, errors.Wrap(err, "reference waveforms failed")
	}
	_, shifts, err := m.Dataset.GenerateResiduals(ctx, m.Generator, params, m.indices)
	if err != nil {
		return nil, errors.Wrap(err, "reference waveforms failed")
	}
	truth, err := m.Dataset.RecomposeResiduals(trueRes, params, dense, m.Generator)
	if err != nil {
		return nil, err
	}
	res, err := approx(params)
	if err != nil {
		return nil, err
	}

	// The mismatch only maximizes over a constant phase, so the reference
	// must carry the linear phase fitted on the downsampled phase grid.
	freqs := m.Dataset.FrequenciesNatural()
	for i := 0; i < n; i++ {
		dt := denseShifts[i] - shifts[i]
		row := truth.Phases.RawRowView(i)
		for k, f := range freqs {
			row[k] -= 2 * math.Pi * dt * f
		}
	}

	out := make([]float64, n)
	// a panic inside a worker goroutine would take the process down
	err = parallel.ForEach(ctx, n, m.workerCount(), func(i int) error {
		return errors.SafeExecute("ValidateModel."+kind, func() error {
			amp, phase, err := m.composeAt(params.At(i, m.Dataset), res, i, freqs)
			if err != nil {
				return err
			}
			out[i], err = metrics.Mismatch(
				polar(truth.Amplitudes.RawRowView(i), truth.Phases.RawRowView(i)),
				polar(amp, phase))
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s := Summarize(out)
	m.logger().Info("mismatches computed",
		log.OperationKey, kind, log.SamplesKey, n,
		log.MismatchKey, s.Mean, log.MaxErrorKey, s.Max,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return out, nil
}

func polar(amp, phase []float64) []complex128 {
	out := make([]complex128, len(amp))
	for i := range amp {
		out[i] = cmplx.Rect(amp[i], phase[i])
	}
	return out
}
