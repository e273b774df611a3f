package downsampling

import (
	"context"
	"math"
	"runtime"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/core/parallel"
	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// initialKnots is the number of evenly spaced knots a selection starts
// from, endpoints included.
const initialKnots = 6

// StopReason tells which condition ended a greedy selection.
type StopReason string

const (
	// StopTolerance: the worst-case error fell below the tolerance.
	StopTolerance StopReason = "tolerance"
	// StopBudget: the point budget was reached first.
	StopBudget StopReason = "budget"
)

// Tolerance is the admissible interpolation error of the amplitude
// residual (log amplitude) and the phase residual (radians).
type Tolerance struct {
	Amplitude float64
	Phase     float64
}

// QuantityReport summarizes the selection for one residual quantity.
type QuantityReport struct {
	Points     int
	MaxError   float64
	Tolerance  float64
	Iterations int
	StopReason StopReason
}

// Report summarizes a training run.
type Report struct {
	Amplitude QuantityReport
	Phase     QuantityReport
}

// ValidationReport holds the worst interpolation errors of a set of
// indices over a fresh batch of waveforms.
type ValidationReport struct {
	AmplitudeMaxError float64
	PhaseMaxError     float64
}

// GreedyDownsamplingTraining selects downsampling indices by greedy
// refinement: starting from a few evenly spaced knots, it repeatedly adds
// the points where the spline interpolation of a batch of residuals is
// worst, until the error drops below the tolerance or the point budget is
// spent.
type GreedyDownsamplingTraining struct {
	Dataset      *dataset.Dataset
	Generator    dataset.WaveformGenerator
	Ranges       dataset.ParameterRanges
	Tolerance    Tolerance
	MaxPoints    int
	Interpolator Interpolator
	Seed         uint64
	Workers      int
	Logger       log.Logger
}

// NewGreedyDownsamplingTraining returns a training with the default
// tolerance (1e-4 for both quantities), a budget of 400 points per
// quantity and not-a-knot splines.
func NewGreedyDownsamplingTraining(ds *dataset.Dataset, gen dataset.WaveformGenerator) *GreedyDownsamplingTraining {
	return &GreedyDownsamplingTraining{
		Dataset:      ds,
		Generator:    gen,
		Ranges:       dataset.DefaultParameterRanges(),
		Tolerance:    Tolerance{Amplitude: 1e-4, Phase: 1e-4},
		MaxPoints:    400,
		Interpolator: NotAKnot,
		Seed:         42,
	}
}

func (t *GreedyDownsamplingTraining) logger() log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.GetLogger()
}

func (t *GreedyDownsamplingTraining) workers() int {
	if t.Workers > 0 {
		return t.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// batch generates full-grid residuals for n parameter vectors drawn with
// the given seed.
func (t *GreedyDownsamplingTraining) batch(ctx context.Context, n int, seed uint64) (*dataset.Residuals, error) {
	if n <= 0 {
		return nil, errors.NewValueError("GreedyDownsamplingTraining", "the training batch must not be empty")
	}
	g, err := dataset.NewUniformParameterGenerator(t.Ranges, t.Dataset, seed)
	if err != nil {
		return nil, err
	}
	res, _, err := t.Dataset.GenerateResiduals(ctx, t.Generator, g.Generate(n), dataset.FullIndices(t.Dataset.Len()))
	if err != nil {
		return nil, errors.Wrap(err, "residual generation for downsampling failed")
	}
	return res, nil
}

// Train selects amplitude and phase indices from n random waveforms.
// Exhausting the point budget is reported, not returned as an error.
func (t *GreedyDownsamplingTraining) Train(ctx context.Context, n int) (*dataset.DownsamplingIndices, *Report, error) {
	logger := t.logger().With(log.StageKey, "downsampling")
	logger.Info("downsampling training started",
		log.SamplesKey, n, log.PointsKey, t.Dataset.Len(), log.RandomSeedKey, t.Seed)

	res, err := t.batch(ctx, n, t.Seed)
	if err != nil {
		return nil, nil, err
	}
	freqs := t.Dataset.FrequenciesNatural()

	ampIdx, ampReport, err := t.SelectIndices(ctx, freqs, res.Amplitude, t.Tolerance.Amplitude)
	if err != nil {
		return nil, nil, errors.Wrap(err, "amplitude selection failed")
	}
	t.report(logger, "amplitude", ampReport)

	phaseIdx, phaseReport, err := t.SelectIndices(ctx, freqs, res.Phase, t.Tolerance.Phase)
	if err != nil {
		return nil, nil, errors.Wrap(err, "phase selection failed")
	}
	t.report(logger, "phase", phaseReport)

	return &dataset.DownsamplingIndices{Amplitude: ampIdx, Phase: phaseIdx},
		&Report{Amplitude: ampReport, Phase: phaseReport}, nil
}

func (t *GreedyDownsamplingTraining) report(logger log.Logger, target string, r QuantityReport) {
	if r.StopReason == StopBudget {
		errors.Warn(&errors.DownsamplingBudgetWarning{
			Target:        target,
			Points:        r.Points,
			AchievedError: r.MaxError,
			Tolerance:     r.Tolerance,
		})
		logger.Warn("downsampling budget exhausted before reaching the tolerance",
			"target", target, log.PointsKey, r.Points, log.MaxErrorKey, r.MaxError,
			log.ToleranceKey, r.Tolerance, log.StopReasonKey, string(r.StopReason))
		return
	}
	logger.Info("downsampling converged",
		"target", target, log.PointsKey, r.Points, log.MaxErrorKey, r.MaxError,
		log.IterationKey, r.Iterations, log.StopReasonKey, string(r.StopReason))
}

// SelectIndices runs the greedy refinement for one quantity. rows holds
// one residual per row, sampled on freqs.
func (t *GreedyDownsamplingTraining) SelectIndices(ctx context.Context, freqs []float64, rows *mat.Dense, tol float64) ([]int, QuantityReport, error) {
	nRows, nPoints := rows.Dims()
	report := QuantityReport{Tolerance: tol}
	if nPoints != len(freqs) {
		return nil, report, errors.NewDimensionError("GreedyDownsamplingTraining.SelectIndices", len(freqs), nPoints, 1)
	}
	if nRows == 0 {
		return nil, report, errors.NewModelError("GreedyDownsamplingTraining.SelectIndices", "empty data", errors.ErrEmptyData)
	}
	if nPoints < MinPoints {
		return nil, report, errors.NewValueError("GreedyDownsamplingTraining.SelectIndices", "grid too small to interpolate")
	}

	budget := t.MaxPoints
	if budget <= 0 || budget > nPoints {
		budget = nPoints
	}
	budget = max(budget, min(initialKnots, nPoints))

	knots := evenlySpaced(nPoints, min(initialKnots, nPoints))
	rowMax := make([]float64, nRows)
	rowArg := make([]int, nRows)

	for {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		report.Iterations++

		kx := pick(freqs, knots)
		err := parallel.ForEach(ctx, nRows, t.workers(), func(i int) error {
			row := rows.RawRowView(i)
			sp, err := NewSpline(t.Interpolator, kx, pick(row, knots))
			if err != nil {
				return err
			}
			best, arg := 0.0, -1
			for j, f := range freqs {
				if e := math.Abs(sp.At(f) - row[j]); e > best {
					best, arg = e, j
				}
			}
			rowMax[i], rowArg[i] = best, arg
			return nil
		})
		if err != nil {
			return nil, report, err
		}

		report.Points = len(knots)
		report.MaxError = floats.Max(rowMax)
		if report.MaxError <= tol {
			report.StopReason = StopTolerance
			return knots, report, nil
		}
		if len(knots) >= budget {
			report.StopReason = StopBudget
			return knots, report, nil
		}

		next := refine(knots, rowMax, rowArg, tol, budget-len(knots))
		if len(next) == len(knots) {
			report.StopReason = StopBudget
			return knots, report, nil
		}
		knots = next
	}
}

// refine adds the worst point of every row above tol, worst first, up to
// room new knots.
func refine(knots []int, rowMax []float64, rowArg []int, tol float64, room int) []int {
	worst := make(map[int]float64)
	for i, e := range rowMax {
		if e > tol && rowArg[i] >= 0 {
			if prev, ok := worst[rowArg[i]]; !ok || e > prev {
				worst[rowArg[i]] = e
			}
		}
	}
	candidates := make([]int, 0, len(worst))
	for idx := range worst {
		candidates = append(candidates, idx)
	}
	sort.Slice(candidates, func(a, b int) bool {
		ea, eb := worst[candidates[a]], worst[candidates[b]]
		if ea != eb {
			return ea > eb
		}
		return candidates[a] < candidates[b]
	})
	if len(candidates) > room {
		candidates = candidates[:room]
	}
	out := append(append([]int(nil), knots...), candidates...)
	sort.Ints(out)
	return out
}

// ValidateIndices measures the worst interpolation error of indices over
// n fresh waveforms, drawn with a seed distinct from training.
func (t *GreedyDownsamplingTraining) ValidateIndices(ctx context.Context, indices *dataset.DownsamplingIndices, n int) (*ValidationReport, error) {
	if err := indices.Validate(t.Dataset.Len()); err != nil {
		return nil, err
	}
	res, err := t.batch(ctx, n, t.Seed+1)
	if err != nil {
		return nil, err
	}
	freqs := t.Dataset.FrequenciesNatural()

	ampErr, err := t.maxResampleError(ctx, freqs, res.Amplitude, indices.Amplitude)
	if err != nil {
		return nil, err
	}
	phaseErr, err := t.maxResampleError(ctx, freqs, res.Phase, indices.Phase)
	if err != nil {
		return nil, err
	}
	return &ValidationReport{AmplitudeMaxError: ampErr, PhaseMaxError: phaseErr}, nil
}

func (t *GreedyDownsamplingTraining) maxResampleError(ctx context.Context, freqs []float64, rows *mat.Dense, idx []int) (float64, error) {
	nRows, _ := rows.Dims()
	worst := make([]float64, nRows)
	kx := pick(freqs, idx)
	err := parallel.ForEach(ctx, nRows, t.workers(), func(i int) error {
		row := rows.RawRowView(i)
		approx, err := Resample(kx, freqs, pick(row, idx), t.Interpolator)
		if err != nil {
			return err
		}
		for j := range row {
			worst[i] = math.Max(worst[i], math.Abs(approx[j]-row[j]))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return floats.Max(worst), nil
}

// Resample interpolates values known at the frequencies of indices onto
// target, with the configured interpolator.
func (t *GreedyDownsamplingTraining) Resample(source, target, values []float64) ([]float64, error) {
	return Resample(source, target, values, t.Interpolator)
}

func evenlySpaced(n, k int) []int {
	if k <= 1 {
		return []int{0}
	}
	out := make([]int, 0, k)
	for i := 0; i < k; i++ {
		idx := int(math.Round(float64(i) * float64(n-1) / float64(k-1)))
		if len(out) > 0 && idx <= out[len(out)-1] {
			continue
		}
		out = append(out, idx)
	}
	return out
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = values[i]
	}
	return out
}
