package surrogate

import (
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/decomposition"
	"github.com/YuminosukeSato/gwsurrogate/neural"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// PredictResidualsBulk predicts residuals on the downsampled grids for
// every row of params with the given regressor. hyper supplies the PCA
// weighting exponent the regressor was trained with.
func (m *Model) PredictResidualsBulk(params *dataset.ParameterSet, reg model.Regressor, hyper *neural.Hyperparameters) (*dataset.Residuals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.predictResidualsBulk(params, reg, hyper)
}

// predictResidualsBulk requires at least the read lock.
func (m *Model) predictResidualsBulk(params *dataset.ParameterSet, reg model.Regressor, hyper *neural.Hyperparameters) (*dataset.Residuals, error) {
	if err := m.stages.Require("Model.PredictResidualsBulk", model.DatasetGenerated); err != nil {
		return nil, err
	}
	if reg == nil || hyper == nil {
		return nil, errors.NewStageError("Model.PredictResidualsBulk", "regression", "no regressor was given")
	}
	if params.Len() == 0 {
		return nil, errors.NewModelError("Model.PredictResidualsBulk", "empty data", errors.ErrEmptyData)
	}

	X, err := m.paramScaler.Transform(params.Array())
	if err != nil {
		return nil, err
	}
	pred, err := reg.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "regressor prediction failed")
	}

	weights := componentWeights(m.pcaData, hyper.PCExponent)
	n, k := pred.Dims()
	if k != len(weights) {
		return nil, errors.NewDimensionError("Model.PredictResidualsBulk", len(weights), k, 1)
	}
	if err := errors.CheckMatrix("Model.PredictResidualsBulk", pred, n, k, 0); err != nil {
		return nil, err
	}
	coeffs := weightedRows(denseOf(pred), nil, inverse(weights))

	pca := decomposition.NewPrincipalComponentAnalysisModel(m.pcaData.Components())
	combined, err := pca.ReconstructData(coeffs, m.pcaData)
	if err != nil {
		return nil, err
	}
	nAmp, nPhase := m.indices.NumbersOfPoints()
	res, err := dataset.ResidualsFromCombined(combined, nAmp, nPhase)
	if err != nil {
		return nil, err
	}
	if res.Len() != n {
		return nil, errors.NewDimensionError("Model.PredictResidualsBulk", n, res.Len(), 0)
	}
	return res, nil
}

func denseOf(a mat.Matrix) *mat.Dense {
	if d, ok := a.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(a)
}

func inverse(w []float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = 1 / v
	}
	return out
}

// PredictWaveformsBulk predicts amplitude and phase on the downsampled
// grids with the installed regressor.
func (m *Model) PredictWaveformsBulk(params *dataset.ParameterSet) (*dataset.FDWaveforms, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.stages.Require("Model.PredictWaveformsBulk", model.Trained); err != nil {
		return nil, err
	}
	res, err := m.predictResidualsBulk(params, m.regressor, m.hyper)
	if err != nil {
		return nil, err
	}
	return m.Dataset.RecomposeResiduals(res, params, m.indices, m.Generator)
}

// Predict returns the plus and cross polarizations at freqsHz, in 1/Hz.
//
// Residuals are interpolated from the downsampled grids onto the target
// frequencies in natural units of the requested total mass; the baseline
// is evaluated there analytically. The phase is shifted by
// φ_ref − 2π·Δt·f. Frequencies outside the training band are extrapolated
// and never rejected.
func (m *Model) Predict(freqsHz []float64, p dataset.ParametersWithExtrinsic) (hp, hc []complex128, err error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	if len(freqsHz) == 0 {
		return nil, nil, errors.NewModelError("Model.Predict", "empty data", errors.ErrEmptyData)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.stages.Require("Model.Predict", model.Trained); err != nil {
		return nil, nil, err
	}
	start := time.Now()

	intrinsic := p.Intrinsic(m.Dataset)
	params := dataset.ParameterSetFromList([]dataset.WaveformParameters{intrinsic})
	res, err := m.predictResidualsBulk(params, m.regressor, m.hyper)
	if err != nil {
		return nil, nil, err
	}

	target := make([]float64, len(freqsHz))
	ms := p.MassSumSeconds()
	for i, f := range freqsHz {
		target[i] = f * ms
	}
	amp, phase, err := m.composeAt(intrinsic, res, 0, target)
	if err != nil {
		return nil, nil, err
	}

	pre := m.Dataset.Prefactor(intrinsic.Eta(), p.TotalMass) / p.DistanceMpc
	cosi := math.Cos(p.Inclination)
	prePlus := complex((1+cosi*cosi)/2*pre, 0)
	preCross := complex(0, -cosi*pre)

	hp = make([]complex128, len(freqsHz))
	hc = make([]complex128, len(freqsHz))
	for i, f := range freqsHz {
		phi := phase[i] + p.ReferencePhase - 2*math.Pi*p.TimeShift*f
		h := complex(amp[i], 0) * cmplx.Exp(complex(0, phi))
		hp[i] = prePlus * h
		hc[i] = preCross * h
	}

	m.Telemetry.AddPredictions(1)
	m.logger().Debug("waveform predicted",
		log.OperationKey, "predict", log.PointsKey, len(freqsHz),
		log.DurationMsKey, time.Since(start).Milliseconds())
	return hp, hc, nil
}

// composeAt interpolates row i of res onto target (natural units) and adds
// the analytic baseline: amplitude exp(r)·A_pn and phase r + φ_pn.
// It requires at least the read lock.
func (m *Model) composeAt(p dataset.WaveformParameters, res *dataset.Residuals, i int, target []float64) (amp, phase []float64, err error) {
	ampRes, err := m.Downsampling.Resample(m.Dataset.Frequencies(m.indices.Amplitude), target, res.Amplitude.RawRowView(i))
	if err != nil {
		return nil, nil, errors.Wrap(err, "amplitude resampling failed")
	}
	phaseRes, err := m.Downsampling.Resample(m.Dataset.Frequencies(m.indices.Phase), target, res.Phase.RawRowView(i))
	if err != nil {
		return nil, nil, errors.Wrap(err, "phase resampling failed")
	}
	amp = m.Generator.PostNewtonianAmplitude(p, target)
	phase = m.Generator.PostNewtonianPhase(p, target)
	for k := range target {
		amp[k] *= errors.StabilizeExp(ampRes[k])
		phase[k] += phaseRes[k]
	}
	return amp, phase, nil
}
