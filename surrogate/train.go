package surrogate

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/decomposition"
	"github.com/YuminosukeSato/gwsurrogate/metrics"
	"github.com/YuminosukeSato/gwsurrogate/neural"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// componentWeights returns λ_i^exponent for every eigenvalue. Nonpositive
// eigenvalues get weight 1 so the inverse stays finite.
func componentWeights(data *decomposition.PrincipalComponentData, exponent float64) []float64 {
	w := make([]float64, len(data.Eigenvalues))
	for i, l := range data.Eigenvalues {
		if l > 0 {
			w[i] = math.Pow(l, exponent)
		} else {
			w[i] = 1
		}
	}
	return w
}

// TrainNN fits a fresh regressor from scaled parameters to weighted PCA
// coefficients and returns it without installing it. indices selects
// training rows; nil uses every row.
func (m *Model) TrainNN(ctx context.Context, hyper *neural.Hyperparameters, indices []int) (*neural.MLPRegressor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainNN(ctx, hyper, indices)
}

// trainNN requires at least the read lock.
func (m *Model) trainNN(ctx context.Context, hyper *neural.Hyperparameters, indices []int) (reg *neural.MLPRegressor, err error) {
	start := time.Now()
	defer func() { m.Telemetry.ObserveStage("regression", start, err) }()

	if err := hyper.Validate(); err != nil {
		return nil, err
	}
	reduced, err := m.reducedResiduals()
	if err != nil {
		return nil, err
	}

	params := m.trainingParameters
	if indices != nil {
		if params, err = params.Subset(indices); err != nil {
			return nil, err
		}
		if params.Len() == 0 {
			return nil, errors.NewModelError("Model.TrainNN", "empty data", errors.ErrEmptyData)
		}
	}
	X, err := m.paramScaler.Transform(params.Array())
	if err != nil {
		return nil, err
	}

	weights := componentWeights(m.pcaData, hyper.PCExponent)
	Y := weightedRows(reduced, indices, weights)

	reg = hyper.NewRegressor(m.Seed)
	reg.SetLogger(m.logger().With(log.StageKey, "regression"))
	if err := reg.FitContext(ctx, X, Y); err != nil {
		return nil, errors.Wrap(err, "regression stage failed")
	}
	fitted, err := reg.Predict(X)
	if err != nil {
		return nil, err
	}
	rmse, err := metrics.RMSE(Y, fitted)
	if err != nil {
		return nil, err
	}
	mae, err := metrics.MAE(Y, fitted)
	if err != nil {
		return nil, err
	}
	m.logger().Info("regressor trained",
		log.StageKey, "regression", log.SamplesKey, params.Len(),
		log.IterationKey, reg.NIter, log.R2ScoreKey, reg.BestScore,
		log.RMSEKey, rmse, log.MAEKey, mae,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return reg, nil
}

// weightedRows selects rows of src (all when idx is nil) and multiplies
// column j by w[j].
func weightedRows(src *mat.Dense, idx []int, w []float64) *mat.Dense {
	n, c := src.Dims()
	if idx == nil {
		idx = make([]int, n)
		for i := range idx {
			idx[i] = i
		}
	}
	out := mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		row := out.RawRowView(k)
		for j, v := range src.RawRowView(i) {
			row[j] = v * w[j]
		}
	}
	return out
}

// SetHyperAndTrainNN trains on the whole training dataset and installs the
// regressor. A nil hyper selects the best tabulated trial for the training
// size, falling back to the fixed defaults. max_iter is multiplied by
// MaxIterScale: a final training should not stop on the iteration budget.
func (m *Model) SetHyperAndTrainNN(ctx context.Context, hyper *neural.Hyperparameters) error {
	m.mu.RLock()
	if err := m.stages.Require("Model.SetHyperAndTrainNN", model.DatasetGenerated); err != nil {
		m.mu.RUnlock()
		return err
	}
	if hyper == nil {
		hyper = neural.DefaultHyperparametersFor(m.TrialTable, m.trainingParameters.Len())
	}
	hyper = hyper.WithMaxIterScaled(m.MaxIterScale)
	version := m.version
	reg, err := m.trainNN(ctx, hyper, nil)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != version {
		return errors.NewValueError("Model.SetHyperAndTrainNN", "the training data changed while the regressor was being trained")
	}
	m.regressor, m.hyper = reg, hyper
	return m.stages.Complete("Model.SetHyperAndTrainNN", model.Trained)
}
