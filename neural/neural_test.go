package neural

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/metrics"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// smoothData returns inputs in [-1, 1]^2 and two targets: an affine map and a product.
func smoothData(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	X := mat.NewDense(n, 2, nil)
	Y := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		a, b := 2*rng.Float64()-1, 2*rng.Float64()-1
		X.SetRow(i, []float64{a, b})
		Y.SetRow(i, []float64{0.5 + 2*a - b, a * b})
	}
	return X, Y
}

func smallRegressor(seed uint64) *MLPRegressor {
	return &MLPRegressor{
		HiddenLayerSizes: []int{16},
		Activation:       Tanh,
		Alpha:            1e-6,
		BatchSize:        32,
		LearningRateInit: 1e-2,
		MaxIter:          400,
		Tol:              1e-12,
		NIterNoChange:    50,
		Seed:             seed,
	}
}

func silenceWarnings(t *testing.T) *[]error {
	t.Helper()
	var got []error
	errors.SetWarningHandler(func(w error) { got = append(got, w) })
	t.Cleanup(func() { errors.SetWarningHandler(nil) })
	return &got
}

func TestActivation(t *testing.T) {
	for _, a := range []Activation{ReLU, Tanh, Logistic} {
		assert.NoError(t, a.Validate())
	}
	assert.Error(t, Activation("softplus").Validate())

	assert.Equal(t, 0.0, ReLU.apply(-2))
	assert.Equal(t, 3.0, ReLU.apply(3))
	assert.InDelta(t, 0.5, Logistic.apply(0), 1e-15)

	// derivative takes the activated value
	out := Tanh.apply(0.3)
	assert.InDelta(t, 1/math.Pow(math.Cosh(0.3), 2), Tanh.derivative(out), 1e-12)
	out = Logistic.apply(-1.2)
	assert.InDelta(t, out*(1-out), Logistic.derivative(out), 1e-15)

	assert.Greater(t, ReLU.initBound(4, 4), Logistic.initBound(4, 4))
}

func TestEarlyStopping(t *testing.T) {
	es := newEarlyStopping(2, 0.1, true)
	improved, stop := es.update(1, 1.0)
	assert.True(t, improved)
	assert.False(t, stop)

	// better but by less than tol: counted as no improvement
	improved, stop = es.update(2, 0.95)
	assert.True(t, improved)
	assert.False(t, stop)
	_, stop = es.update(3, 0.99)
	assert.False(t, stop)
	_, stop = es.update(4, 0.97)
	assert.True(t, stop)
	assert.Equal(t, 0.95, es.best)
	assert.Equal(t, 2, es.bestEpoch)

	es = newEarlyStopping(1, 0, false)
	es.update(1, 0.2)
	improved, _ = es.update(2, 0.5)
	assert.True(t, improved)
	assert.Equal(t, 0.5, es.best)
}

func TestMLPRegressorFitsSmoothTargets(t *testing.T) {
	silenceWarnings(t)
	X, Y := smoothData(400, 1)
	reg := smallRegressor(7)
	require.NoError(t, reg.Fit(X, Y))
	assert.True(t, reg.IsFitted())
	assert.NotEmpty(t, reg.LossCurve)
	assert.Less(t, reg.LossCurve[len(reg.LossCurve)-1], reg.LossCurve[0])

	Xt, Yt := smoothData(100, 99)
	pred, err := reg.Predict(Xt)
	require.NoError(t, err)
	r, c := pred.Dims()
	assert.Equal(t, 100, r)
	assert.Equal(t, 2, c)

	score, err := metrics.R2Score(Yt, pred)
	require.NoError(t, err)
	assert.Greater(t, score, 0.9)
}

func TestMLPRegressorDeterministic(t *testing.T) {
	silenceWarnings(t)
	X, Y := smoothData(120, 2)
	a, b := smallRegressor(3), smallRegressor(3)
	a.MaxIter, b.MaxIter = 30, 30
	require.NoError(t, a.Fit(X, Y))
	require.NoError(t, b.Fit(X, Y))

	pa, err := a.Predict(X)
	require.NoError(t, err)
	pb, err := b.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pa, pb))

	c := smallRegressor(4)
	c.MaxIter = 30
	require.NoError(t, c.Fit(X, Y))
	pc, err := c.Predict(X)
	require.NoError(t, err)
	assert.False(t, mat.Equal(pa, pc))
}

func TestMLPRegressorEarlyStoppingOnValidation(t *testing.T) {
	warnings := silenceWarnings(t)
	X, Y := smoothData(200, 3)
	reg := smallRegressor(5)
	reg.EarlyStopping = true
	reg.ValidationFraction = 0.2
	reg.NIterNoChange = 3
	// an R² gain of 10 is impossible, so every epoch after the first counts as stale
	reg.Tol = 10

	require.NoError(t, reg.Fit(X, Y))
	assert.True(t, reg.Converged)
	assert.Equal(t, 5, reg.NIter)
	assert.LessOrEqual(t, reg.BestScore, 1.0)
	assert.Empty(t, *warnings)
}

func TestMLPRegressorConvergenceWarning(t *testing.T) {
	warnings := silenceWarnings(t)
	X, Y := smoothData(50, 4)
	reg := smallRegressor(1)
	reg.MaxIter = 3

	require.NoError(t, reg.Fit(X, Y))
	assert.False(t, reg.Converged)
	require.Len(t, *warnings, 1)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As((*warnings)[0], &cw))
	assert.Equal(t, 3, cw.Iterations)
}

func TestMLPRegressorErrors(t *testing.T) {
	reg := smallRegressor(1)
	_, err := reg.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	err = reg.Fit(mat.NewDense(3, 2, nil), mat.NewDense(4, 1, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	bad := smallRegressor(1)
	bad.Activation = "identity"
	assert.Error(t, bad.Fit(mat.NewDense(3, 2, nil), mat.NewDense(3, 1, nil)))

	bad = smallRegressor(1)
	bad.MaxIter = 0
	var ve *errors.ValidationError
	assert.True(t, errors.As(bad.Fit(mat.NewDense(3, 2, nil), mat.NewDense(3, 1, nil)), &ve))

	silenceWarnings(t)
	X, Y := smoothData(20, 5)
	reg.MaxIter = 2
	require.NoError(t, reg.Fit(X, Y))
	_, err = reg.Predict(mat.NewDense(1, 3, nil))
	assert.True(t, errors.As(err, &dimErr))
}

func TestMLPRegressorGobRoundTrip(t *testing.T) {
	silenceWarnings(t)
	X, Y := smoothData(60, 6)
	reg := smallRegressor(2)
	reg.MaxIter = 20
	require.NoError(t, reg.Fit(X, Y))

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(reg, &buf))
	var loaded MLPRegressor
	require.NoError(t, model.LoadModelFromReader(&loaded, &buf))

	assert.True(t, loaded.IsFitted())
	want, err := reg.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestDefaultHyperparameters(t *testing.T) {
	h := DefaultHyperparameters(0)
	require.NoError(t, h.Validate())
	assert.Equal(t, []int{50, 50}, h.HiddenLayerSizes)
	assert.Equal(t, ReLU, h.Activation)
	assert.Equal(t, 200, h.NTrain)
	assert.Equal(t, 0.2, h.PCExponent)
	assert.Equal(t, 1000, h.MaxIter)

	scaled := h.WithMaxIterScaled(10)
	assert.Equal(t, 10000, scaled.MaxIter)
	assert.Equal(t, 1000, h.MaxIter)
	scaled.HiddenLayerSizes[0] = 7
	assert.Equal(t, 50, h.HiddenLayerSizes[0])

	reg := h.NewRegressor(11)
	assert.Equal(t, h.HiddenLayerSizes, reg.HiddenLayerSizes)
	assert.Equal(t, uint64(11), reg.Seed)
	assert.True(t, reg.EarlyStopping)
	assert.False(t, reg.IsFitted())

	bad := h.Clone()
	bad.ValidationFraction = 1
	assert.Error(t, bad.Validate())
	bad = h.Clone()
	bad.HiddenLayerSizes = nil
	assert.Error(t, bad.Validate())
	var nilHyper *Hyperparameters
	assert.Error(t, nilHyper.Validate())
}

func TestHyperparametersFromTrial(t *testing.T) {
	trial := Trial{
		Params: map[string]float64{
			"n_layers": 3, "size_layer_0": 30, "size_layer_1": 20, "size_layer_2": 10,
			"n_train": 80, "alpha": 1e-5, "batch_size": 120, "learning_rate_init": 2e-3,
			"tol": 1e-12, "validation_fraction": 0.15, "n_iter_no_change": 60, "pc_exponent": 0.05,
		},
		Categorical: map[string]string{"activation": "logistic"},
		Values:      []float64{-3, 10},
	}
	h, err := HyperparametersFromTrial(trial)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 20, 10}, h.HiddenLayerSizes)
	assert.Equal(t, Logistic, h.Activation)
	assert.Equal(t, 80, h.NTrain)
	assert.Equal(t, 120, h.BatchSize)
	assert.Equal(t, 60, h.NIterNoChange)
	assert.Equal(t, 0.05, h.PCExponent)
	assert.Equal(t, 1000, h.MaxIter)

	delete(trial.Params, "size_layer_2")
	_, err = HyperparametersFromTrial(trial)
	assert.Error(t, err)
}

func TestSampleTrialWithinSearchSpace(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 9))
	for i := 0; i < 50; i++ {
		trial := SampleTrial(rng, 300)
		h, err := HyperparametersFromTrial(trial)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(h.HiddenLayerSizes), 2)
		assert.LessOrEqual(t, len(h.HiddenLayerSizes), 4)
		assert.GreaterOrEqual(t, h.NTrain, 50)
		assert.LessOrEqual(t, h.NTrain, 300)
		assert.GreaterOrEqual(t, h.Alpha, 1e-6)
		assert.LessOrEqual(t, h.Alpha, 1e-1)
		assert.GreaterOrEqual(t, h.NIterNoChange, 40)
	}
}

func TestDefaultTrialTable(t *testing.T) {
	table, err := DefaultTrialTable()
	require.NoError(t, err)
	again, err := DefaultTrialTable()
	require.NoError(t, err)
	assert.Same(t, table, again)
	assert.Equal(t, TrialTableVersion, table.Version)
	require.NotEmpty(t, table.Trials)

	for _, tr := range table.Trials {
		_, err := HyperparametersFromTrial(tr)
		assert.NoError(t, err)
	}
}

func TestBestTrialUnderN(t *testing.T) {
	table := &TrialTable{Version: 1, Trials: []Trial{
		trialWith(50, -2.0),
		trialWith(100, -3.0),
		trialWith(400, -4.0),
	}}

	h, err := table.BestTrialUnderN(150)
	require.NoError(t, err)
	assert.Equal(t, 100, h.NTrain)

	h, err = table.BestTrialUnderN(1000)
	require.NoError(t, err)
	assert.Equal(t, 400, h.NTrain)

	_, err = table.BestTrialUnderN(10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 10 training waveforms")

	assert.Equal(t, 100, DefaultHyperparametersFor(table, 150).NTrain)
	assert.Equal(t, DefaultHyperparameters(0), DefaultHyperparametersFor(table, 10))
	assert.Equal(t, DefaultHyperparameters(0), DefaultHyperparametersFor(nil, 10))
}

func trialWith(nTrain int, accuracy float64) Trial {
	return Trial{
		Params: map[string]float64{
			"n_layers": 2, "size_layer_0": 20, "size_layer_1": 20,
			"n_train": float64(nTrain), "alpha": 1e-4, "batch_size": 150, "learning_rate_init": 1e-3,
			"tol": 1e-10, "validation_fraction": 0.1, "n_iter_no_change": 50, "pc_exponent": 0.1,
		},
		Categorical: map[string]string{"activation": "relu"},
		Values:      []float64{accuracy, float64(nTrain)},
	}
}

func TestParseTrialTableVersion(t *testing.T) {
	_, err := ParseTrialTable([]byte("version: 2\ntrials: []\n"))
	var ns *errors.NotSupportedError
	assert.True(t, errors.As(err, &ns))

	_, err = ParseTrialTable([]byte("version: [\n"))
	assert.Error(t, err)
}
