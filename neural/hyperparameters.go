package neural

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Hyperparameters は回帰器の構成と PCA 係数の重み付け指数
type Hyperparameters struct {
	// PCExponent は主成分係数に掛ける重み λ^PCExponent の指数
	PCExponent float64 `yaml:"pc_exponent"`
	// NTrain は学習に使う波形数
	NTrain int `yaml:"n_train"`

	HiddenLayerSizes   []int      `yaml:"hidden_layer_sizes"`
	Activation         Activation `yaml:"activation"`
	Alpha              float64    `yaml:"alpha"`
	BatchSize          int        `yaml:"batch_size"`
	LearningRateInit   float64    `yaml:"learning_rate_init"`
	Tol                float64    `yaml:"tol"`
	ValidationFraction float64    `yaml:"validation_fraction"`
	NIterNoChange      int        `yaml:"n_iter_no_change"`
	MaxIter            int        `yaml:"max_iter"`
	EarlyStopping      bool       `yaml:"early_stopping"`
}

// DefaultHyperparameters は固定のデフォルト値を返す
func DefaultHyperparameters(nTrain int) *Hyperparameters {
	if nTrain <= 0 {
		nTrain = 200
	}
	return &Hyperparameters{
		PCExponent:         0.2,
		NTrain:             nTrain,
		HiddenLayerSizes:   []int{50, 50},
		Activation:         ReLU,
		Alpha:              1e-4,
		BatchSize:          200,
		LearningRateInit:   1e-3,
		Tol:                1e-9,
		ValidationFraction: 0.1,
		NIterNoChange:      50,
		MaxIter:            1000,
		EarlyStopping:      true,
	}
}

// Clone はスライスを含めて複製する
func (h *Hyperparameters) Clone() *Hyperparameters {
	c := *h
	c.HiddenLayerSizes = append([]int(nil), h.HiddenLayerSizes...)
	return &c
}

// WithMaxIterScaled は MaxIter を factor 倍したコピーを返す
func (h *Hyperparameters) WithMaxIterScaled(factor int) *Hyperparameters {
	c := h.Clone()
	c.MaxIter *= factor
	return c
}

// Validate は値の範囲を検査する
func (h *Hyperparameters) Validate() error {
	if h == nil {
		return errors.NewValidationError("hyperparameters", "must not be nil", nil)
	}
	if err := h.Activation.Validate(); err != nil {
		return err
	}
	switch {
	case len(h.HiddenLayerSizes) == 0:
		return errors.NewValidationError("hidden_layer_sizes", "at least one hidden layer is required", h.HiddenLayerSizes)
	case h.NTrain <= 0:
		return errors.NewValidationError("n_train", "must be positive", h.NTrain)
	case h.PCExponent < 0:
		return errors.NewValidationError("pc_exponent", "must not be negative", h.PCExponent)
	case h.Alpha < 0:
		return errors.NewValidationError("alpha", "must not be negative", h.Alpha)
	case h.BatchSize <= 0:
		return errors.NewValidationError("batch_size", "must be positive", h.BatchSize)
	case h.LearningRateInit <= 0:
		return errors.NewValidationError("learning_rate_init", "must be positive", h.LearningRateInit)
	case h.Tol < 0:
		return errors.NewValidationError("tol", "must not be negative", h.Tol)
	case h.ValidationFraction < 0 || h.ValidationFraction >= 1:
		return errors.NewValidationError("validation_fraction", "must lie in [0, 1)", h.ValidationFraction)
	case h.NIterNoChange <= 0:
		return errors.NewValidationError("n_iter_no_change", "must be positive", h.NIterNoChange)
	case h.MaxIter <= 0:
		return errors.NewValidationError("max_iter", "must be positive", h.MaxIter)
	}
	for _, s := range h.HiddenLayerSizes {
		if s <= 0 {
			return errors.NewValidationError("hidden_layer_sizes", "layer sizes must be positive", h.HiddenLayerSizes)
		}
	}
	return nil
}

// NewRegressor は未学習の MLPRegressor を作成する
func (h *Hyperparameters) NewRegressor(seed uint64) *MLPRegressor {
	return &MLPRegressor{
		HiddenLayerSizes:   append([]int(nil), h.HiddenLayerSizes...),
		Activation:         h.Activation,
		Alpha:              h.Alpha,
		BatchSize:          h.BatchSize,
		LearningRateInit:   h.LearningRateInit,
		MaxIter:            h.MaxIter,
		Tol:                h.Tol,
		EarlyStopping:      h.EarlyStopping,
		ValidationFraction: h.ValidationFraction,
		NIterNoChange:      h.NIterNoChange,
		Seed:               seed,
	}
}

// Trial はハイパーパラメータ探索の一試行。
// Params の層構成は n_layers と size_layer_{i} で表す。
type Trial struct {
	Params      map[string]float64 `yaml:"params"`
	Categorical map[string]string  `yaml:"categorical,omitempty"`
	// Values[0] は精度の指標（小さいほど良い）、Values[1] は学習コスト
	Values []float64 `yaml:"values"`
}

func (t Trial) intParam(name string) (int, error) {
	v, ok := t.Params[name]
	if !ok {
		return 0, errors.NewValidationError(name, "missing from trial parameters", nil)
	}
	if v != math.Trunc(v) {
		return 0, errors.NewValidationError(name, "must be an integer", v)
	}
	return int(v), nil
}

func (t Trial) floatParam(name string) (float64, error) {
	v, ok := t.Params[name]
	if !ok {
		return 0, errors.NewValidationError(name, "missing from trial parameters", nil)
	}
	return v, nil
}

// HyperparametersFromTrial は試行のパラメータから Hyperparameters を組み立てる
func HyperparametersFromTrial(t Trial) (*Hyperparameters, error) {
	nLayers, err := t.intParam("n_layers")
	if err != nil {
		return nil, err
	}
	h := DefaultHyperparameters(0)
	h.HiddenLayerSizes = make([]int, nLayers)
	for i := range h.HiddenLayerSizes {
		if h.HiddenLayerSizes[i], err = t.intParam(fmt.Sprintf("size_layer_%d", i)); err != nil {
			return nil, err
		}
	}
	if a, ok := t.Categorical["activation"]; ok {
		h.Activation = Activation(a)
	}

	ints := map[string]*int{
		"n_train":          &h.NTrain,
		"batch_size":       &h.BatchSize,
		"n_iter_no_change": &h.NIterNoChange,
	}
	for name, dst := range ints {
		if *dst, err = t.intParam(name); err != nil {
			return nil, err
		}
	}
	floats := map[string]*float64{
		"pc_exponent":         &h.PCExponent,
		"alpha":               &h.Alpha,
		"learning_rate_init":  &h.LearningRateInit,
		"tol":                 &h.Tol,
		"validation_fraction": &h.ValidationFraction,
	}
	for name, dst := range floats {
		if *dst, err = t.floatParam(name); err != nil {
			return nil, err
		}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func logUniform(rng *rand.Rand, lo, hi float64) float64 {
	return math.Exp(math.Log(lo) + rng.Float64()*(math.Log(hi)-math.Log(lo)))
}

func intRange(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

// SampleTrial は探索空間から一様（スケールによっては対数一様）に試行を引く
func SampleTrial(rng *rand.Rand, nTrainMax int) Trial {
	nTrainMax = max(nTrainMax, 1)
	nLayers := intRange(rng, 2, 4)
	params := map[string]float64{"n_layers": float64(nLayers)}
	for i := 0; i < nLayers; i++ {
		params[fmt.Sprintf("size_layer_%d", i)] = float64(intRange(rng, 10, 100))
	}
	params["alpha"] = logUniform(rng, 1e-6, 1e-1)
	params["batch_size"] = float64(intRange(rng, 100, 200))
	params["learning_rate_init"] = logUniform(rng, 2e-4, 5e-2)
	params["tol"] = logUniform(rng, 1e-15, 1e-7)
	params["validation_fraction"] = 0.05 + rng.Float64()*0.15
	params["n_iter_no_change"] = math.Round(logUniform(rng, 40, 100))
	params["pc_exponent"] = logUniform(rng, 1e-3, 1)
	params["n_train"] = float64(intRange(rng, min(50, nTrainMax), nTrainMax))

	activations := []Activation{ReLU, Tanh, Logistic}
	return Trial{
		Params:      params,
		Categorical: map[string]string{"activation": string(activations[rng.IntN(len(activations))])},
	}
}
