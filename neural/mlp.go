package neural

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/metrics"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// MLPRegressor は全結合ニューラルネットワークによる多出力回帰器
//
// 隠れ層は Activation、出力層は恒等写像。Adam によるミニバッチ学習で、
// L2 正則化 Alpha を加えた二乗誤差を最小化する。EarlyStopping が有効な場合は
// 検証用に分けたデータの R² で停止を判定し、最良のエポックの重みを残す。
type MLPRegressor struct {
	model.BaseEstimator

	HiddenLayerSizes   []int
	Activation         Activation
	Alpha              float64
	BatchSize          int
	LearningRateInit   float64
	MaxIter            int
	Tol                float64
	EarlyStopping      bool
	ValidationFraction float64
	NIterNoChange      int
	Seed               uint64

	// Coefs[l] は層 l から l+1 への重み (fan_in × fan_out)
	Coefs []*mat.Dense
	// Intercepts[l] は層 l+1 のバイアス
	Intercepts [][]float64

	NFeatures int
	NOutputs  int
	NIter     int
	LossCurve []float64
	BestScore float64
	Converged bool

	logger log.Logger
}

var _ model.Regressor = (*MLPRegressor)(nil)

// SetLogger はログ出力先を設定する（gob では保存されない）
func (m *MLPRegressor) SetLogger(l log.Logger) {
	m.logger = l
}

func (m *MLPRegressor) currentLogger() log.Logger {
	if m.logger != nil {
		return m.logger
	}
	return log.GetLogger()
}

// Fit は model.Fitter を実装する
func (m *MLPRegressor) Fit(X, Y mat.Matrix) error {
	return m.FitContext(context.Background(), X, Y)
}

// FitContext はエポック毎にキャンセルを確認しながら学習する
func (m *MLPRegressor) FitContext(ctx context.Context, X, Y mat.Matrix) (err error) {
	defer errors.Recover(&err, "MLPRegressor.Fit")

	n, nf := X.Dims()
	ny, nt := Y.Dims()
	if n == 0 || nf == 0 || nt == 0 {
		return errors.NewModelError("MLPRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if ny != n {
		return errors.NewDimensionError("MLPRegressor.Fit", n, ny, 0)
	}
	if err := m.validate(); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(m.Seed, m.Seed^0x5851f42d4c957f2d))
	m.NFeatures, m.NOutputs = nf, nt
	m.initialize(rng)

	trainIdx, valIdx := m.split(rng, n)
	Xd, Yd := mat.DenseCopyOf(X), mat.DenseCopyOf(Y)
	var Xval, Yval *mat.Dense
	if len(valIdx) > 0 {
		Xval, Yval = rows(Xd, valIdx), rows(Yd, valIdx)
	}
	useValidation := Xval != nil

	opt := newAdam(m.Coefs, m.Intercepts, m.LearningRateInit)
	stopper := newEarlyStopping(m.NIterNoChange, m.Tol, !useValidation)
	var bestCoefs []*mat.Dense
	var bestIntercepts [][]float64

	batch := m.BatchSize
	if batch <= 0 || batch > len(trainIdx) {
		batch = len(trainIdx)
	}

	m.LossCurve = m.LossCurve[:0]
	m.Converged = false
	for epoch := 1; epoch <= m.MaxIter; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })

		epochLoss := 0.0
		for start := 0; start < len(trainIdx); start += batch {
			end := min(start+batch, len(trainIdx))
			xb, yb := rows(Xd, trainIdx[start:end]), rows(Yd, trainIdx[start:end])
			loss := m.step(opt, xb, yb)
			epochLoss += loss * float64(end-start)
		}
		epochLoss /= float64(len(trainIdx))
		if err := errors.CheckScalar("MLPRegressor.Fit", epochLoss, epoch); err != nil {
			return err
		}
		m.LossCurve = append(m.LossCurve, epochLoss)
		m.NIter = epoch

		score := epochLoss
		if useValidation {
			pred := m.predictDense(Xval)
			score, err = metrics.R2Score(Yval, pred)
			if err != nil {
				return err
			}
		}
		improvedBest, stop := stopper.update(epoch, score)
		if useValidation && improvedBest {
			bestCoefs, bestIntercepts = cloneParams(m.Coefs, m.Intercepts)
		}
		if stop {
			m.Converged = true
			break
		}
	}

	if useValidation && bestCoefs != nil {
		m.Coefs, m.Intercepts = bestCoefs, bestIntercepts
	}
	m.BestScore = stopper.best

	if !m.Converged {
		errors.Warn(errors.NewConvergenceWarning("MLPRegressor", m.MaxIter,
			"maximum iterations reached and the optimization hasn't converged yet"))
	}
	m.currentLogger().Debug("mlp fitted",
		log.SamplesKey, n, log.FeaturesKey, nf, log.TargetsKey, nt,
		log.IterationKey, m.NIter, log.LossKey, m.LossCurve[len(m.LossCurve)-1])

	m.SetFitted()
	return nil
}

func (m *MLPRegressor) validate() error {
	if err := m.Activation.Validate(); err != nil {
		return err
	}
	switch {
	case m.MaxIter <= 0:
		return errors.NewValidationError("max_iter", "must be positive", m.MaxIter)
	case m.LearningRateInit <= 0:
		return errors.NewValidationError("learning_rate_init", "must be positive", m.LearningRateInit)
	case m.Alpha < 0:
		return errors.NewValidationError("alpha", "must not be negative", m.Alpha)
	case m.ValidationFraction < 0 || m.ValidationFraction >= 1:
		return errors.NewValidationError("validation_fraction", "must lie in [0, 1)", m.ValidationFraction)
	}
	for _, s := range m.HiddenLayerSizes {
		if s <= 0 {
			return errors.NewValidationError("hidden_layer_sizes", "layer sizes must be positive", m.HiddenLayerSizes)
		}
	}
	return nil
}

func (m *MLPRegressor) initialize(rng *rand.Rand) {
	sizes := append(append([]int{m.NFeatures}, m.HiddenLayerSizes...), m.NOutputs)
	m.Coefs = make([]*mat.Dense, len(sizes)-1)
	m.Intercepts = make([][]float64, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		bound := m.Activation.initBound(sizes[l], sizes[l+1])
		w := mat.NewDense(sizes[l], sizes[l+1], nil)
		raw := w.RawMatrix().Data
		for i := range raw {
			raw[i] = (2*rng.Float64() - 1) * bound
		}
		b := make([]float64, sizes[l+1])
		for i := range b {
			b[i] = (2*rng.Float64() - 1) * bound
		}
		m.Coefs[l], m.Intercepts[l] = w, b
	}
}

// split は検証用の行を取り分ける。学習用が 2 行未満になる場合は分けない。
func (m *MLPRegressor) split(rng *rand.Rand, n int) (train, val []int) {
	perm := rng.Perm(n)
	if !m.EarlyStopping || m.ValidationFraction <= 0 {
		return perm, nil
	}
	nVal := int(math.Ceil(m.ValidationFraction * float64(n)))
	if nVal < 2 || n-nVal < 2 {
		return perm, nil
	}
	return perm[nVal:], perm[:nVal]
}

func rows(src *mat.Dense, idx []int) *mat.Dense {
	_, c := src.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		copy(out.RawRowView(k), src.RawRowView(i))
	}
	return out
}

// forward は各層の活性化を返す（先頭は入力）
func (m *MLPRegressor) forward(X *mat.Dense) []*mat.Dense {
	acts := make([]*mat.Dense, len(m.Coefs)+1)
	acts[0] = X
	last := len(m.Coefs) - 1
	for l, w := range m.Coefs {
		r, _ := acts[l].Dims()
		_, c := w.Dims()
		z := mat.NewDense(r, c, nil)
		z.Mul(acts[l], w)
		b := m.Intercepts[l]
		for i := 0; i < r; i++ {
			row := z.RawRowView(i)
			for j := range row {
				row[j] += b[j]
				if l < last {
					row[j] = m.Activation.apply(row[j])
				}
			}
		}
		acts[l+1] = z
	}
	return acts
}

// step は一つのミニバッチで勾配を計算して Adam で更新し、正則化込みの損失を返す
func (m *MLPRegressor) step(opt *adam, X, Y *mat.Dense) float64 {
	acts := m.forward(X)
	out := acts[len(acts)-1]
	nb, nt := out.Dims()
	fb := float64(nb)

	delta := mat.NewDense(nb, nt, nil)
	delta.Sub(out, Y)
	loss := 0.0
	for _, d := range delta.RawMatrix().Data {
		loss += d * d
	}
	loss /= 2 * fb * float64(nt)

	penalty := 0.0
	for _, w := range m.Coefs {
		for _, v := range w.RawMatrix().Data {
			penalty += v * v
		}
	}
	loss += 0.5 * m.Alpha * penalty / fb

	// 出力層の誤差 (squared loss の平均に合わせて出力数でも割る)
	delta.Scale(1/(fb*float64(nt)), delta)

	gradW := make([]*mat.Dense, len(m.Coefs))
	gradB := make([][]float64, len(m.Coefs))
	for l := len(m.Coefs) - 1; l >= 0; l-- {
		w := m.Coefs[l]
		var g mat.Dense
		g.Mul(acts[l].T(), delta)
		g.Apply(func(i, j int, v float64) float64 { return v + m.Alpha*w.At(i, j)/fb }, &g)
		gradW[l] = &g

		_, c := delta.Dims()
		gb := make([]float64, c)
		for i := 0; i < nb; i++ {
			for j, v := range delta.RawRowView(i) {
				gb[j] += v
			}
		}
		gradB[l] = gb

		if l > 0 {
			var next mat.Dense
			next.Mul(delta, w.T())
			a := acts[l]
			next.Apply(func(i, j int, v float64) float64 {
				return v * m.Activation.derivative(a.At(i, j))
			}, &next)
			delta = &next
		}
	}

	opt.update(m.Coefs, m.Intercepts, gradW, gradB)
	return loss
}

func (m *MLPRegressor) predictDense(X *mat.Dense) *mat.Dense {
	acts := m.forward(X)
	return acts[len(acts)-1]
}

// Predict は model.Predictor を実装する
func (m *MLPRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MLPRegressor", "Predict")
	}
	if _, c := X.Dims(); c != m.NFeatures {
		return nil, errors.NewDimensionError("MLPRegressor.Predict", m.NFeatures, c, 1)
	}
	return m.predictDense(mat.DenseCopyOf(X)), nil
}

func cloneParams(coefs []*mat.Dense, intercepts [][]float64) ([]*mat.Dense, [][]float64) {
	c := make([]*mat.Dense, len(coefs))
	b := make([][]float64, len(intercepts))
	for i := range coefs {
		c[i] = mat.DenseCopyOf(coefs[i])
		b[i] = append([]float64(nil), intercepts[i]...)
	}
	return c, b
}

// adam は Adam 最適化の一次・二次モーメントを保持する
type adam struct {
	lr     float64
	t      int
	mW, vW []*mat.Dense
	mB, vB [][]float64
}

func newAdam(coefs []*mat.Dense, intercepts [][]float64, lr float64) *adam {
	a := &adam{lr: lr}
	for i, w := range coefs {
		r, c := w.Dims()
		a.mW = append(a.mW, mat.NewDense(r, c, nil))
		a.vW = append(a.vW, mat.NewDense(r, c, nil))
		a.mB = append(a.mB, make([]float64, len(intercepts[i])))
		a.vB = append(a.vB, make([]float64, len(intercepts[i])))
	}
	return a
}

func (a *adam) update(coefs []*mat.Dense, intercepts [][]float64, gradW []*mat.Dense, gradB [][]float64) {
	a.t++
	lr := a.lr * math.Sqrt(1-math.Pow(adamBeta2, float64(a.t))) / (1 - math.Pow(adamBeta1, float64(a.t)))
	for l := range coefs {
		adamStep(coefs[l].RawMatrix().Data, gradW[l].RawMatrix().Data,
			a.mW[l].RawMatrix().Data, a.vW[l].RawMatrix().Data, lr)
		adamStep(intercepts[l], gradB[l], a.mB[l], a.vB[l], lr)
	}
}

func adamStep(params, grads, m, v []float64, lr float64) {
	for i, g := range grads {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		params[i] -= lr * m[i] / (math.Sqrt(v[i]) + adamEpsilon)
	}
}
