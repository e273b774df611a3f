// Package linear は多出力の最小二乗線形回帰を提供する。
// 位相残差の平坦化（a + b·f のアフィン成分の除去）に使われる。
package linear

import (
	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// LinearRegression は多出力の線形回帰モデル Y ≈ 1·interceptᵀ + X·Coef
type LinearRegression struct {
	model.BaseEstimator

	// Coef は係数行列 (n_features × n_targets)
	Coef *mat.Dense
	// Intercept は各出力の切片 (n_targets)
	Intercept []float64

	FitIntercept bool
	NFeatures    int
	NTargets     int
}

var _ model.Regressor = (*LinearRegression)(nil)

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{FitIntercept: true}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit は QR 分解による最小二乗で全出力列を一度に解く
//
// X は n_samples × n_features、Y は n_samples × n_targets。
func (lr *LinearRegression) Fit(X, Y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	r, c := X.Dims()
	ry, cy := Y.Dims()
	if r == 0 || c == 0 || cy == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}

	offset := 0
	if lr.FitIntercept {
		offset = 1
	}
	if r < c+offset {
		return errors.NewValueError("LinearRegression.Fit", "fewer samples than unknowns")
	}

	// 切片項のために X に 1 の列を追加: A = [1, X]
	A := mat.NewDense(r, c+offset, nil)
	for i := 0; i < r; i++ {
		if offset == 1 {
			A.Set(i, 0, 1)
		}
		for j := 0; j < c; j++ {
			A.Set(i, j+offset, X.At(i, j))
		}
	}

	var qr mat.QR
	qr.Factorize(A)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, Y); err != nil {
		return errors.NewModelError("LinearRegression.Fit", "singular design matrix", errors.ErrSingularMatrix)
	}

	lr.NFeatures = c
	lr.NTargets = cy
	lr.Intercept = make([]float64, cy)
	if offset == 1 {
		mat.Row(lr.Intercept, 0, &beta)
	}
	lr.Coef = mat.DenseCopyOf(beta.Slice(offset, c+offset, 0, cy))

	lr.SetFitted()
	return nil
}

// Predict は X の各行に対する全出力の予測を返す
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LinearRegression", "Predict")
	}
	r, c := X.Dims()
	if c != lr.NFeatures {
		return nil, errors.NewDimensionError("LinearRegression.Predict", lr.NFeatures, c, 1)
	}

	pred := mat.NewDense(r, lr.NTargets, nil)
	pred.Mul(X, lr.Coef)
	for i := 0; i < r; i++ {
		for j := 0; j < lr.NTargets; j++ {
			pred.Set(i, j, pred.At(i, j)+lr.Intercept[j])
		}
	}
	return pred, nil
}

// FitAffine は y_k(f) ≈ a_k + b_k·f を各列 k について解き、切片 a と傾き b を返す
//
// ys は n_points × n_series の行列で、各列が一つの系列。
func FitAffine(f []float64, ys mat.Matrix) (intercepts, slopes []float64, err error) {
	lr := NewLinearRegression()
	if err := lr.Fit(mat.NewDense(len(f), 1, f), ys); err != nil {
		return nil, nil, err
	}
	slopes = make([]float64, lr.NTargets)
	mat.Row(slopes, 0, lr.Coef)
	return lr.Intercept, slopes, nil
}
