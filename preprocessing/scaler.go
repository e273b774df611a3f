// Package preprocessing は回帰器に渡す物理パラメータの前処理を提供する。
package preprocessing

import (
	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minScale 未満の標準偏差を持つ列は 1 でスケールする（定数列でのゼロ除算を避ける）
const minScale = 1e-8

// StandardScaler は各列を平均0、標準偏差1に標準化する。
// 学習パラメータ集合全体で一度だけ Fit し、部分集合で再学習してはならない。
type StandardScaler struct {
	model.BaseEstimator

	// Mean は各列の平均値
	Mean []float64

	// Scale は各列の母標準偏差
	Scale []float64

	// NFeatures は列数
	NFeatures int
}

var _ model.Transformer = (*StandardScaler)(nil)

// NewStandardScaler は未学習の StandardScaler を作成する
//
//	scaler := preprocessing.NewStandardScaler()
//	err := scaler.Fit(params.Array())
//	scaled, err := scaler.Transform(params.Array())
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit は各列の平均と母標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std < minScale {
			std = 1
		}
		s.Scale[j] = std
	}

	s.SetFitted()
	return nil
}

// Transform は学習済みの統計量でデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.check("Transform", X); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform は Fit と Transform を同じデータに対して行う
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.check("InverseTransform", X); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

func (s *StandardScaler) check(method string, X mat.Matrix) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError("StandardScaler", method)
	}
	if _, c := X.Dims(); c != s.NFeatures {
		return errors.NewDimensionError("StandardScaler."+method, s.NFeatures, c, 1)
	}
	return nil
}
