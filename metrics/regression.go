// Package metrics は回帰器の評価指標と波形のミスマッチを提供する。
package metrics

import (
	"math"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func checkShapes(op string, yTrue, yPred mat.Matrix) (int, int, error) {
	r, c := yTrue.Dims()
	rp, cp := yPred.Dims()
	if r == 0 || c == 0 {
		return 0, 0, errors.NewValueError(op, "empty matrix")
	}
	if rp != r {
		return 0, 0, errors.NewDimensionError(op, r, rp, 0)
	}
	if cp != c {
		return 0, 0, errors.NewDimensionError(op, c, cp, 1)
	}
	return r, c, nil
}

// MSE は全要素にわたる平均二乗誤差を計算する
func MSE(yTrue, yPred mat.Matrix) (float64, error) {
	r, c, err := checkShapes("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := yTrue.At(i, j) - yPred.At(i, j)
			sum += d * d
		}
	}
	return sum / float64(r*c), nil
}

// RMSE は平方根平均二乗誤差を計算する
func RMSE(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差を計算する
func MAE(yTrue, yPred mat.Matrix) (float64, error) {
	r, c, err := checkShapes("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += math.Abs(yTrue.At(i, j) - yPred.At(i, j))
		}
	}
	return sum / float64(r*c), nil
}

// R2Score は列ごとの決定係数の一様平均を計算する。
// 分散がゼロの列は、予測が完全一致なら 1、そうでなければ 0 とする。
func R2Score(yTrue, yPred mat.Matrix) (float64, error) {
	r, c, err := checkShapes("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for j := 0; j < c; j++ {
		mean := 0.0
		for i := 0; i < r; i++ {
			mean += yTrue.At(i, j)
		}
		mean /= float64(r)

		var ssRes, ssTot float64
		for i := 0; i < r; i++ {
			d := yTrue.At(i, j) - yPred.At(i, j)
			ssRes += d * d
			m := yTrue.At(i, j) - mean
			ssTot += m * m
		}
		switch {
		case ssTot > 0:
			total += 1 - ssRes/ssTot
		case ssRes == 0:
			total += 1
		}
	}
	return total / float64(c), nil
}
