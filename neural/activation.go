// Package neural は物理パラメータから重み付き PCA 係数への回帰器を提供する。
package neural

import (
	"math"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Activation は隠れ層の活性化関数
type Activation string

const (
	ReLU     Activation = "relu"
	Tanh     Activation = "tanh"
	Logistic Activation = "logistic"
)

// Validate は既知の活性化関数かを検査する
func (a Activation) Validate() error {
	switch a {
	case ReLU, Tanh, Logistic:
		return nil
	}
	return errors.NewNotSupportedError("activation", string(a))
}

func (a Activation) apply(z float64) float64 {
	switch a {
	case Tanh:
		return math.Tanh(z)
	case Logistic:
		return 1 / (1 + math.Exp(-z))
	default:
		return math.Max(z, 0)
	}
}

// derivative は活性化後の値 out から導関数を計算する
func (a Activation) derivative(out float64) float64 {
	switch a {
	case Tanh:
		return 1 - out*out
	case Logistic:
		return out * (1 - out)
	default:
		if out > 0 {
			return 1
		}
		return 0
	}
}

// initBound は Glorot 一様初期化の範囲
func (a Activation) initBound(fanIn, fanOut int) float64 {
	factor := 6.0
	if a == Logistic {
		factor = 2.0
	}
	return math.Sqrt(factor / float64(fanIn+fanOut))
}
