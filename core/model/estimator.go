package model

import "gonum.org/v1/gonum/mat"

// Fitter は教師あり学習が可能なコンポーネントのインターフェース
type Fitter interface {
	// Fit は入力 X から目的変数 Y（複数列可）を学習する
	Fit(X, Y mat.Matrix) error
}

// Predictor は予測可能なコンポーネントのインターフェース
type Predictor interface {
	// Predict は X の各行に対する予測を返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor はパラメータから PCA 係数への写像を学習する回帰器の契約
type Regressor interface {
	Fitter
	Predictor
}
