package model

import "gonum.org/v1/gonum/mat"

// Transformer は可逆なデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// InverseTransform は Transform の逆変換を行う
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}
