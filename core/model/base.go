package model

// EstimatorState はコンポーネントの学習状態を表す
type EstimatorState int

const (
	// NotFitted は未学習の状態
	NotFitted EstimatorState = iota
	// Fitted は学習済みの状態
	Fitted
)

// BaseEstimator は学習可能なコンポーネント（スケーラー、PCA、回帰器）に埋め込まれる。
// State は gob で永続化されるため公開フィールドとする。
type BaseEstimator struct {
	State EstimatorState
}

// IsFitted は学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted は学習済み状態に設定する
func (e *BaseEstimator) SetFitted() {
	e.State = Fitted
}

// Reset は初期状態に戻す
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
}
