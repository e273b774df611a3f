// Package errors はサロゲートモデル全体のエラーハンドリングと警告システムを提供します。
// パイプラインのどのステージ（downsampling / pca / dataset / regression）で
// 失敗したかを常に特定できる構造化エラーを返します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("gwsurrogate-warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定します。
// nil を渡すと警告は破棄されます。
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（pkg/log から呼ばれる）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されていれば構造化ログとして出力し、そうでなければハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// ConvergenceWarning は最適化が max_iter 以内に収束しなかった場合の警告です。
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning は新しいConvergenceWarningを作成します。
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// MissingArtifactWarning は永続化されたオプションの成果物（ネットワーク、
// ハイパーパラメータ）が見つからなかった場合の警告です。
// モデルは配列レベルの検査のみ可能な状態で読み込まれます。
type MissingArtifactWarning struct {
	Artifact string
	Path     string
}

func (w *MissingArtifactWarning) Error() string {
	return fmt.Sprintf("no %s found at %s; the model is loaded without a trained regressor", w.Artifact, w.Path)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *MissingArtifactWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("artifact", w.Artifact).
		Str("path", w.Path).
		Str("type", "MissingArtifactWarning")
}

// NewMissingArtifactWarning は新しいMissingArtifactWarningを作成します。
func NewMissingArtifactWarning(artifact, path string) *MissingArtifactWarning {
	return &MissingArtifactWarning{Artifact: artifact, Path: path}
}

// DownsamplingBudgetWarning は点数の上限に達したため許容誤差を満たせなかった場合の警告です。
type DownsamplingBudgetWarning struct {
	Target        string
	Points        int
	AchievedError float64
	Tolerance     float64
}

func (w *DownsamplingBudgetWarning) Error() string {
	return fmt.Sprintf("%s downsampling stopped at the budget of %d points with error %.3e (tolerance %.3e)",
		w.Target, w.Points, w.AchievedError, w.Tolerance)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DownsamplingBudgetWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("target", w.Target).
		Int("points", w.Points).
		Float64("achieved_error", w.AchievedError).
		Float64("tolerance", w.Tolerance).
		Str("type", "DownsamplingBudgetWarning")
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError は未学習のコンポーネントで推論を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("gwsurrogate: %s: this component is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// StageError はパイプラインの前提条件違反です。
// 必要なステージ（downsampling / pca / dataset / regression / generation）の
// 成果物が存在しない、または不正な場合に返されます。回復はされません。
type StageError struct {
	Op      string
	Stage   string
	Missing string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("gwsurrogate: %s: %s stage is required but %s", e.Op, e.Stage, e.Missing)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *StageError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("stage", e.Stage).
		Str("missing", e.Missing).
		Str("type", "StageError")
}

// NewStageError は新しいStageErrorを作成し、スタックトレースを付与します。
func NewStageError(op, stage, missing string) error {
	return errors.WithStack(&StageError{Op: op, Stage: stage, Missing: missing})
}

// NotSupportedError は生成器が対応していない設定（モードなど）を要求された場合のエラーです。
// 別の設定への暗黙のフォールバックは行いません。
type NotSupportedError struct {
	Feature string
	Value   interface{}
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("gwsurrogate: %s %v is not supported yet", e.Feature, e.Value)
}

// NewNotSupportedError は新しいNotSupportedErrorを作成し、スタックトレースを付与します。
func NewNotSupportedError(feature string, value interface{}) error {
	return errors.WithStack(&NotSupportedError{Feature: feature, Value: value})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("gwsurrogate: %s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, axisName(e.Axis), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName(e.Axis)).
		Str("type", "DimensionError")
}

func axisName(axis int) string {
	if axis == 0 {
		return "rows"
	}
	return "columns"
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gwsurrogate: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切な場合のエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("gwsurrogate: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError はモデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gwsurrogate: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("gwsurrogate: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NumericalInstabilityError は NaN や Inf を検出した場合のエラーです。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("gwsurrogate: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Values: values, Iteration: iteration})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")

	// ErrFileNotFound は必須の永続化ファイルが存在しない場合のエラーです。
	ErrFileNotFound = New("file not found")
)
