package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Generate",
			kind:    "waveform generation failed",
			err:     fmt.Errorf("integrator diverged"),
			wantMsg: "gwsurrogate: Generate: waveform generation failed: integrator diverged",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "regressor missing",
			wantMsg: "gwsurrogate: Predict: regressor missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestStageErrorNamesTheStage(t *testing.T) {
	err := NewStageError("Model.TrainNN", "pca", "no principal component data is available")

	var stageErr *StageError
	require.True(t, As(err, &stageErr))
	assert.Equal(t, "pca", stageErr.Stage)
	assert.Equal(t, "gwsurrogate: Model.TrainNN: pca stage is required but no principal component data is available", err.Error())

	wrapped := Wrap(err, "training")
	assert.True(t, As(wrapped, &stageErr))
}

func TestNotSupportedError(t *testing.T) {
	err := NewNotSupportedError("mode", "(3,3)")
	assert.Equal(t, "gwsurrogate: mode (3,3) is not supported yet", err.Error())

	var nsErr *NotSupportedError
	assert.True(t, As(err, &nsErr))
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("ReduceData", 40, 38, 1)
	assert.Equal(t, "gwsurrogate: ReduceData: dimension mismatch on axis 1 (columns). Expected 40, got 38", err.Error())

	var dimErr *DimensionError
	assert.True(t, As(err, &dimErr))
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("StandardScaler", "Transform")
	assert.Contains(t, err.Error(), "StandardScaler")
	assert.Contains(t, err.Error(), "Transform()")
}

func TestWarnRoutesThroughHooks(t *testing.T) {
	var got []string
	SetWarningHandler(func(w error) { got = append(got, w.Error()) })
	t.Cleanup(func() { SetWarningHandler(nil) })

	Warn(NewMissingArtifactWarning("regressor", "model_nn.gob"))
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "model_nn.gob")

	var viaZerolog []error
	SetZerologWarnFunc(func(w error) { viaZerolog = append(viaZerolog, w) })
	t.Cleanup(func() { SetZerologWarnFunc(nil) })

	Warn(NewConvergenceWarning("MLPRegressor", 10, ""))
	assert.Len(t, got, 1, "zerolog hook takes precedence")
	require.Len(t, viaZerolog, 1)

	var conv *ConvergenceWarning
	assert.True(t, As(viaZerolog[0], &conv))
	assert.Equal(t, 10, conv.Iterations)
}

func TestWrapfKeepsSentinel(t *testing.T) {
	wrapped := Wrapf(ErrFileNotFound, "arrays for model %q", "default")
	assert.True(t, Is(wrapped, ErrFileNotFound))
	assert.True(t, strings.Contains(wrapped.Error(), `arrays for model "default"`))
}

func TestCheckMatrix(t *testing.T) {
	m := fakeMatrix{{1, 2}, {3, nanValue()}}
	err := CheckMatrix("predict", m, 2, 2, 0)
	var numErr *NumericalInstabilityError
	require.True(t, As(err, &numErr))
	assert.Len(t, numErr.Values, 1)

	assert.NoError(t, CheckMatrix("predict", fakeMatrix{{1}}, 1, 1, 0))
}

type fakeMatrix [][]float64

func (f fakeMatrix) At(i, j int) float64 { return f[i][j] }

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
