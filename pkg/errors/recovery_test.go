package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/interp"
)

func TestRecoverConvertsPanic(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "Resample")
		panic("knots not increasing")
	}

	err := fn()
	var panicErr *PanicError
	require.True(t, As(err, &panicErr))
	assert.Equal(t, "Resample", panicErr.Operation)
	assert.Equal(t, "panic in Resample: knots not increasing", panicErr.Error())
	assert.NotEmpty(t, panicErr.StackTrace)
	assert.Contains(t, panicErr.String(), "Stack trace")
}

func TestRecoverWithoutPanic(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "Resample")
		return nil
	}
	assert.NoError(t, fn())
}

func TestRecoverKeepsExistingError(t *testing.T) {
	base := fmt.Errorf("fit failed")
	fn := func() (err error) {
		defer Recover(&err, "Fit")
		err = base
		panic("boom")
	}

	err := fn()
	require.Error(t, err)
	assert.True(t, Is(err, base))
	assert.Contains(t, err.Error(), "panic in Fit: boom")
}

func TestSafeExecuteWithGonumSpline(t *testing.T) {
	// gonum panics when a not-a-knot spline gets fewer than three knots.
	err := SafeExecute("spline fit", func() error {
		var s interp.NotAKnotCubic
		return s.Fit([]float64{0, 1}, []float64{0, 1})
	})
	var panicErr *PanicError
	require.True(t, As(err, &panicErr))
	assert.Equal(t, "spline fit", panicErr.Operation)

	err = SafeExecute("spline fit", func() error {
		var s interp.NotAKnotCubic
		return s.Fit([]float64{0, 1, 2, 3}, []float64{0, 1, 4, 9})
	})
	assert.NoError(t, err)
}
