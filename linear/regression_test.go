package linear

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

func TestFitAffineRecoversLines(t *testing.T) {
	n := 200
	f := make([]float64, n)
	ys := mat.NewDense(n, 3, nil)
	for i := range f {
		f[i] = 3e-4 + float64(i)*1.4e-4
		ys.Set(i, 0, 0.3-2*math.Pi*50*f[i])
		ys.Set(i, 1, -1.2+7*f[i])
		ys.Set(i, 2, 2.0)
	}

	a, b, err := FitAffine(f, ys)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, -1.2, 2.0}, a, 1e-10)
	assert.InDeltaSlice(t, []float64{-2 * math.Pi * 50, 7, 0}, b, 1e-8)
}

func TestLinearRegressionMultiTarget(t *testing.T) {
	X := mat.NewDense(5, 2, []float64{
		0, 1,
		1, 0,
		2, 1,
		3, 3,
		4, 2,
	})
	Y := mat.NewDense(5, 2, nil)
	for i := 0; i < 5; i++ {
		Y.Set(i, 0, 1+2*X.At(i, 0)-X.At(i, 1))
		Y.Set(i, 1, -3+0.5*X.At(i, 1))
	}

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, Y))
	assert.InDeltaSlice(t, []float64{1, -3}, lr.Intercept, 1e-12)

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(Y, pred, 1e-12))

	noIntercept := NewLinearRegression(WithFitIntercept(false))
	require.NoError(t, noIntercept.Fit(X, Y))
	assert.Equal(t, []float64{0, 0}, noIntercept.Intercept)
}

func TestLinearRegressionErrors(t *testing.T) {
	lr := NewLinearRegression()
	_, err := lr.Predict(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	err = lr.Fit(mat.NewDense(3, 1, nil), mat.NewDense(2, 1, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	err = lr.Fit(mat.NewDense(1, 1, []float64{1}), mat.NewDense(1, 1, []float64{1}))
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))
}
