package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

func TestStandardScalerFitTransform(t *testing.T) {
	// columns: mass ratio, tidal deformability, constant spin
	X := mat.NewDense(4, 3, []float64{
		1.0, 100, 0.1,
		1.5, 400, 0.1,
		2.0, 700, 0.1,
		1.5, 400, 0.1,
	})

	s := NewStandardScaler()
	scaled, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1.5, 400, 0.1}, s.Mean, 1e-12)
	assert.Equal(t, 1.0, s.Scale[2], "constant column keeps unit scale")

	r, c := scaled.Dims()
	for j := 0; j < c; j++ {
		sum, sumSq := 0.0, 0.0
		for i := 0; i < r; i++ {
			v := scaled.At(i, j)
			sum += v
			sumSq += v * v
		}
		assert.InDelta(t, 0, sum/float64(r), 1e-12)
		if j < 2 {
			assert.InDelta(t, 1, sumSq/float64(r), 1e-12)
		}
	}

	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScaler()
	_, err := s.Transform(mat.NewDense(1, 5, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	require.NoError(t, s.Fit(mat.NewDense(2, 5, []float64{1, 2, 3, 4, 5, 2, 3, 4, 5, 6})))
	_, err = s.Transform(mat.NewDense(1, 4, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}
