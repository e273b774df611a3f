package decomposition

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
)

// lowRankData draws n samples from a rank-r linear model plus small noise.
func lowRankData(n, dim, r int, noise float64) *mat.Dense {
	rng := rand.New(rand.NewPCG(1, 2))
	basis := mat.NewDense(r, dim, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < dim; j++ {
			basis.Set(i, j, math.Sin(float64((i+1)*(j+1))*0.1))
		}
	}
	coef := mat.NewDense(n, r, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < r; j++ {
			coef.Set(i, j, rng.NormFloat64()*float64(r-j))
		}
	}
	X := mat.NewDense(n, dim, nil)
	X.Mul(coef, basis)
	X.Apply(func(i, j int, v float64) float64 { return v + 3 + noise*rng.NormFloat64() }, X)
	return X
}

func TestPCAFitShapesAndOrder(t *testing.T) {
	X := lowRankData(60, 12, 3, 1e-3)
	pca := NewPrincipalComponentAnalysisModel(5)
	data, err := pca.FitData(X)
	require.NoError(t, err)
	require.NoError(t, data.Validate())

	assert.Equal(t, 5, data.Components())
	assert.Equal(t, 12, data.Dimension())
	for i := 1; i < len(data.Eigenvalues); i++ {
		assert.GreaterOrEqual(t, data.Eigenvalues[i-1], data.Eigenvalues[i])
	}
	// three dominant directions, the rest is noise
	assert.Greater(t, data.Eigenvalues[2], 1e3*data.Eigenvalues[3])

	// rows are orthonormal
	var gram mat.Dense
	gram.Mul(data.Eigenvectors, data.Eigenvectors.T())
	assert.True(t, mat.EqualApprox(&gram, eye(5), 1e-10))
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func TestPCAReconstructionBoundedByDroppedEigenvalues(t *testing.T) {
	X := lowRankData(80, 10, 4, 0.05)
	n, dim := X.Dims()

	full, err := NewPrincipalComponentAnalysisModel(dim).FitData(X)
	require.NoError(t, err)

	for _, k := range []int{1, 2, 4, 6} {
		pca := NewPrincipalComponentAnalysisModel(k)
		data, err := pca.FitData(X)
		require.NoError(t, err)

		C, err := pca.ReduceData(X, data)
		require.NoError(t, err)
		back, err := pca.ReconstructData(C, data)
		require.NoError(t, err)

		var diff mat.Dense
		diff.Sub(X, back)
		sq := 0.0
		for i := 0; i < n; i++ {
			sq += floats.Dot(diff.RawRowView(i), diff.RawRowView(i))
		}
		sq /= float64(n)

		dropped := floats.Sum(full.Eigenvalues[k:])
		assert.LessOrEqual(t, sq, dropped*(1+1e-9)+1e-12, "k=%d", k)
	}
}

func TestPCAFullRankRoundTrip(t *testing.T) {
	X := lowRankData(20, 6, 6, 0.1)
	pca := NewPrincipalComponentAnalysisModel(6)
	require.NoError(t, pca.Fit(X))

	C, err := pca.Transform(X)
	require.NoError(t, err)
	back, err := pca.InverseTransform(C)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-9))
}

func TestPCAClampsComponents(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	pca := &PrincipalComponentAnalysisModel{NComponents: 50, Logger: logger}
	data, err := pca.FitData(lowRankData(10, 4, 2, 0.01))
	require.NoError(t, err)
	assert.Equal(t, 4, data.Components())
	assert.Equal(t, 1, logger.CountLevel(log.LevelWarn))
}

func TestPCADropsVanishingComponents(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	pca := &PrincipalComponentAnalysisModel{NComponents: 5, Logger: logger}
	data, err := pca.FitData(lowRankData(40, 10, 2, 0))
	require.NoError(t, err)
	require.NoError(t, data.Validate())

	assert.Equal(t, 2, data.Components())
	for _, l := range data.Eigenvalues {
		assert.Greater(t, l, 1e-10*data.Eigenvalues[0])
	}
	assert.Equal(t, 1, logger.CountLevel(log.LevelWarn))

	// the dropped directions carried no variance
	X := lowRankData(40, 10, 2, 0)
	C, err := pca.ReduceData(X, data)
	require.NoError(t, err)
	back, err := pca.ReconstructData(C, data)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-9))
}

func TestPCAErrors(t *testing.T) {
	pca := NewPrincipalComponentAnalysisModel(2)
	_, err := pca.FitData(mat.NewDense(1, 3, nil))
	assert.Error(t, err)

	_, err = NewPrincipalComponentAnalysisModel(0).FitData(mat.NewDense(3, 3, nil))
	assert.Error(t, err)

	_, err = pca.Transform(mat.NewDense(1, 3, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	data, err := pca.FitData(lowRankData(10, 4, 2, 0.01))
	require.NoError(t, err)
	_, err = pca.ReduceData(mat.NewDense(2, 3, nil), data)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
	_, err = pca.ReconstructData(mat.NewDense(2, 3, nil), data)
	assert.True(t, errors.As(err, &dimErr))
}

func TestPrincipalComponentTraining(t *testing.T) {
	ds, err := dataset.NewDataset(20, 2048, dataset.WithDeltaF(8))
	require.NoError(t, err)
	gen, err := dataset.NewPostNewtonianGenerator(dataset.Mode22)
	require.NoError(t, err)

	indices := &dataset.DownsamplingIndices{
		Amplitude: []int{0, 4, 16, 40, 80, 125},
		Phase:     []int{0, 2, 8, 20, 50, 90, 125},
	}
	tr := &PrincipalComponentTraining{Dataset: ds, Generator: gen, Indices: indices, NComponents: 5, Seed: 3}
	data, err := tr.Train(context.Background(), 12)
	require.NoError(t, err)
	require.NoError(t, data.Validate())
	assert.Equal(t, 13, data.Dimension())
	assert.Equal(t, 5, data.Components())

	_, err = (&PrincipalComponentTraining{Dataset: ds, Generator: gen, NComponents: 5}).Train(context.Background(), 4)
	var se *errors.StageError
	assert.True(t, errors.As(err, &se))
}
