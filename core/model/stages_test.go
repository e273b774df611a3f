package model

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

func TestStageMachineOrdering(t *testing.T) {
	m := NewStageMachine()
	assert.Equal(t, Uninitialized, m.Current())

	err := m.Require("Model.Predict", Trained)
	var stageErr *errors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "downsampling", stageErr.Stage)

	require.NoError(t, m.Complete("downsampling", Downsampled))
	err = m.Complete("dataset", DatasetGenerated)
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "pca", stageErr.Stage)

	require.NoError(t, m.Complete("pca", PCAFit))
	require.NoError(t, m.Complete("dataset", DatasetGenerated))
	require.NoError(t, m.Complete("regression", Trained))
	assert.NoError(t, m.Require("Model.Predict", Trained))

	// Recomputing PCA invalidates the dataset and the regressor.
	require.NoError(t, m.Complete("pca", PCAFit))
	assert.Equal(t, PCAFit, m.Current())
	err = m.Require("Model.TrainNN", DatasetGenerated)
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "dataset", stageErr.Stage)
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "pca-fit", PCAFit.String())
	assert.Equal(t, "regression", Trained.PipelineStage())
	assert.Equal(t, "generation", Uninitialized.PipelineStage())
}

type persisted struct {
	Name   string
	Layers []int
	BaseEstimator
}

func TestPersistenceRoundTrip(t *testing.T) {
	in := persisted{Name: "hyper", Layers: []int{50, 50}}
	in.SetFitted()

	var buf bytes.Buffer
	require.NoError(t, SaveModelToWriter(in, &buf))
	var out persisted
	require.NoError(t, LoadModelFromReader(&out, &buf))
	assert.Equal(t, in, out)
	assert.True(t, out.IsFitted())

	path := filepath.Join(t.TempDir(), "obj.gob")
	require.NoError(t, SaveModel(in, path))
	var fromFile persisted
	require.NoError(t, LoadModel(&fromFile, path))
	assert.Equal(t, in, fromFile)
}

func TestLoadModelMissingFile(t *testing.T) {
	var out persisted
	err := LoadModel(&out, filepath.Join(t.TempDir(), "missing.gob"))
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))
}
