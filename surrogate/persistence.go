package surrogate

import (
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/decomposition"
	"github.com/YuminosukeSato/gwsurrogate/downsampling"
	"github.com/YuminosukeSato/gwsurrogate/neural"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
	"github.com/YuminosukeSato/gwsurrogate/preprocessing"
	"github.com/YuminosukeSato/gwsurrogate/storage"
)

// Files written by Save, relative to the model directory.
func arraysPath(dir, name string) string { return filepath.Join(dir, name+"_arrays.gws") }
func hyperPath(dir, name string) string  { return filepath.Join(dir, name+"_hyper.gob") }
func nnPath(dir, name string) string     { return filepath.Join(dir, name+"_nn.gob") }

// ModelFiles returns the paths Save writes for a model called name.
func ModelFiles(dir, name string) (arrays, hyper, nn string) {
	return arraysPath(dir, name), hyperPath(dir, name), nnPath(dir, name)
}

// Save writes the model to dir. The arrays container always holds the
// downsampling indices with their interpolator, the PCA basis and the
// dataset descriptor; the
// training dataset is included when IncludeTrainingData is set. The
// hyperparameters and the regressor are written only once trained.
func (m *Model) Save(dir string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.stages.Require("Model.Save", model.PCAFit); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	logger := m.logger().With(log.OperationKey, "save")

	arrays := storage.Arrays{
		storage.KeyAmplitudeIndices: storage.Ints(m.indices.Amplitude),
		storage.KeyPhaseIndices:     storage.Ints(m.indices.Phase),
		storage.KeyInterpolator:     storage.Ints([]int{int(m.Downsampling.Interpolator)}),
		storage.KeyPCAMean:          storage.Vector(m.pcaData.Mean),
		storage.KeyPCAEigenvectors:  storage.Matrix(m.pcaData.Eigenvectors),
		storage.KeyPCAEigenvalues:   storage.Vector(m.pcaData.Eigenvalues),
		storage.KeyDataset:          storage.Vector(m.Dataset.Descriptor()),
	}
	if m.paramScaler != nil {
		arrays[storage.KeyScalerMean] = storage.Vector(m.paramScaler.Mean)
		arrays[storage.KeyScalerScale] = storage.Vector(m.paramScaler.Scale)
	}
	if m.IncludeTrainingData && m.trainingParameters.Len() > 0 && m.trainingResiduals != nil {
		arrays[storage.KeyTrainingParameters] = storage.Matrix(m.trainingParameters.Array())
		arrays[storage.KeyAmplitudeResiduals] = storage.Matrix(m.trainingResiduals.Amplitude)
		arrays[storage.KeyPhaseResiduals] = storage.Matrix(m.trainingResiduals.Phase)
	}
	path := arraysPath(dir, m.Name)
	if err := storage.WriteFile(path, arrays, m.Codec); err != nil {
		return err
	}
	logger.Info("model arrays saved", log.PathKey, path, "codec", m.Codec.String())

	if !m.stages.Reached(model.Trained) {
		return nil
	}
	mlp, ok := m.regressor.(*neural.MLPRegressor)
	if !ok {
		return errors.NewNotSupportedError("regressor persistence", m.regressor)
	}
	if err := model.SaveModel(m.hyper, hyperPath(dir, m.Name)); err != nil {
		return err
	}
	if err := model.SaveModel(mlp, nnPath(dir, m.Name)); err != nil {
		return err
	}
	logger.Info("regressor saved", log.PathKey, nnPath(dir, m.Name))
	return nil
}

// Load replaces the model state with the files Save wrote to dir under
// the model's name. A missing arrays file is an error; a missing
// regressor or hyperparameter file only raises a MissingArtifactWarning
// and leaves the model untrained.
func (m *Model) Load(dir string) error {
	arrays, err := storage.ReadFile(arraysPath(dir, m.Name))
	if err != nil {
		return err
	}
	st, err := decodeState(arrays)
	if err != nil {
		return errors.Wrapf(err, "model %s", m.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	logger := m.logger().With(log.OperationKey, "load")

	if st.dataset != nil {
		m.Dataset = st.dataset
		m.Downsampling.Dataset = st.dataset
	}
	if st.interpolator != nil && *st.interpolator != m.Downsampling.Interpolator {
		logger.Debug("using the saved interpolator",
			"configured", m.Downsampling.Interpolator.String(), "saved", st.interpolator.String())
		m.Downsampling.Interpolator = *st.interpolator
	}
	if err := st.indices.Validate(m.Dataset.Len()); err != nil {
		return err
	}
	m.indices = st.indices
	if err := m.checkPCADimension(st.pca); err != nil {
		return err
	}
	m.pcaData = st.pca
	m.trainingParameters, m.trainingResiduals = st.params, st.residuals
	m.paramScaler = st.scaler
	m.regressor, m.hyper = nil, nil
	m.version++
	m.reducedValid = false

	stage := model.PCAFit
	if m.paramScaler == nil && m.trainingParameters.Len() > 0 {
		if err := m.trainParameterScaler(); err != nil {
			return err
		}
	}
	if m.paramScaler != nil {
		stage = model.DatasetGenerated
	}

	if stage == model.DatasetGenerated {
		hyper, reg, ok, err := m.loadRegressor(dir, logger)
		if err != nil {
			return err
		}
		if ok {
			m.regressor, m.hyper = reg, hyper
			stage = model.Trained
		}
	}
	m.stages.Restore(stage)
	logger.Info("model loaded", log.PathKey, dir, log.StageKey, stage.String())
	return nil
}

// loadRegressor reads the hyperparameter and regressor files. ok is false
// when either is missing.
func (m *Model) loadRegressor(dir string, logger log.Logger) (*neural.Hyperparameters, *neural.MLPRegressor, bool, error) {
	hyper := &neural.Hyperparameters{}
	reg := &neural.MLPRegressor{}
	for _, f := range []struct {
		artifact, path string
		target         interface{}
	}{
		{"hyperparameters", hyperPath(dir, m.Name), hyper},
		{"regressor", nnPath(dir, m.Name), reg},
	} {
		err := model.LoadModel(f.target, f.path)
		if errors.Is(err, errors.ErrFileNotFound) {
			errors.Warn(errors.NewMissingArtifactWarning(f.artifact, f.path))
			logger.Warn("artifact missing, the regressor must be trained again", "artifact", f.artifact, log.PathKey, f.path)
			return nil, nil, false, nil
		}
		if err != nil {
			return nil, nil, false, err
		}
	}
	if err := hyper.Validate(); err != nil {
		return nil, nil, false, err
	}
	if reg.NOutputs != m.pcaData.Components() {
		return nil, nil, false, errors.NewDimensionError("Model.Load", m.pcaData.Components(), reg.NOutputs, 1)
	}
	reg.SetLogger(m.logger().With(log.StageKey, "regression"))
	return hyper, reg, true, nil
}

type persistedState struct {
	dataset   *dataset.Dataset
	indices   *dataset.DownsamplingIndices
	pca       *decomposition.PrincipalComponentData
	params    *dataset.ParameterSet
	residuals *dataset.Residuals
	scaler    *preprocessing.StandardScaler

	// interpolator is nil for files written before it was stored.
	interpolator *downsampling.Interpolator
}

func decodeState(arrays storage.Arrays) (*persistedState, error) {
	st := &persistedState{indices: &dataset.DownsamplingIndices{}}

	if a, ok := arrays[storage.KeyDataset]; ok {
		ds, err := dataset.DatasetFromDescriptor(a.Data)
		if err != nil {
			return nil, err
		}
		st.dataset = ds
	}

	for key, dst := range map[string]*[]int{
		storage.KeyAmplitudeIndices: &st.indices.Amplitude,
		storage.KeyPhaseIndices:     &st.indices.Phase,
	} {
		a, err := arrays.Get(key)
		if err != nil {
			return nil, err
		}
		if *dst, err = a.IntSlice(); err != nil {
			return nil, err
		}
	}

	if a, ok := arrays[storage.KeyInterpolator]; ok {
		v, err := a.IntSlice()
		if err != nil {
			return nil, err
		}
		if len(v) != 1 {
			return nil, errors.NewDimensionError("Model.Load", 1, len(v), 0)
		}
		kind, err := downsampling.ParseInterpolator(downsampling.Interpolator(v[0]).String())
		if err != nil {
			return nil, err
		}
		st.interpolator = &kind
	}

	mean, err := arrays.Get(storage.KeyPCAMean)
	if err != nil {
		return nil, err
	}
	vecs, err := arrays.Get(storage.KeyPCAEigenvectors)
	if err != nil {
		return nil, err
	}
	vals, err := arrays.Get(storage.KeyPCAEigenvalues)
	if err != nil {
		return nil, err
	}
	eig, err := vecs.Dense()
	if err != nil {
		return nil, err
	}
	st.pca = &decomposition.PrincipalComponentData{Mean: mean.Data, Eigenvectors: eig, Eigenvalues: vals.Data}
	if err := st.pca.Validate(); err != nil {
		return nil, err
	}

	pa, hasParams := arrays[storage.KeyTrainingParameters]
	ar, hasAmp := arrays[storage.KeyAmplitudeResiduals]
	ph, hasPhase := arrays[storage.KeyPhaseResiduals]
	if hasParams && hasAmp && hasPhase {
		pm, err := pa.Dense()
		if err != nil {
			return nil, err
		}
		if st.params, err = dataset.NewParameterSet(pm); err != nil {
			return nil, err
		}
		amp, err := ar.Dense()
		if err != nil {
			return nil, err
		}
		phase, err := ph.Dense()
		if err != nil {
			return nil, err
		}
		st.residuals = &dataset.Residuals{Amplitude: amp, Phase: phase}
		if st.residuals.Len() != st.params.Len() {
			return nil, errors.NewDimensionError("Model.Load", st.params.Len(), st.residuals.Len(), 0)
		}
	}

	sm, hasMean := arrays[storage.KeyScalerMean]
	ss, hasScale := arrays[storage.KeyScalerScale]
	if hasMean && hasScale {
		if len(sm.Data) != dataset.NumParameters || len(ss.Data) != dataset.NumParameters {
			return nil, errors.NewDimensionError("Model.Load", dataset.NumParameters, len(sm.Data), 1)
		}
		st.scaler = &preprocessing.StandardScaler{Mean: sm.Data, Scale: ss.Data, NFeatures: dataset.NumParameters}
		st.scaler.SetFitted()
	}
	return st, nil
}

// LoadModel creates a model called name and loads it from dir.
func LoadModel(dir, name string, opts ...Option) (*Model, error) {
	m, err := NewModel(name, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Load(dir); err != nil {
		return nil, err
	}
	return m, nil
}
