// Package surrogate ties downsampling, PCA and regression together into a
// waveform model that is trained once and then predicts frequency-domain
// polarizations for arbitrary parameters.
//
// A Model moves through the stages of core/model.Stage. Every operation
// checks the stage it needs and fails with a StageError naming the missing
// one. Predictions take a read lock; everything that mutates the model
// takes the write lock.
package surrogate

import (
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/config"
	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/decomposition"
	"github.com/YuminosukeSato/gwsurrogate/downsampling"
	"github.com/YuminosukeSato/gwsurrogate/neural"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
	"github.com/YuminosukeSato/gwsurrogate/pkg/telemetry"
	"github.com/YuminosukeSato/gwsurrogate/preprocessing"
	"github.com/YuminosukeSato/gwsurrogate/storage"
)

// DefaultPCAComponents is the number of principal components kept when
// no option overrides it.
const DefaultPCAComponents = 30

// Model is a trainable waveform surrogate for one mode.
type Model struct {
	Name string
	ID   uuid.UUID
	Mode dataset.Mode

	Dataset      *dataset.Dataset
	Generator    dataset.WaveformGenerator
	Downsampling *downsampling.GreedyDownsamplingTraining

	PCAComponents int
	Seed          uint64
	// MaxIterScale multiplies max_iter in SetHyperAndTrainNN.
	MaxIterScale int
	TrialTable   *neural.TrialTable

	Codec               storage.Codec
	IncludeTrainingData bool

	Telemetry *telemetry.Collectors
	Logger    log.Logger

	downsamplingTolerance *downsampling.Tolerance
	downsamplingMaxPoints int
	interpolator          *downsampling.Interpolator
	workers               int

	mu     sync.RWMutex
	stages *model.StageMachine

	indices            *dataset.DownsamplingIndices
	pcaData            *decomposition.PrincipalComponentData
	trainingParameters *dataset.ParameterSet
	trainingResiduals  *dataset.Residuals
	paramScaler        *preprocessing.StandardScaler
	regressor          model.Regressor
	hyper              *neural.Hyperparameters

	// version counts reassignments of PCA data and training residuals.
	version uint64

	// reduced caches the PCA coefficients of the training residuals;
	// reducedValid is cleared whenever either input is reassigned.
	cacheMu      sync.Mutex
	reduced      *mat.Dense
	reducedValid bool
}

// Option configures NewModel.
type Option func(*Model) error

// WithDataset replaces the default dataset.
func WithDataset(ds *dataset.Dataset) Option {
	return func(m *Model) error {
		if err := ds.Validate(); err != nil {
			return err
		}
		m.Dataset = ds
		return nil
	}
}

// WithGenerator sets the waveform generator.
func WithGenerator(gen dataset.WaveformGenerator) Option {
	return func(m *Model) error {
		m.Generator = gen
		return nil
	}
}

// WithEOBRunner selects the generator through dataset.NewWaveformGenerator.
func WithEOBRunner(runner dataset.EOBRunner) Option {
	return func(m *Model) error {
		gen, err := dataset.NewWaveformGenerator(m.Mode, runner, m.logger())
		if err != nil {
			return err
		}
		m.Generator = gen
		return nil
	}
}

// WithMode sets the mode; generators built afterwards use it.
func WithMode(mode dataset.Mode) Option {
	return func(m *Model) error {
		m.Mode = mode
		return nil
	}
}

func WithPCAComponents(k int) Option {
	return func(m *Model) error {
		if k <= 0 {
			return errors.NewValidationError("pca_components", "must be positive", k)
		}
		m.PCAComponents = k
		return nil
	}
}

func WithSeed(seed uint64) Option {
	return func(m *Model) error {
		m.Seed = seed
		return nil
	}
}

// WithDownsamplingTolerance sets the greedy tolerance and point budget.
func WithDownsamplingTolerance(tol downsampling.Tolerance, maxPoints int) Option {
	return func(m *Model) error {
		if tol.Amplitude <= 0 || tol.Phase <= 0 {
			return errors.NewValidationError("downsampling.tolerance", "must be positive", tol)
		}
		if maxPoints < downsampling.MinPoints {
			return errors.NewValidationError("downsampling.max_points", "must allow at least three points", maxPoints)
		}
		m.downsamplingTolerance = &tol
		m.downsamplingMaxPoints = maxPoints
		return nil
	}
}

func WithInterpolator(kind downsampling.Interpolator) Option {
	return func(m *Model) error {
		m.interpolator = &kind
		return nil
	}
}

func WithWorkers(n int) Option {
	return func(m *Model) error {
		m.workers = n
		return nil
	}
}

func WithMaxIterScale(f int) Option {
	return func(m *Model) error {
		if f <= 0 {
			return errors.NewValidationError("max_iter_scale", "must be positive", f)
		}
		m.MaxIterScale = f
		return nil
	}
}

func WithTrialTable(t *neural.TrialTable) Option {
	return func(m *Model) error {
		m.TrialTable = t
		return nil
	}
}

func WithCodec(c storage.Codec, includeTrainingData bool) Option {
	return func(m *Model) error {
		m.Codec = c
		m.IncludeTrainingData = includeTrainingData
		return nil
	}
}

func WithTelemetry(c *telemetry.Collectors) Option {
	return func(m *Model) error {
		m.Telemetry = c
		return nil
	}
}

func WithLogger(l log.Logger) Option {
	return func(m *Model) error {
		m.Logger = l
		return nil
	}
}

// NewModel creates an untrained model. Without WithGenerator or
// WithEOBRunner the post-Newtonian generator is used.
func NewModel(name string, opts ...Option) (*Model, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "must not be empty", name)
	}
	m := &Model{
		Name:                name,
		ID:                  uuid.New(),
		Mode:                dataset.Mode22,
		Dataset:             dataset.DefaultDataset(),
		PCAComponents:       DefaultPCAComponents,
		Seed:                42,
		MaxIterScale:        10,
		Codec:               storage.CodecZstd,
		IncludeTrainingData: true,
		stages:              model.NewStageMachine(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.Generator == nil {
		gen, err := dataset.NewWaveformGenerator(m.Mode, nil, m.logger())
		if err != nil {
			return nil, err
		}
		m.Generator = gen
	}
	if m.TrialTable == nil {
		table, err := neural.DefaultTrialTable()
		if err != nil {
			m.logger().Warn("embedded trial table unavailable, using fixed hyperparameters",
				log.ErrorTypeKey, err.Error())
		}
		m.TrialTable = table
	}

	ds := downsampling.NewGreedyDownsamplingTraining(m.Dataset, m.Generator)
	ds.Seed = m.Seed
	ds.Logger = m.Logger
	ds.Workers = m.workers
	if m.downsamplingTolerance != nil {
		ds.Tolerance = *m.downsamplingTolerance
		ds.MaxPoints = m.downsamplingMaxPoints
	}
	if m.interpolator != nil {
		ds.Interpolator = *m.interpolator
	}
	m.Downsampling = ds
	return m, nil
}

// NewModelFromConfig builds a model from a validated configuration. A nil
// generator selects the post-Newtonian generator.
func NewModelFromConfig(cfg *config.Config, gen dataset.WaveformGenerator, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := dataset.NewDataset(cfg.Model.InitialFrequencyHz, cfg.Model.SrateHz,
		dataset.WithTotalMass(cfg.Model.TotalMass), dataset.WithDeltaF(cfg.Model.DeltaFHz))
	if err != nil {
		return nil, err
	}
	table, err := trialTableFor(cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithDataset(ds),
		WithPCAComponents(cfg.Model.PCAComponents),
		WithSeed(cfg.Model.Seed),
		WithDownsamplingTolerance(downsampling.Tolerance{
			Amplitude: cfg.Downsampling.AmplitudeTolerance,
			Phase:     cfg.Downsampling.PhaseTolerance,
		}, cfg.Downsampling.MaxPoints),
		WithInterpolator(cfg.Interpolator()),
		WithWorkers(cfg.Generation.Workers),
		WithMaxIterScale(cfg.Training.MaxIterScale),
		WithTrialTable(table),
		WithCodec(cfg.Codec(), cfg.Storage.IncludeTrainingData),
	}
	if gen != nil {
		base = append(base, WithGenerator(gen))
	}
	return NewModel(cfg.Model.Name, append(base, opts...)...)
}

func trialTableFor(cfg *config.Config) (*neural.TrialTable, error) {
	if cfg.Training.TrialTable == "" {
		return neural.DefaultTrialTable()
	}
	data, err := os.ReadFile(cfg.Training.TrialTable)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read trial table %s", cfg.Training.TrialTable)
	}
	return neural.ParseTrialTable(data)
}

func (m *Model) workerCount() int {
	if m.workers > 0 {
		return m.workers
	}
	return runtime.GOMAXPROCS(0)
}

func (m *Model) logger() log.Logger {
	l := m.Logger
	if l == nil {
		l = log.GetLogger()
	}
	return l.With(log.ModelNameKey, m.Name, log.EstimatorIDKey, m.ID.String())
}

// State returns the current pipeline stage.
func (m *Model) State() model.Stage {
	return m.stages.Current()
}

// AuxiliaryDataAvailable reports whether downsampling indices and PCA
// data are present.
func (m *Model) AuxiliaryDataAvailable() bool {
	return m.stages.Reached(model.PCAFit)
}

// TrainingDatasetAvailable reports whether training residuals are present.
func (m *Model) TrainingDatasetAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stages.Reached(model.DatasetGenerated) && m.trainingResiduals != nil
}

// NNAvailable reports whether a trained regressor is installed.
func (m *Model) NNAvailable() bool {
	return m.stages.Reached(model.Trained)
}

// Indices returns the downsampling indices, or nil.
func (m *Model) Indices() *dataset.DownsamplingIndices {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indices
}

// PCAData returns the principal component basis, or nil.
func (m *Model) PCAData() *decomposition.PrincipalComponentData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pcaData
}

// TrainingParameters returns the parameters of the training dataset, or nil.
func (m *Model) TrainingParameters() *dataset.ParameterSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainingParameters
}

// TrainingResiduals returns the training residuals, or nil.
func (m *Model) TrainingResiduals() *dataset.Residuals {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainingResiduals
}

// Regressor returns the installed regressor, or nil.
func (m *Model) Regressor() model.Regressor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.regressor
}

// Hyper returns the hyperparameters of the installed regressor, or nil.
func (m *Model) Hyper() *neural.Hyperparameters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hyper
}

// SetPCAData replaces the PCA basis. Reduced residuals are invalidated
// and the model drops back to the PCAFit stage.
func (m *Model) SetPCAData(data *decomposition.PrincipalComponentData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.stages.Require("Model.SetPCAData", model.Downsampled); err != nil {
		return err
	}
	if err := m.checkPCADimension(data); err != nil {
		return err
	}
	return m.installPCA(data)
}

// SetTrainingDataset replaces the training parameters and residuals.
// Reduced residuals are invalidated and any regressor is dropped.
func (m *Model) SetTrainingDataset(params *dataset.ParameterSet, res *dataset.Residuals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.stages.Require("Model.SetTrainingDataset", model.PCAFit); err != nil {
		return err
	}
	if params.Len() == 0 || params.Len() != res.Len() {
		return errors.NewDimensionError("Model.SetTrainingDataset", params.Len(), res.Len(), 0)
	}
	nAmp, nPhase := m.indices.NumbersOfPoints()
	if _, c := res.Amplitude.Dims(); c != nAmp {
		return errors.NewDimensionError("Model.SetTrainingDataset", nAmp, c, 1)
	}
	if _, c := res.Phase.Dims(); c != nPhase {
		return errors.NewDimensionError("Model.SetTrainingDataset", nPhase, c, 1)
	}
	return m.installDataset(params, res)
}

func (m *Model) checkPCADimension(data *decomposition.PrincipalComponentData) error {
	nAmp, nPhase := m.indices.NumbersOfPoints()
	if data.Dimension() != nAmp+nPhase {
		return errors.NewDimensionError("Model.SetPCAData", nAmp+nPhase, data.Dimension(), 1)
	}
	return nil
}

// installPCA requires the write lock.
func (m *Model) installPCA(data *decomposition.PrincipalComponentData) error {
	m.pcaData = data
	m.version++
	m.reducedValid = false
	m.regressor, m.hyper = nil, nil
	if err := m.stages.Complete("Model.SetPCAData", model.PCAFit); err != nil {
		return err
	}
	// training residuals live on the same indices, so they stay valid
	if m.trainingParameters != nil && m.paramScaler != nil {
		return m.stages.Complete("Model.SetPCAData", model.DatasetGenerated)
	}
	return nil
}

// installIndices requires the write lock. Everything downstream of the
// indices is discarded.
func (m *Model) installIndices(indices *dataset.DownsamplingIndices) error {
	m.indices = indices
	m.pcaData = nil
	m.trainingParameters, m.trainingResiduals, m.paramScaler = nil, nil, nil
	m.regressor, m.hyper = nil, nil
	m.version++
	m.reducedValid = false
	return m.stages.Complete("Model.Generate", model.Downsampled)
}

// installDataset requires the write lock.
func (m *Model) installDataset(params *dataset.ParameterSet, res *dataset.Residuals) error {
	m.trainingParameters = params
	m.trainingResiduals = res
	m.version++
	m.reducedValid = false
	m.regressor, m.hyper = nil, nil
	if err := m.trainParameterScaler(); err != nil {
		return err
	}
	return m.stages.Complete("Model.SetTrainingDataset", model.DatasetGenerated)
}
