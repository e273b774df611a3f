package surrogate

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/core/model"
	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/decomposition"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
	"github.com/YuminosukeSato/gwsurrogate/preprocessing"
)

// Seed offsets of the generation stages, so that the three datasets never
// share parameter draws. Downsampling validation uses Seed+1.
const (
	pcaSeedOffset     = 2
	datasetSeedOffset = 3
)

// GenerateSizes holds the number of waveforms generated for each stage.
// A zero size reuses the existing artifact of that stage.
type GenerateSizes struct {
	Downsampling int
	PCA          int
	NN           int
}

// DefaultGenerateSizes returns 64, 256 and 256 waveforms.
func DefaultGenerateSizes() GenerateSizes {
	return GenerateSizes{Downsampling: 64, PCA: 256, NN: 256}
}

// Generate builds the model from scratch, stage by stage: downsampling
// indices, PCA basis, training dataset and parameter scaler. A stage with
// size 0 is skipped only when its artifact already exists.
func (m *Model) Generate(ctx context.Context, sizes GenerateSizes) error {
	if sizes.Downsampling < 0 || sizes.PCA < 0 || sizes.NN < 0 {
		return errors.NewValidationError("generate_sizes", "must not be negative", sizes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	logger := m.logger()

	if sizes.Downsampling > 0 {
		if err := m.generateIndices(ctx, logger, sizes.Downsampling); err != nil {
			return err
		}
	} else if err := m.stages.Require("Model.Generate", model.Downsampled); err != nil {
		return err
	}

	if sizes.PCA > 0 {
		if err := m.generatePCA(ctx, logger, sizes.PCA); err != nil {
			return err
		}
	} else if err := m.stages.Require("Model.Generate", model.PCAFit); err != nil {
		return err
	}

	if sizes.NN > 0 {
		if err := m.generateDataset(ctx, logger, sizes.NN); err != nil {
			return err
		}
	} else if err := m.stages.Require("Model.Generate", model.DatasetGenerated); err != nil {
		return err
	}
	return m.trainParameterScaler()
}

func (m *Model) generateIndices(ctx context.Context, logger log.Logger, n int) (err error) {
	start := time.Now()
	defer func() { m.Telemetry.ObserveStage("downsampling", start, err) }()

	indices, report, err := m.Downsampling.Train(ctx, n)
	if err != nil {
		return errors.Wrap(err, "downsampling stage failed")
	}
	m.Telemetry.AddWaveforms("downsampling", n)
	nAmp, nPhase := indices.NumbersOfPoints()
	logger.Info("downsampling indices selected",
		log.StageKey, "downsampling", log.SamplesKey, n,
		"amplitude_points", nAmp, "phase_points", nPhase,
		"amplitude_stop", string(report.Amplitude.StopReason),
		"phase_stop", string(report.Phase.StopReason),
		log.DurationMsKey, time.Since(start).Milliseconds())
	return m.installIndices(indices)
}

func (m *Model) generatePCA(ctx context.Context, logger log.Logger, n int) (err error) {
	start := time.Now()
	defer func() { m.Telemetry.ObserveStage("pca", start, err) }()

	tr := &decomposition.PrincipalComponentTraining{
		Dataset:     m.Dataset,
		Generator:   m.Generator,
		Indices:     m.indices,
		NComponents: m.PCAComponents,
		Ranges:      m.Downsampling.Ranges,
		Seed:        m.Seed + pcaSeedOffset,
		Logger:      m.Logger,
	}
	data, err := tr.Train(ctx, n)
	if err != nil {
		return errors.Wrap(err, "pca stage failed")
	}
	m.Telemetry.AddWaveforms("pca", n)
	logger.Info("pca basis fitted",
		log.StageKey, "pca", log.SamplesKey, n, log.ComponentsKey, data.Components(),
		log.DurationMsKey, time.Since(start).Milliseconds())
	return m.installPCA(data)
}

func (m *Model) generateDataset(ctx context.Context, logger log.Logger, n int) (err error) {
	start := time.Now()
	defer func() { m.Telemetry.ObserveStage("dataset", start, err) }()

	g, err := dataset.NewUniformParameterGenerator(m.Downsampling.Ranges, m.Dataset, m.Seed+datasetSeedOffset)
	if err != nil {
		return err
	}
	params := g.Generate(n)
	res, _, err := m.Dataset.GenerateResiduals(ctx, m.Generator, params, m.indices)
	if err != nil {
		return errors.Wrap(err, "dataset stage failed")
	}
	m.Telemetry.AddWaveforms("dataset", n)
	logger.Info("training dataset generated",
		log.StageKey, "dataset", log.SamplesKey, n,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return m.installDataset(params, res)
}

// TrainParameterScaler fits the parameter scaler on the full set of
// training parameters. It is never fitted on a subset.
func (m *Model) TrainParameterScaler() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainParameterScaler()
}

// trainParameterScaler requires the write lock.
func (m *Model) trainParameterScaler() error {
	if m.trainingParameters.Len() == 0 {
		return errors.NewStageError("Model.TrainParameterScaler", "dataset", "no training parameters are available")
	}
	scaler := preprocessing.NewStandardScaler()
	if err := scaler.Fit(m.trainingParameters.Array()); err != nil {
		return err
	}
	m.paramScaler = scaler
	return nil
}

// ReducedResiduals returns the PCA coefficients of the training residuals.
// The result is cached until the PCA basis or the training residuals are
// replaced. The returned matrix must not be modified.
func (m *Model) ReducedResiduals() (*mat.Dense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reducedResiduals()
}

// reducedResiduals requires at least the read lock.
func (m *Model) reducedResiduals() (*mat.Dense, error) {
	if err := m.stages.Require("Model.ReducedResiduals", model.DatasetGenerated); err != nil {
		return nil, err
	}
	if m.trainingResiduals == nil {
		return nil, errors.NewStageError("Model.ReducedResiduals", "dataset", "training residuals were not saved with the model")
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if m.reducedValid {
		return m.reduced, nil
	}
	pca := decomposition.NewPrincipalComponentAnalysisModel(m.pcaData.Components())
	reduced, err := pca.ReduceData(m.trainingResiduals.Combined(), m.pcaData)
	if err != nil {
		return nil, err
	}
	m.reduced, m.reducedValid = reduced, true
	return reduced, nil
}
