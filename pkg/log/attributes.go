package log

// Model and operation context.
const (
	// ModelNameKey identifies the surrogate model (its file base name).
	ModelNameKey = "model.name"

	// EstimatorIDKey is the per-instance identifier (a UUID).
	EstimatorIDKey = "estimator.id"

	// OperationKey names the operation: "generate", "train_nn", "predict",
	// "save", "load", "fit", "transform".
	OperationKey = "ml.operation"

	// ComponentKey names the package emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase: "training", "inference", "validation".
	PhaseKey = "ml.phase"

	// StageKey is the pipeline stage: "downsampling", "pca", "dataset",
	// "regression".
	StageKey = "pipeline.stage"

	// ModeKey is the harmonic mode, e.g. "(2,2)".
	ModeKey = "waveform.mode"

	// GeneratorKey names the waveform generator backend.
	GeneratorKey = "waveform.generator"
)

// Data shape.
const (
	// SamplesKey is the number of waveforms or parameter rows.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of columns of a matrix.
	FeaturesKey = "data.features"

	// TargetsKey is the number of regression targets (PCA components).
	TargetsKey = "data.targets"

	// PointsKey is the number of frequency points (dense or downsampled).
	PointsKey = "data.points"

	// BatchSizeKey is the mini-batch size.
	BatchSizeKey = "data.batch_size"

	// PathKey is a file path.
	PathKey = "data.path"
)

// Training and metrics.
const (
	// DurationMsKey is the duration of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey is the epoch or greedy-step number.
	IterationKey = "training.iteration"

	// LossKey is the training loss.
	LossKey = "metrics.loss"

	// R2ScoreKey is the validation R² score.
	R2ScoreKey = "metrics.r2_score"

	// RMSEKey is the root mean squared error on the training targets.
	RMSEKey = "metrics.rmse"

	// MAEKey is the mean absolute error on the training targets.
	MAEKey = "metrics.mae"

	// MismatchKey is a waveform mismatch.
	MismatchKey = "metrics.mismatch"

	// MaxErrorKey is a worst-case interpolation error.
	MaxErrorKey = "metrics.max_error"

	// ToleranceKey is a configured error tolerance.
	ToleranceKey = "downsampling.tolerance"

	// StopReasonKey tells which stopping condition ended a greedy run.
	StopReasonKey = "downsampling.stop_reason"

	// ComponentsKey is the number of retained principal components.
	ComponentsKey = "pca.components"

	// HyperParamsKey is a hyperparameter summary.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey is the seed of a random generator.
	RandomSeedKey = "config.random_seed"
)

// Error context.
const (
	// ErrorTypeKey is the Go type of an error.
	ErrorTypeKey = "error.type"
)
