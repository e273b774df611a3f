// Package config loads and validates the YAML configuration of a surrogate model.
package config

import (
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/gwsurrogate/downsampling"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/pkg/log"
	"github.com/YuminosukeSato/gwsurrogate/storage"
)

// Config is the top-level configuration file.
type Config struct {
	Model        ModelSection        `yaml:"model"`
	Downsampling DownsamplingSection `yaml:"downsampling"`
	Generation   GenerationSection   `yaml:"generation"`
	Training     TrainingSection     `yaml:"training"`
	Storage      StorageSection      `yaml:"storage"`
	Logging      LoggingSection      `yaml:"logging"`
	Telemetry    TelemetrySection    `yaml:"telemetry"`
}

// ModelSection describes the dataset and the PCA size.
type ModelSection struct {
	Name               string  `yaml:"name"`
	InitialFrequencyHz float64 `yaml:"initial_frequency_hz"`
	SrateHz            float64 `yaml:"srate_hz"`
	TotalMass          float64 `yaml:"total_mass"`
	// DeltaFHz of 0 derives the spacing from the Newtonian chirp time.
	DeltaFHz      float64 `yaml:"delta_f_hz"`
	PCAComponents int     `yaml:"pca_components"`
	Seed          uint64  `yaml:"seed"`
}

type DownsamplingSection struct {
	AmplitudeTolerance float64 `yaml:"amplitude_tolerance"`
	PhaseTolerance     float64 `yaml:"phase_tolerance"`
	MaxPoints          int     `yaml:"max_points"`
	Interpolator       string  `yaml:"interpolator"`
}

// GenerationSection holds the number of waveforms per stage.
type GenerationSection struct {
	Downsampling int `yaml:"downsampling"`
	PCA          int `yaml:"pca"`
	NN           int `yaml:"nn"`
	Workers      int `yaml:"workers"`
}

// TrainingSection selects the hyperparameter table.
type TrainingSection struct {
	// TrialTable is a YAML trial table path; empty uses the embedded table.
	TrialTable   string `yaml:"trial_table"`
	MaxIterScale int    `yaml:"max_iter_scale"`
}

type StorageSection struct {
	Directory           string `yaml:"directory"`
	Codec               string `yaml:"codec"`
	IncludeTrainingData bool   `yaml:"include_training_data"`
}

type LoggingSection struct {
	Level string `yaml:"level"`
}

type TelemetrySection struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Model: ModelSection{
			Name:               "default",
			InitialFrequencyHz: 20,
			SrateHz:            4096,
			TotalMass:          2.8,
			PCAComponents:      30,
			Seed:               42,
		},
		Downsampling: DownsamplingSection{
			AmplitudeTolerance: 1e-4,
			PhaseTolerance:     1e-4,
			MaxPoints:          400,
			Interpolator:       "not-a-knot",
		},
		Generation: GenerationSection{Downsampling: 64, PCA: 256, NN: 256},
		Training:   TrainingSection{MaxIterScale: 10},
		Storage:    StorageSection{Directory: ".", Codec: "zstd", IncludeTrainingData: true},
		Logging:    LoggingSection{Level: "info"},
		Telemetry:  TelemetrySection{Namespace: "gwsurrogate"},
	}
}

// Load reads path on top of Default and applies environment overrides.
// A missing file yields ErrFileNotFound.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(errors.ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// applyEnvOverrides lets deployments relocate models and change verbosity
// without editing the file.
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("GWSURROGATE_MODEL_DIR"); dir != "" {
		cfg.Storage.Directory = dir
	}
	if level := os.Getenv("GWSURROGATE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if workers := os.Getenv("GWSURROGATE_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Generation.Workers = n
		}
	}
}

// Validate reports the first invalid key.
func (c *Config) Validate() error {
	m := c.Model
	switch {
	case m.Name == "":
		return errors.NewValidationError("model.name", "must not be empty", m.Name)
	case m.InitialFrequencyHz <= 0:
		return errors.NewValidationError("model.initial_frequency_hz", "must be positive", m.InitialFrequencyHz)
	case m.SrateHz <= 2*m.InitialFrequencyHz:
		return errors.NewValidationError("model.srate_hz", "the Nyquist frequency must exceed the initial frequency", m.SrateHz)
	case m.TotalMass <= 0:
		return errors.NewValidationError("model.total_mass", "must be positive", m.TotalMass)
	case m.DeltaFHz < 0:
		return errors.NewValidationError("model.delta_f_hz", "must not be negative", m.DeltaFHz)
	case m.PCAComponents <= 0:
		return errors.NewValidationError("model.pca_components", "must be positive", m.PCAComponents)
	}

	d := c.Downsampling
	switch {
	case d.AmplitudeTolerance <= 0:
		return errors.NewValidationError("downsampling.amplitude_tolerance", "must be positive", d.AmplitudeTolerance)
	case d.PhaseTolerance <= 0:
		return errors.NewValidationError("downsampling.phase_tolerance", "must be positive", d.PhaseTolerance)
	case d.MaxPoints < downsampling.MinPoints:
		return errors.NewValidationError("downsampling.max_points", "must allow at least three points", d.MaxPoints)
	}
	if _, err := downsampling.ParseInterpolator(d.Interpolator); err != nil {
		return errors.NewValidationError("downsampling.interpolator", "unknown interpolator", d.Interpolator)
	}

	g := c.Generation
	switch {
	case g.Downsampling < 0:
		return errors.NewValidationError("generation.downsampling", "must not be negative", g.Downsampling)
	case g.PCA < 0:
		return errors.NewValidationError("generation.pca", "must not be negative", g.PCA)
	case g.NN < 0:
		return errors.NewValidationError("generation.nn", "must not be negative", g.NN)
	case g.Workers < 0:
		return errors.NewValidationError("generation.workers", "must not be negative", g.Workers)
	case c.Training.MaxIterScale <= 0:
		return errors.NewValidationError("training.max_iter_scale", "must be positive", c.Training.MaxIterScale)
	}

	if _, err := storage.ParseCodec(c.Storage.Codec); err != nil {
		return errors.NewValidationError("storage.codec", "must be one of none, zstd, s2, lz4", c.Storage.Codec)
	}
	if _, err := log.ToLogLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// Interpolator returns the parsed downsampling interpolator.
func (c *Config) Interpolator() downsampling.Interpolator {
	kind, _ := downsampling.ParseInterpolator(c.Downsampling.Interpolator)
	return kind
}

// Codec returns the parsed storage codec.
func (c *Config) Codec() storage.Codec {
	codec, _ := storage.ParseCodec(c.Storage.Codec)
	return codec
}
