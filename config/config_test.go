package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gwsurrogate/downsampling"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
	"github.com/YuminosukeSato/gwsurrogate/storage"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, downsampling.NotAKnot, cfg.Interpolator())
	assert.Equal(t, storage.CodecZstd, cfg.Codec())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwsurrogate.yaml")
	cfg := Default()
	cfg.Model.Name = "bns"
	cfg.Downsampling.Interpolator = "akima"
	cfg.Storage.Codec = "lz4"
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  pca_components: 12\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Model.PCAComponents)
	assert.Equal(t, 4096.0, cfg.Model.SrateHz)
	assert.Equal(t, "zstd", cfg.Storage.Codec)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, Save(Default(), path))
	t.Setenv("GWSURROGATE_MODEL_DIR", "/tmp/models")
	t.Setenv("GWSURROGATE_LOG_LEVEL", "debug")
	t.Setenv("GWSURROGATE_WORKERS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/models", cfg.Storage.Directory)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Generation.Workers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidateNamesKey(t *testing.T) {
	cases := map[string]func(*Config){
		"model.srate_hz":                   func(c *Config) { c.Model.SrateHz = 30 },
		"model.pca_components":             func(c *Config) { c.Model.PCAComponents = 0 },
		"downsampling.phase_tolerance":     func(c *Config) { c.Downsampling.PhaseTolerance = 0 },
		"downsampling.max_points":          func(c *Config) { c.Downsampling.MaxPoints = 2 },
		"downsampling.interpolator":        func(c *Config) { c.Downsampling.Interpolator = "linear" },
		"generation.nn":                    func(c *Config) { c.Generation.NN = -1 },
		"training.max_iter_scale":          func(c *Config) { c.Training.MaxIterScale = 0 },
		"storage.codec":                    func(c *Config) { c.Storage.Codec = "gzip" },
		"logging.level":                    func(c *Config) { c.Logging.Level = "verbose" },
		"model.initial_frequency_hz":       func(c *Config) { c.Model.InitialFrequencyHz = -1 },
		"downsampling.amplitude_tolerance": func(c *Config) { c.Downsampling.AmplitudeTolerance = -1 },
	}
	for key, mutate := range cases {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "%v", err)
			assert.Equal(t, key, ve.ParamName)
		})
	}
}
