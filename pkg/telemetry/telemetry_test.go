package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCount(t *testing.T, obs prometheus.Observer) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, obs.(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestCollectors(t *testing.T) {
	c := NewCollectors("gwtest")
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	start := time.Now().Add(-time.Second)
	c.ObserveStage("pca", start, nil)
	c.ObserveStage("pca", start, nil)
	c.ObserveStage("pca", start, errors.New("boom"))
	assert.Equal(t, uint64(2), sampleCount(t, c.StageDuration.WithLabelValues("pca", "ok")))
	assert.Equal(t, uint64(1), sampleCount(t, c.StageDuration.WithLabelValues("pca", "error")))

	c.AddWaveforms("dataset", 12)
	c.AddWaveforms("dataset", 0)
	c.AddPredictions(3)
	assert.Equal(t, 12.0, testutil.ToFloat64(c.Waveforms.WithLabelValues("dataset")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Predictions))

	// registering twice is rejected by prometheus
	assert.Error(t, c.Register(reg))
}

func TestNilCollectorsAreNoop(t *testing.T) {
	var c *Collectors
	assert.NoError(t, c.Register(prometheus.NewRegistry()))
	assert.NotPanics(t, func() {
		c.ObserveStage("downsampling", time.Now(), nil)
		c.AddWaveforms("pca", 4)
		c.AddPredictions(1)
	})
}
