// Package telemetry exposes prometheus collectors for the surrogate pipeline.
// A nil *Collectors is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the pipeline metrics.
type Collectors struct {
	// StageDuration observes the wall time of each pipeline stage.
	StageDuration *prometheus.HistogramVec
	// Predictions counts waveforms returned by Predict.
	Predictions prometheus.Counter
	// Waveforms counts reference waveforms generated per stage.
	Waveforms *prometheus.CounterVec
}

// NewCollectors creates unregistered collectors under namespace.
func NewCollectors(namespace string) *Collectors {
	return &Collectors{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"stage", "result"},
		),
		Predictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Total number of waveforms predicted by the surrogate",
			},
		),
		Waveforms: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generated_waveforms_total",
				Help:      "Total number of reference waveforms generated by stage",
			},
			[]string{"stage"},
		),
	}
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	if c == nil {
		return nil
	}
	for _, col := range []prometheus.Collector{c.StageDuration, c.Predictions, c.Waveforms} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// ObserveStage records the duration since start with result "ok" or "error".
func (c *Collectors) ObserveStage(stage string, start time.Time, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.StageDuration.WithLabelValues(stage, result).Observe(time.Since(start).Seconds())
}

// AddWaveforms counts n generated waveforms for stage.
func (c *Collectors) AddWaveforms(stage string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Waveforms.WithLabelValues(stage).Add(float64(n))
}

// AddPredictions counts n predicted waveforms.
func (c *Collectors) AddPredictions(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Predictions.Add(float64(n))
}
