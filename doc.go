// Package gwsurrogate provides a fast surrogate model of frequency-domain
// gravitational waveforms from binary neutron star inspirals.
//
// A surrogate is built once from a slow reference generator and then
// evaluates the plus and cross polarizations at arbitrary frequencies in
// milliseconds. Construction runs four stages:
//
//  1. Downsampling: greedy selection of the frequency points at which
//     amplitude and phase residuals are stored.
//  2. PCA: a principal component basis of the combined residuals.
//  3. Dataset: residuals of many waveforms reduced to PCA coefficients.
//  4. Regression: a neural network from physical parameters to the
//     weighted coefficients.
//
// # Features
//
// - Explicit stage machine: every operation names the stage it is missing
// - Deterministic generation fanned out across CPU cores
// - Compressed, checksummed model files (zstd, s2 or lz4)
// - Structured logging with zerolog and optional prometheus metrics
//
// # Installation
//
//	go get github.com/YuminosukeSato/gwsurrogate
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/gwsurrogate/dataset"
//	    "github.com/YuminosukeSato/gwsurrogate/surrogate"
//	    "gonum.org/v1/gonum/floats"
//	)
//
//	func main() {
//	    m, err := surrogate.NewModel("default")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    ctx := context.Background()
//	    if err := m.Generate(ctx, surrogate.DefaultGenerateSizes()); err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := m.SetHyperAndTrainNN(ctx, nil); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    freqs := floats.Span(make([]float64, 4096), 20, 2048)
//	    hp, hc, err := m.Predict(freqs, dataset.GW170817())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(hp[0], hc[0])
//	}
//
// # Packages
//
//   - dataset: frequency grid, parameters, baseline and reference generators
//   - downsampling: spline interpolation and greedy index selection
//   - decomposition: principal component analysis of residuals
//   - neural: multilayer perceptron regressor and hyperparameter tables
//   - surrogate: the staged model, persistence, prediction and validation
//   - storage: array container files
//   - config: YAML configuration
//   - pkg/errors, pkg/log, pkg/telemetry: ambient infrastructure
//
// The gwsurrogate command in cmd/gwsurrogate drives the same pipeline from
// a configuration file.
package gwsurrogate
