package model

import (
	"sync"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Stage is a step of the surrogate construction pipeline. Stages are
// ordered: reaching a stage implies every earlier stage is complete.
type Stage int

const (
	// Uninitialized: nothing has been computed or loaded.
	Uninitialized Stage = iota
	// Downsampled: downsampling indices exist.
	Downsampled
	// PCAFit: a principal component basis fitted against the indices exists.
	PCAFit
	// DatasetGenerated: training parameters and residuals exist.
	DatasetGenerated
	// Trained: a regressor and its hyperparameters exist.
	Trained
)

// String returns the stage identifier used in logs.
func (s Stage) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Downsampled:
		return "downsampled"
	case PCAFit:
		return "pca-fit"
	case DatasetGenerated:
		return "dataset-generated"
	case Trained:
		return "trained"
	default:
		return "unknown"
	}
}

// PipelineStage names the pipeline step that produces the stage, as
// reported in StageError.
func (s Stage) PipelineStage() string {
	switch s {
	case Downsampled:
		return "downsampling"
	case PCAFit:
		return "pca"
	case DatasetGenerated:
		return "dataset"
	case Trained:
		return "regression"
	default:
		return "generation"
	}
}

// StageMachine tracks the pipeline stage in a thread-safe manner.
type StageMachine struct {
	mu      sync.RWMutex
	current Stage
}

// NewStageMachine returns a machine in the Uninitialized stage.
func NewStageMachine() *StageMachine {
	return &StageMachine{}
}

// Current returns the current stage.
func (m *StageMachine) Current() Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Complete records that stage s has just been (re)computed. Completing a
// stage invalidates every later stage, so the machine moves to exactly s.
// Completing a stage whose prerequisite is missing is an error.
func (m *StageMachine) Complete(op string, s Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s > m.current+1 {
		missing := m.current + 1
		return errors.NewStageError(op, missing.PipelineStage(), "it has not been run")
	}
	m.current = s
	return nil
}

// Restore sets the stage directly, used when loading persisted state.
func (m *StageMachine) Restore(s Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
}

// Require returns a StageError naming the first missing stage if the
// machine has not reached s.
func (m *StageMachine) Require(op string, s Stage) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current >= s {
		return nil
	}
	missing := m.current + 1
	return errors.NewStageError(op, missing.PipelineStage(), "it has not been run or loaded")
}

// Reached reports whether the machine has reached s.
func (m *StageMachine) Reached(s Stage) bool {
	return m.Current() >= s
}
