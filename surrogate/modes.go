package surrogate

import (
	"context"
	"fmt"

	"github.com/YuminosukeSato/gwsurrogate/dataset"
	"github.com/YuminosukeSato/gwsurrogate/neural"
	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// GeneratorFactory returns the waveform generator of one mode.
type GeneratorFactory func(mode dataset.Mode) (dataset.WaveformGenerator, error)

// DefaultGeneratorFactory selects the post-Newtonian generator, which only
// supports (2,2).
func DefaultGeneratorFactory(mode dataset.Mode) (dataset.WaveformGenerator, error) {
	return dataset.NewWaveformGenerator(mode, nil, nil)
}

// ModesModel holds one Model per mode. Every operation is applied to the
// modes in the order they were given.
type ModesModel struct {
	Base   string
	Modes  []dataset.Mode
	models map[dataset.Mode]*Model
}

// ModeName returns the model name of mode under base: <base>_l<l>_m<m>.
func ModeName(base string, mode dataset.Mode) string {
	return fmt.Sprintf("%s_l%d_m%d", base, mode.L, mode.M)
}

// NewModesModel builds a model for every mode with the generator from
// factory; a nil factory uses DefaultGeneratorFactory. opts apply to every
// mode model.
func NewModesModel(base string, modes []dataset.Mode, factory GeneratorFactory, opts ...Option) (*ModesModel, error) {
	if len(modes) == 0 {
		return nil, errors.NewValidationError("modes", "must not be empty", modes)
	}
	if factory == nil {
		factory = DefaultGeneratorFactory
	}
	mm := &ModesModel{Base: base, models: make(map[dataset.Mode]*Model, len(modes))}
	for _, mode := range modes {
		if mode.L < 2 || mode.M < 1 || mode.M > mode.L {
			return nil, errors.NewNotSupportedError("mode", mode.String())
		}
		if _, dup := mm.models[mode]; dup {
			return nil, errors.NewValidationError("modes", "must not repeat", mode.String())
		}
		gen, err := factory(mode)
		if err != nil {
			return nil, err
		}
		modeOpts := append(append([]Option{}, opts...), WithMode(mode), WithGenerator(gen))
		m, err := NewModel(ModeName(base, mode), modeOpts...)
		if err != nil {
			return nil, errors.Wrapf(err, "mode %s", mode)
		}
		mm.models[mode] = m
		mm.Modes = append(mm.Modes, mode)
	}
	return mm, nil
}

// Model returns the model of mode, or nil.
func (mm *ModesModel) Model(mode dataset.Mode) *Model {
	return mm.models[mode]
}

func (mm *ModesModel) each(fn func(*Model) error) error {
	for _, mode := range mm.Modes {
		if err := fn(mm.models[mode]); err != nil {
			return errors.Wrapf(err, "mode %s", mode)
		}
	}
	return nil
}

// Generate runs Model.Generate for every mode.
func (mm *ModesModel) Generate(ctx context.Context, sizes GenerateSizes) error {
	return mm.each(func(m *Model) error { return m.Generate(ctx, sizes) })
}

// SetHyperAndTrainNN trains every mode with the same hyperparameters; nil
// selects each mode's tabulated default.
func (mm *ModesModel) SetHyperAndTrainNN(ctx context.Context, hyper *neural.Hyperparameters) error {
	return mm.each(func(m *Model) error { return m.SetHyperAndTrainNN(ctx, hyper) })
}

// Save writes every mode model to dir.
func (mm *ModesModel) Save(dir string) error {
	return mm.each(func(m *Model) error { return m.Save(dir) })
}

// Load reads every mode model from dir.
func (mm *ModesModel) Load(dir string) error {
	return mm.each(func(m *Model) error { return m.Load(dir) })
}

// Predict sums the polarizations predicted by every mode model.
func (mm *ModesModel) Predict(freqsHz []float64, p dataset.ParametersWithExtrinsic) (hp, hc []complex128, err error) {
	hp = make([]complex128, len(freqsHz))
	hc = make([]complex128, len(freqsHz))
	err = mm.each(func(m *Model) error {
		mp, mc, err := m.Predict(freqsHz, p)
		if err != nil {
			return err
		}
		for i := range hp {
			hp[i] += mp[i]
			hc[i] += mc[i]
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return hp, hc, nil
}
