// Package dataset defines the parameter space of the surrogate, the
// waveform generators it is trained against, and the residual
// representation (log-amplitude and flattened phase relative to an
// analytic post-Newtonian baseline).
//
// Frequencies handed to generators are in natural units: Hz multiplied by
// the total mass expressed in seconds.
package dataset

import (
	"math"
	"sync"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Physical constants (SI, IAU nominal solar mass parameter).
const (
	SunMassSeconds   = 4.925490947641267e-6
	SunMassMeters    = 1476.6250382504018
	MegaparsecMeters = 3.085677581491367e22
)

// Defaults for a binary neutron star surrogate.
const (
	DefaultInitialFrequencyHz = 20.0
	DefaultSrateHz            = 4096.0
	DefaultTotalMass          = 2.8
)

// Dataset fixes the dense frequency grid of the surrogate: the initial
// frequency, the sample rate (twice the maximum frequency), the reference
// total mass used to convert Hz to natural units and the grid spacing.
// A Dataset is immutable after construction and safe for concurrent use.
type Dataset struct {
	InitialFrequencyHz float64
	SrateHz            float64
	TotalMass          float64
	DeltaFHz           float64

	once      sync.Once
	freqsHz   []float64
	freqsNatu []float64
}

// DatasetOption configures NewDataset.
type DatasetOption func(*Dataset)

// WithTotalMass sets the reference total mass in solar masses.
func WithTotalMass(m float64) DatasetOption {
	return func(d *Dataset) { d.TotalMass = m }
}

// WithDeltaF overrides the dense grid spacing in Hz. Tests use a coarse
// spacing to keep the dense grid small.
func WithDeltaF(df float64) DatasetOption {
	return func(d *Dataset) { d.DeltaFHz = df }
}

// NewDataset validates the configuration and derives the grid spacing when
// it is not given: 1/T with T the Newtonian chirp time of an equal-mass
// system from the initial frequency, rounded up to a power of two seconds.
func NewDataset(initialFrequencyHz, srateHz float64, opts ...DatasetOption) (*Dataset, error) {
	d := &Dataset{
		InitialFrequencyHz: initialFrequencyHz,
		SrateHz:            srateHz,
		TotalMass:          DefaultTotalMass,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.DeltaFHz == 0 {
		d.DeltaFHz = 1 / d.segmentLength()
	}
	return d, nil
}

// DefaultDataset returns the 20 Hz / 4096 Hz / 2.8 M☉ dataset.
func DefaultDataset() *Dataset {
	d, err := NewDataset(DefaultInitialFrequencyHz, DefaultSrateHz)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks the configuration.
func (d *Dataset) Validate() error {
	switch {
	case d.InitialFrequencyHz <= 0:
		return errors.NewValidationError("initial_frequency_hz", "must be positive", d.InitialFrequencyHz)
	case d.SrateHz/2 <= d.InitialFrequencyHz:
		return errors.NewValidationError("srate_hz", "Nyquist frequency must exceed the initial frequency", d.SrateHz)
	case d.TotalMass <= 0:
		return errors.NewValidationError("total_mass", "must be positive", d.TotalMass)
	case d.DeltaFHz < 0:
		return errors.NewValidationError("delta_f_hz", "must not be negative", d.DeltaFHz)
	}
	return nil
}

// segmentLength is the Newtonian chirp time of an equal-mass binary of the
// reference mass, rounded up to a power of two.
func (d *Dataset) segmentLength() float64 {
	const eta = 0.25
	ms := d.MassSumSeconds()
	tau := 5.0 / (256.0 * eta) * ms * math.Pow(math.Pi*ms*d.InitialFrequencyHz, -8.0/3.0)
	return math.Pow(2, math.Ceil(math.Log2(tau)))
}

// MassSumSeconds returns the reference total mass in seconds.
func (d *Dataset) MassSumSeconds() float64 {
	return d.TotalMass * SunMassSeconds
}

// HzToNaturalUnits converts a frequency in Hz to natural units for the
// reference mass.
func (d *Dataset) HzToNaturalUnits(fHz float64) float64 {
	return fHz * d.MassSumSeconds()
}

func (d *Dataset) grid() {
	d.once.Do(func() {
		n := int(math.Floor((d.SrateHz/2-d.InitialFrequencyHz)/d.DeltaFHz+1e-9)) + 1
		d.freqsHz = make([]float64, n)
		d.freqsNatu = make([]float64, n)
		ms := d.MassSumSeconds()
		for i := range d.freqsHz {
			d.freqsHz[i] = d.InitialFrequencyHz + float64(i)*d.DeltaFHz
			d.freqsNatu[i] = d.freqsHz[i] * ms
		}
	})
}

// FrequenciesHz returns the dense grid in Hz. The slice is shared and must
// not be modified.
func (d *Dataset) FrequenciesHz() []float64 {
	d.grid()
	return d.freqsHz
}

// FrequenciesNatural returns the dense grid in natural units. The slice is
// shared and must not be modified.
func (d *Dataset) FrequenciesNatural() []float64 {
	d.grid()
	return d.freqsNatu
}

// Len returns the number of dense grid points.
func (d *Dataset) Len() int {
	return len(d.FrequenciesHz())
}

// Prefactor converts a natural-unit amplitude into strain per Hz at a
// distance of one megaparsec: η·M[s]·M[m]/Mpc.
func (d *Dataset) Prefactor(eta, totalMass float64) float64 {
	return eta * totalMass * SunMassSeconds * totalMass * SunMassMeters / MegaparsecMeters
}

// Descriptor returns the defining numbers of the dataset for persistence.
func (d *Dataset) Descriptor() []float64 {
	return []float64{d.InitialFrequencyHz, d.SrateHz, d.TotalMass, d.DeltaFHz}
}

// DatasetFromDescriptor rebuilds a Dataset saved with Descriptor.
func DatasetFromDescriptor(v []float64) (*Dataset, error) {
	if len(v) != 4 {
		return nil, errors.NewDimensionError("DatasetFromDescriptor", 4, len(v), 0)
	}
	return NewDataset(v[0], v[1], WithTotalMass(v[2]), WithDeltaF(v[3]))
}
