package dataset

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// NumParameters is the number of intrinsic parameters per waveform.
const NumParameters = 5

// WaveformParameters are the intrinsic parameters of a binary neutron star
// system. The mass ratio is q = m1/m2 ≥ 1; Lambda1 and Chi1 belong to the
// heavier star.
type WaveformParameters struct {
	MassRatio float64
	Lambda1   float64
	Lambda2   float64
	Chi1      float64
	Chi2      float64

	Dataset *Dataset
}

// Eta returns the symmetric mass ratio q/(1+q)².
func (p WaveformParameters) Eta() float64 {
	return p.MassRatio / ((1 + p.MassRatio) * (1 + p.MassRatio))
}

// massFractions returns m1/M and m2/M.
func (p WaveformParameters) massFractions() (float64, float64) {
	return p.MassRatio / (1 + p.MassRatio), 1 / (1 + p.MassRatio)
}

// Validate checks the physical domain of the parameters.
func (p WaveformParameters) Validate() error {
	switch {
	case !(p.MassRatio >= 1):
		return errors.NewValidationError("mass_ratio", "must be at least 1", p.MassRatio)
	case !(p.Lambda1 >= 0):
		return errors.NewValidationError("lambda_1", "must not be negative", p.Lambda1)
	case !(p.Lambda2 >= 0):
		return errors.NewValidationError("lambda_2", "must not be negative", p.Lambda2)
	case !(math.Abs(p.Chi1) <= 1):
		return errors.NewValidationError("chi_1", "must lie in [-1, 1]", p.Chi1)
	case !(math.Abs(p.Chi2) <= 1):
		return errors.NewValidationError("chi_2", "must lie in [-1, 1]", p.Chi2)
	}
	return nil
}

// Array returns [q, Λ1, Λ2, χ1, χ2].
func (p WaveformParameters) Array() []float64 {
	return []float64{p.MassRatio, p.Lambda1, p.Lambda2, p.Chi1, p.Chi2}
}

// LambdaTilde returns the leading-order effective tidal deformability Λ̃.
func (p WaveformParameters) LambdaTilde() float64 {
	eta := p.Eta()
	s := math.Sqrt(1 - 4*eta)
	sum := p.Lambda1 + p.Lambda2
	diff := p.Lambda1 - p.Lambda2
	return 8.0 / 13.0 * ((1+7*eta-31*eta*eta)*sum + s*(1+9*eta-11*eta*eta)*diff)
}

// DeltaLambdaTilde returns the next-to-leading tidal combination δΛ̃.
func (p WaveformParameters) DeltaLambdaTilde() float64 {
	eta := p.Eta()
	s := math.Sqrt(1 - 4*eta)
	sum := p.Lambda1 + p.Lambda2
	diff := p.Lambda1 - p.Lambda2
	return 0.5 * (s*(1-13272.0/1319.0*eta+8944.0/1319.0*eta*eta)*sum +
		(1-15910.0/1319.0*eta+32850.0/1319.0*eta*eta+3380.0/1319.0*eta*eta*eta)*diff)
}

// ParametersWithExtrinsic adds the extrinsic parameters a prediction
// needs to the intrinsic ones.
type ParametersWithExtrinsic struct {
	MassRatio float64
	Lambda1   float64
	Lambda2   float64
	Chi1      float64
	Chi2      float64

	DistanceMpc    float64
	Inclination    float64
	TotalMass      float64
	ReferencePhase float64
	TimeShift      float64
}

// GW170817 returns parameters close to the GW170817 posterior.
func GW170817() ParametersWithExtrinsic {
	return ParametersWithExtrinsic{
		MassRatio:   1.0,
		Lambda1:     400,
		Lambda2:     400,
		Chi1:        0,
		Chi2:        0,
		DistanceMpc: 40,
		Inclination: 5 * math.Pi / 6,
		TotalMass:   2.8,
	}
}

// Intrinsic copies the intrinsic fields, bound to ds.
func (p ParametersWithExtrinsic) Intrinsic(ds *Dataset) WaveformParameters {
	return WaveformParameters{
		MassRatio: p.MassRatio,
		Lambda1:   p.Lambda1,
		Lambda2:   p.Lambda2,
		Chi1:      p.Chi1,
		Chi2:      p.Chi2,
		Dataset:   ds,
	}
}

// MassSumSeconds returns the total mass in seconds.
func (p ParametersWithExtrinsic) MassSumSeconds() float64 {
	return p.TotalMass * SunMassSeconds
}

// Validate checks intrinsic and extrinsic parameters.
func (p ParametersWithExtrinsic) Validate() error {
	if err := p.Intrinsic(nil).Validate(); err != nil {
		return err
	}
	switch {
	case !(p.DistanceMpc > 0):
		return errors.NewValidationError("distance_mpc", "must be positive", p.DistanceMpc)
	case !(p.TotalMass > 0):
		return errors.NewValidationError("total_mass", "must be positive", p.TotalMass)
	}
	return nil
}

// ParameterSet stores N parameter vectors as the rows of an N×5 matrix.
type ParameterSet struct {
	Parameters *mat.Dense
}

// NewParameterSet wraps an N×5 matrix.
func NewParameterSet(m *mat.Dense) (*ParameterSet, error) {
	if m == nil {
		return nil, errors.NewModelError("NewParameterSet", "empty data", errors.ErrEmptyData)
	}
	if _, c := m.Dims(); c != NumParameters {
		return nil, errors.NewDimensionError("NewParameterSet", NumParameters, c, 1)
	}
	return &ParameterSet{Parameters: m}, nil
}

// ParameterSetFromList stacks parameter values row by row.
func ParameterSetFromList(list []WaveformParameters) *ParameterSet {
	if len(list) == 0 {
		return &ParameterSet{}
	}
	m := mat.NewDense(len(list), NumParameters, nil)
	for i, p := range list {
		m.SetRow(i, p.Array())
	}
	return &ParameterSet{Parameters: m}
}

// Len returns the number of parameter vectors.
func (s *ParameterSet) Len() int {
	if s == nil || s.Parameters == nil {
		return 0
	}
	r, _ := s.Parameters.Dims()
	return r
}

// Array returns the underlying matrix.
func (s *ParameterSet) Array() *mat.Dense {
	return s.Parameters
}

// At returns row i as WaveformParameters bound to ds.
func (s *ParameterSet) At(i int, ds *Dataset) WaveformParameters {
	row := s.Parameters.RawRowView(i)
	return WaveformParameters{
		MassRatio: row[0],
		Lambda1:   row[1],
		Lambda2:   row[2],
		Chi1:      row[3],
		Chi2:      row[4],
		Dataset:   ds,
	}
}

// ToList returns every row as WaveformParameters bound to ds.
func (s *ParameterSet) ToList(ds *Dataset) []WaveformParameters {
	out := make([]WaveformParameters, s.Len())
	for i := range out {
		out[i] = s.At(i, ds)
	}
	return out
}

// Subset returns a copy of the selected rows, in the given order.
func (s *ParameterSet) Subset(indices []int) (*ParameterSet, error) {
	n := s.Len()
	if len(indices) == 0 {
		return &ParameterSet{}, nil
	}
	m := mat.NewDense(len(indices), NumParameters, nil)
	for k, i := range indices {
		if i < 0 || i >= n {
			return nil, errors.NewValueError("ParameterSet.Subset", "row index out of range")
		}
		m.SetRow(k, s.Parameters.RawRowView(i))
	}
	return &ParameterSet{Parameters: m}, nil
}

// Fingerprint hashes the parameter values. Two sets with the same values
// in the same order share a fingerprint.
func (s *ParameterSet) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for i := 0; i < s.Len(); i++ {
		for _, v := range s.Parameters.RawRowView(i) {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = d.Write(buf[:])
		}
	}
	return d.Sum64()
}

// ParameterRanges bounds the training region. Bounds are inclusive.
type ParameterRanges struct {
	MassRange    [2]float64 `yaml:"mass_range"`
	Lambda1Range [2]float64 `yaml:"lambda1_range"`
	Lambda2Range [2]float64 `yaml:"lambda2_range"`
	Chi1Range    [2]float64 `yaml:"chi1_range"`
	Chi2Range    [2]float64 `yaml:"chi2_range"`
}

// DefaultParameterRanges returns q ∈ [1,2], Λ ∈ [5,5000], χ ∈ [−0.5,0.5].
func DefaultParameterRanges() ParameterRanges {
	return ParameterRanges{
		MassRange:    [2]float64{1, 2},
		Lambda1Range: [2]float64{5, 5000},
		Lambda2Range: [2]float64{5, 5000},
		Chi1Range:    [2]float64{-0.5, 0.5},
		Chi2Range:    [2]float64{-0.5, 0.5},
	}
}

func (r ParameterRanges) bounds() [NumParameters][2]float64 {
	return [NumParameters][2]float64{r.MassRange, r.Lambda1Range, r.Lambda2Range, r.Chi1Range, r.Chi2Range}
}

// Validate checks that every range is ordered and physically allowed.
func (r ParameterRanges) Validate() error {
	names := [NumParameters]string{"mass_range", "lambda1_range", "lambda2_range", "chi1_range", "chi2_range"}
	for i, b := range r.bounds() {
		if b[0] > b[1] {
			return errors.NewValidationError(names[i], "lower bound exceeds upper bound", b)
		}
	}
	lo := WaveformParameters{r.MassRange[0], r.Lambda1Range[0], r.Lambda2Range[0], r.Chi1Range[0], r.Chi2Range[0], nil}
	hi := WaveformParameters{r.MassRange[1], r.Lambda1Range[1], r.Lambda2Range[1], r.Chi1Range[1], r.Chi2Range[1], nil}
	if err := lo.Validate(); err != nil {
		return err
	}
	return hi.Validate()
}

// Contains reports whether p lies inside the ranges.
func (r ParameterRanges) Contains(p WaveformParameters) bool {
	v := p.Array()
	for i, b := range r.bounds() {
		if v[i] < b[0] || v[i] > b[1] {
			return false
		}
	}
	return true
}
