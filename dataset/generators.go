package dataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ParameterGenerator produces parameter vectors inside a training region.
type ParameterGenerator interface {
	Next() WaveformParameters
	Generate(n int) *ParameterSet
}

func generate(g ParameterGenerator, n int) *ParameterSet {
	if n <= 0 {
		return &ParameterSet{}
	}
	m := mat.NewDense(n, NumParameters, nil)
	for i := 0; i < n; i++ {
		m.SetRow(i, g.Next().Array())
	}
	return &ParameterSet{Parameters: m}
}

// UniformParameterGenerator draws every parameter independently and
// uniformly from its range. The sequence is fully determined by the seed.
type UniformParameterGenerator struct {
	Ranges  ParameterRanges
	Dataset *Dataset

	rng *rand.Rand
}

// NewUniformParameterGenerator returns a generator seeded with seed.
func NewUniformParameterGenerator(ranges ParameterRanges, ds *Dataset, seed uint64) (*UniformParameterGenerator, error) {
	if err := ranges.Validate(); err != nil {
		return nil, err
	}
	return &UniformParameterGenerator{
		Ranges:  ranges,
		Dataset: ds,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Next draws one parameter vector.
func (g *UniformParameterGenerator) Next() WaveformParameters {
	var v [NumParameters]float64
	for i, b := range g.Ranges.bounds() {
		v[i] = b[0] + g.rng.Float64()*(b[1]-b[0])
	}
	return WaveformParameters{
		MassRatio: v[0],
		Lambda1:   v[1],
		Lambda2:   v[2],
		Chi1:      v[3],
		Chi2:      v[4],
		Dataset:   g.Dataset,
	}
}

// Generate draws n parameter vectors.
func (g *UniformParameterGenerator) Generate(n int) *ParameterSet {
	return generate(g, n)
}

// FixedParameterGenerator replays a fixed list, cycling when exhausted.
// It is used for structured (non-random) validation sets.
type FixedParameterGenerator struct {
	List []WaveformParameters

	pos int
}

// NewFixedParameterGenerator returns a generator over list.
func NewFixedParameterGenerator(list []WaveformParameters) *FixedParameterGenerator {
	return &FixedParameterGenerator{List: list}
}

// Next returns the next element of the list.
func (g *FixedParameterGenerator) Next() WaveformParameters {
	p := g.List[g.pos%len(g.List)]
	g.pos++
	return p
}

// Generate returns the next n elements of the list.
func (g *FixedParameterGenerator) Generate(n int) *ParameterSet {
	if len(g.List) == 0 {
		return &ParameterSet{}
	}
	return generate(g, n)
}
