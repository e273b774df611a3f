package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

func sampleArrays() Arrays {
	m := mat.NewDense(3, 4, nil)
	m.Apply(func(i, j int, _ float64) float64 { return float64(i*10+j) + 0.25 }, m)
	return Arrays{
		KeyAmplitudeIndices: Ints([]int{0, 3, 9, 40}),
		KeyPCAMean:          Vector([]float64{1.5, -2, 1e-9}),
		KeyPCAEigenvectors:  Matrix(m),
		KeyDataset:          Vector([]float64{20, 4096, 2.8, 0.25}),
	}
}

func TestRoundTripAllCodecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecS2, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, sampleArrays(), codec))
			assert.Equal(t, Magic, buf.String()[:4])

			got, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, sampleArrays(), got)

			idx, err := got[KeyAmplitudeIndices].IntSlice()
			require.NoError(t, err)
			assert.Equal(t, []int{0, 3, 9, 40}, idx)

			d, err := got[KeyPCAEigenvectors].Dense()
			require.NoError(t, err)
			assert.Equal(t, 23.25, d.At(2, 3))
		})
	}
}

func TestParseCodec(t *testing.T) {
	for _, name := range []string{"none", "zstd", "s2", "lz4"} {
		c, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}
	_, err := ParseCodec("gzip")
	var ns *errors.NotSupportedError
	assert.True(t, errors.As(err, &ns))
}

func TestReadDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleArrays(), CodecNone))
	data := buf.Bytes()
	data[len(data)-5] ^= 0xff

	_, err := Read(bytes.NewReader(data))
	var ve *errors.ValueError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "checksum")
}

func TestReadRejectsBadHeader(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("GWS")))
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleArrays(), CodecS2))
	data := append([]byte(nil), buf.Bytes()...)
	copy(data, "XXXX")
	_, err = Read(bytes.NewReader(data))
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))

	data = append([]byte(nil), buf.Bytes()...)
	data[4] = Version + 1
	_, err = Read(bytes.NewReader(data))
	var ns *errors.NotSupportedError
	assert.True(t, errors.As(err, &ns))
}

func TestWriteRejectsInconsistentArray(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Arrays{"bad": {Shape: []int{2, 2}, Data: []float64{1}}}, CodecNone)
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_arrays.gws")
	require.NoError(t, WriteFile(path, sampleArrays(), CodecZstd))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyAmplitudeIndices, KeyDataset, KeyPCAEigenvectors, KeyPCAMean}, got.Keys())

	_, err = got.Get(KeyPhaseIndices)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.gws"))
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))
}

func TestArrayConversions(t *testing.T) {
	_, err := Array{Shape: []int{2}, Data: []float64{1.5, 2}}.IntSlice()
	assert.Error(t, err)

	_, err = Array{Shape: []int{1, 1, 1}, Data: []float64{1}}.Dense()
	assert.Error(t, err)

	row, err := Vector([]float64{1, 2, 3}).Dense()
	require.NoError(t, err)
	r, c := row.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 3, c)
}
