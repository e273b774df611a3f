package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Container layout, little endian:
//
//	magic "GWSA" | version u8 | codec u8 | raw length u64 | xxhash64 u64 | payload
//
// The payload is the gob encoding of map[string]Array, compressed with codec.
const (
	Magic   = "GWSA"
	Version = 1

	headerSize = 4 + 1 + 1 + 8 + 8
	// maxRawLength bounds allocations when reading a damaged header.
	maxRawLength = 1 << 34
)

// Fixed keys of the model arrays file.
const (
	KeyAmplitudeIndices   = "downsampling/amplitude_indices"
	KeyPhaseIndices       = "downsampling/phase_indices"
	KeyInterpolator       = "downsampling/interpolator"
	KeyPCAMean            = "pca/mean"
	KeyPCAEigenvectors    = "pca/eigenvectors"
	KeyPCAEigenvalues     = "pca/eigenvalues"
	KeyTrainingParameters = "training/parameters"
	KeyAmplitudeResiduals = "training/amplitude_residuals"
	KeyPhaseResiduals     = "training/phase_residuals"
	KeyScalerMean         = "training/scaler_mean"
	KeyScalerScale        = "training/scaler_scale"
	KeyDataset            = "meta/dataset"
)

// Array is a dense row-major n-dimensional float64 array.
type Array struct {
	Shape []int
	Data  []float64
}

// Vector wraps a 1-D slice.
func Vector(v []float64) Array {
	return Array{Shape: []int{len(v)}, Data: append([]float64(nil), v...)}
}

// Ints wraps integer indices.
func Ints(v []int) Array {
	data := make([]float64, len(v))
	for i, x := range v {
		data[i] = float64(x)
	}
	return Array{Shape: []int{len(v)}, Data: data}
}

// Matrix wraps a matrix as a 2-D array.
func Matrix(m mat.Matrix) Array {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return Array{Shape: []int{r, c}, Data: data}
}

// Validate checks that the shape matches the data length.
func (a Array) Validate() error {
	size := 1
	for _, s := range a.Shape {
		if s < 0 {
			return errors.NewValidationError("shape", "dimensions must not be negative", a.Shape)
		}
		size *= s
	}
	if size != len(a.Data) {
		return errors.NewDimensionError("Array.Validate", size, len(a.Data), 0)
	}
	return nil
}

// Dense returns the array as a matrix; 1-D arrays become a single row.
func (a Array) Dense() (*mat.Dense, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	switch len(a.Shape) {
	case 1:
		if a.Shape[0] == 0 {
			return nil, errors.NewValueError("Array.Dense", "empty array")
		}
		return mat.NewDense(1, a.Shape[0], append([]float64(nil), a.Data...)), nil
	case 2:
		if a.Shape[0] == 0 || a.Shape[1] == 0 {
			return nil, errors.NewValueError("Array.Dense", "empty array")
		}
		return mat.NewDense(a.Shape[0], a.Shape[1], append([]float64(nil), a.Data...)), nil
	default:
		return nil, errors.NewDimensionError("Array.Dense", 2, len(a.Shape), 0)
	}
}

// IntSlice converts the data to integers. Non-integral values are rejected.
func (a Array) IntSlice() ([]int, error) {
	out := make([]int, len(a.Data))
	for i, v := range a.Data {
		if v != float64(int(v)) {
			return nil, errors.NewValidationError("indices", "must be integral", v)
		}
		out[i] = int(v)
	}
	return out, nil
}

// Arrays is the content of a container file.
type Arrays map[string]Array

// Get returns the array stored under key, or a ValueError naming it.
func (as Arrays) Get(key string) (Array, error) {
	a, ok := as[key]
	if !ok {
		return Array{}, errors.NewValueError("Arrays.Get", "missing array "+key)
	}
	return a, nil
}

// Keys returns the stored keys in sorted order.
func (as Arrays) Keys() []string {
	keys := make([]string, 0, len(as))
	for k := range as {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write encodes arrays into w.
func Write(w io.Writer, arrays Arrays, codec Codec) error {
	for k, a := range arrays {
		if err := a.Validate(); err != nil {
			return errors.Wrapf(err, "array %s", k)
		}
	}
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(map[string]Array(arrays)); err != nil {
		return errors.Wrap(err, "failed to encode arrays")
	}
	payload, err := codec.compress(raw.Bytes())
	if err != nil {
		return err
	}

	header := make([]byte, headerSize)
	copy(header, Magic)
	header[4] = Version
	header[5] = byte(codec)
	binary.LittleEndian.PutUint64(header[6:], uint64(raw.Len()))
	binary.LittleEndian.PutUint64(header[14:], xxhash.Sum64(raw.Bytes()))

	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "failed to write container header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "failed to write container payload")
	}
	return nil
}

// Read decodes a container, verifying magic, version and checksum.
func Read(r io.Reader) (Arrays, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.NewModelError("storage.Read", "truncated header", err)
	}
	if string(header[:4]) != Magic {
		return nil, errors.NewValueError("storage.Read", "not an arrays container")
	}
	if header[4] != Version {
		return nil, errors.NewNotSupportedError("container version", header[4])
	}
	codec := Codec(header[5])
	rawLen := binary.LittleEndian.Uint64(header[6:])
	sum := binary.LittleEndian.Uint64(header[14:])
	if rawLen > maxRawLength {
		return nil, errors.NewValueError("storage.Read", "declared payload size is implausible")
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read container payload")
	}
	raw, err := codec.decompress(payload, int(rawLen))
	if err != nil {
		return nil, err
	}
	if uint64(len(raw)) != rawLen || xxhash.Sum64(raw) != sum {
		return nil, errors.NewValueError("storage.Read", "checksum mismatch, the container is corrupted")
	}

	var arrays map[string]Array
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&arrays); err != nil {
		return nil, errors.Wrap(err, "failed to decode arrays")
	}
	for k, a := range arrays {
		if err := a.Validate(); err != nil {
			return nil, errors.Wrapf(err, "array %s", k)
		}
	}
	return arrays, nil
}

// WriteFile writes arrays to path.
func WriteFile(path string, arrays Arrays, codec Codec) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %s", path)
		}
	}()
	return Write(f, arrays, codec)
}

// ReadFile reads arrays from path. A missing file yields ErrFileNotFound.
func ReadFile(path string) (Arrays, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(errors.ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return Read(f)
}
