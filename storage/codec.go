// Package storage implements the compressed, checksummed array container
// used to persist surrogate model artifacts.
package storage

import (
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Codec identifies the payload compression algorithm. The numeric value is
// written to the container header and must stay stable.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecS2
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecS2:
		return "s2"
	case CodecLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCodec maps a configuration name to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none", "":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "s2":
		return CodecS2, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return CodecNone, errors.NewNotSupportedError("storage codec", name)
	}
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderCRC(false))
		if err != nil {
			panic(err)
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		return dec
	},
}

func (c Codec) compress(raw []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return raw, nil
	case CodecZstd:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(raw, nil), nil
	case CodecS2:
		return s2.Encode(nil, raw), nil
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		var lc lz4.Compressor
		n, err := lc.CompressBlock(raw, dst)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 compression failed")
		}
		return dst[:n], nil
	default:
		return nil, errors.NewNotSupportedError("storage codec", uint8(c))
	}
}

// decompress inflates data; rawLen is the payload size recorded in the header.
func (c Codec) decompress(data []byte, rawLen int) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecZstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil {
			return nil, errors.Wrap(err, "zstd decompression failed")
		}
		return out, nil
	case CodecS2:
		out, err := s2.Decode(make([]byte, rawLen), data)
		if err != nil {
			return nil, errors.Wrap(err, "s2 decompression failed")
		}
		return out, nil
	case CodecLZ4:
		// an empty payload compresses to an empty lz4 block
		if rawLen == 0 {
			return nil, nil
		}
		buf := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, buf)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 decompression failed")
		}
		return buf[:n], nil
	default:
		return nil, errors.NewNotSupportedError("storage codec", uint8(c))
	}
}
