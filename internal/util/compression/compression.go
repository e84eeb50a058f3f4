// Package compression provides the codecs used for draft content at rest.
package compression

import "github.com/pkg/errors"

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	// Name is stored next to the payload so a codec change never strands old rows.
	Name() string
}

const (
	CodecZstd = "zstd"
	CodecGzip = "gzip"
	CodecNone = "none"
)

// For returns the compressor registered under name.
func For(name string) (Compressor, error) {
	switch name {
	case CodecZstd, "":
		return ZstdCompressor{}, nil
	case CodecGzip:
		return GzipCompressor{}, nil
	case CodecNone:
		return NoneCompressor{}, nil
	default:
		return nil, errors.Errorf("unknown compression codec %q", name)
	}
}

type NoneCompressor struct{}

func (NoneCompressor) Compress(data []byte) ([]byte, error)   { return append([]byte(nil), data...), nil }
func (NoneCompressor) Decompress(data []byte) ([]byte, error) { return append([]byte(nil), data...), nil }
func (NoneCompressor) Name() string                           { return CodecNone }
