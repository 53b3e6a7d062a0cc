package compress

import (
	"errors"
	"fmt"
	"io"
)

// CompressionType is the codec carried in the low bits of a message's attributes
type CompressionType int8

// Kafka compression types
const (
	NONE   CompressionType = 0
	GZIP   CompressionType = 1
	SNAPPY CompressionType = 2
	LZ4    CompressionType = 3
	ZSTD   CompressionType = 4
)

// codecMask selects the first 3 bits of the attributes
const codecMask = 0x07

// DefaultDecompressLimit bounds decompressed output when the caller has no tighter bound
const DefaultDecompressLimit = 64 << 20

var (
	// ErrUnsupportedCodec is returned for attribute bits that name no known codec
	ErrUnsupportedCodec = errors.New("unsupported compression codec")
	// ErrDecompressLimit is returned when data inflates past the limit given to Decompress
	ErrDecompressLimit = errors.New("decompressed size exceeds limit")
)

var compressors = map[CompressionType]Compressor{
	GZIP:   &GzipCompressor{},
	SNAPPY: &SnappyCompressor{},
	LZ4:    &LZ4Compressor{},
	ZSTD:   &ZSTDCompressor{},
}

func (c CompressionType) String() string {
	switch c {
	case NONE:
		return "none"
	case GZIP:
		return "gzip"
	case SNAPPY:
		return "snappy"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", int8(c))
}

// FromAttributes extracts the compression type from message attributes
func FromAttributes(attributes int8) CompressionType {
	return CompressionType(attributes & codecMask)
}

// GetCompressor returns the Compressor for a compression type. NONE has no compressor.
func GetCompressor(c CompressionType) (Compressor, error) {
	compressor, ok := compressors[c]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, c)
	}
	return compressor, nil
}

// Compressor represents one of the supported compressors.
// Decompress fails with ErrDecompressLimit rather than return more than limit bytes.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, limit int) ([]byte, error)
}

// readLimited reads r to the end, failing once more than limit bytes come out
func readLimited(r io.Reader, limit int) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDecompressLimit, limit)
	}
	return out, nil
}
