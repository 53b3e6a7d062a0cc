package compress

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZSTDCompressor implements Compressor interface
type ZSTDCompressor struct{}

// encoders and decoders are expensive to build and safe to reuse with EncodeAll/DecodeAll
var (
	zstdEncoderPool, zstdDecoderPool sync.Pool
)

// Compress applies zstd to data
func (c *ZSTDCompressor) Compress(data []byte) ([]byte, error) {
	enc, found := zstdEncoderPool.Get().(*zstd.Encoder)
	if !found {
		var err error
		// zero length input still produces a full frame, as other kafka clients expect
		enc, err = zstd.NewWriter(nil, zstd.WithZeroFrames(true))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
	}
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

// Decompress streams zstd data through a pooled decoder, whose window is capped as well
func (c *ZSTDCompressor) Decompress(data []byte, limit int) ([]byte, error) {
	dec, found := zstdDecoderPool.Get().(*zstd.Decoder)
	if !found {
		var err error
		dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(DefaultDecompressLimit))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
	}
	defer zstdDecoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	out, err := readLimited(dec, limit)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
