package compress

import (
	"bytes"
	"encoding/binary"
	"fmt"

	// Kafka clients frame snappy data the way the java xerial library does,
	// which github.com/golang/snappy alone cannot read. go-xerial-snappy handles both forms.
	xerial "github.com/eapache/go-xerial-snappy"
	"github.com/golang/snappy"
)

// xerial framing: 8 bytes of magic, two int32 versions, then [int32 size][snappy block] chunks
var xerialHeader = []byte{130, 'S', 'N', 'A', 'P', 'P', 'Y', 0}

const xerialHeaderSize = 16

// SnappyCompressor implements Compressor interface
type SnappyCompressor struct{}

// Compress applies snappy with xerial framing
func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return xerial.EncodeStream(nil, data), nil
}

// Decompress accepts both raw snappy blocks and xerial framed streams
func (c *SnappyCompressor) Decompress(data []byte, limit int) ([]byte, error) {
	n, err := decodedLen(data, limit)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrDecompressLimit, n, limit)
	}
	return xerial.Decode(data)
}

// decodedLen sums the lengths announced by the snappy blocks of data, stopping once past limit
func decodedLen(data []byte, limit int) (int, error) {
	if len(data) < len(xerialHeader) || !bytes.Equal(data[:len(xerialHeader)], xerialHeader) {
		return snappy.DecodedLen(data)
	}
	total := 0
	for pos := xerialHeaderSize; pos+4 <= len(data) && total <= limit; {
		size := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if size > len(data)-pos {
			return 0, snappy.ErrCorrupt
		}
		n, err := snappy.DecodedLen(data[pos : pos+size])
		if err != nil {
			return 0, err
		}
		total += n
		pos += size
	}
	return total, nil
}
