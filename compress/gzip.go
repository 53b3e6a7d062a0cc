package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"sync"
)

var (
	gzipWriterPool = sync.Pool{
		New: func() any {
			return gzip.NewWriter(nil)
		},
	}
	// gzip.NewReader needs a valid header, so readers are created lazily
	gzipReaderPool sync.Pool
)

// GzipCompressor implements Compressor interface with the default gzip level
type GzipCompressor struct{}

// Compress gzips data
func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress gunzips data
func (c *GzipCompressor) Decompress(data []byte, limit int) ([]byte, error) {
	var err error
	src := bytes.NewReader(data)
	r, found := gzipReaderPool.Get().(*gzip.Reader)
	if found {
		err = r.Reset(src)
	} else {
		r, err = gzip.NewReader(src)
	}
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gzipReaderPool.Put(r)

	out, err := readLimited(r, limit)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress: %w", err)
	}
	return out, r.Close()
}
