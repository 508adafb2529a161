package crypto

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// GzipCompressor is the stock Compressor implementation. No compression
// library appears anywhere in the retrieved example pack, so this stays on
// the standard library rather than inventing a dependency with nothing to
// ground it on.
type GzipCompressor struct{}

func (GzipCompressor) Topic() string { return "gzip" }

func (GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("crypto: gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("crypto: gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("crypto: gzip decompress: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("crypto: gzip decompress: %w", err)
	}
	return out, nil
}

var _ Compressor = GzipCompressor{}
