package cache

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	pkgerrors "github.com/pkg/errors"
)

// maxDecompressedBytes bounds decompression so a corrupt or hostile entry
// cannot exhaust memory.
const maxDecompressedBytes = 64 << 20

// Compressor gzips payloads over a size threshold. Reads sniff the gzip
// magic bytes, so compressed and plain entries coexist under one key schema.
type Compressor struct {
	threshold int
	level     int
}

// NewCompressor creates a compressor. Payloads smaller than threshold bytes
// are stored as-is; threshold <= 0 disables compression entirely.
func NewCompressor(threshold int) *Compressor {
	return &Compressor{threshold: threshold, level: gzip.BestSpeed}
}

// Compress returns data gzipped when it is large enough and compression
// actually shrinks it; otherwise the original bytes.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if c.threshold <= 0 || len(data) < c.threshold {
		return data, nil
	}

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "creating gzip writer")
	}
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return nil, pkgerrors.Wrap(err, "compressing payload")
	}
	if err := gz.Close(); err != nil {
		return nil, pkgerrors.Wrap(err, "finishing gzip stream")
	}

	if buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. Plain payloads pass through untouched.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if !isGzip(data) {
		return data, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "creating gzip reader")
	}
	defer func() { _ = gz.Close() }()

	out, err := io.ReadAll(io.LimitReader(gz, maxDecompressedBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "decompressing payload")
	}
	return out, nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
