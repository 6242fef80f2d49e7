// Package compression provides streaming codecs for archived data files.
//
// Sweep data files are plain text and grow one line per invocation, so they
// are compressed only when archived. Every codec is framed and streaming,
// and the algorithm of an archive is recovered from its file extension:
//
//	.gz   gzip   (klauspost/compress/gzip)
//	.zst  zstd   (klauspost/compress/zstd)
//	.lz4  lz4    (pierrec/lz4/v4)
//	.s2   s2     (klauspost/compress/s2)
//	.sz   snappy (klauspost/compress/snappy, framed)
//
// # Basic Usage
//
//	w, err := compression.NewWriter(f, compression.Zstd, compression.Default)
//	...
//	r, err := compression.NewReader(f, compression.FromPath(path))
package compression

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

var extensions = map[Algorithm]string{
	Gzip:   ".gz",
	Snappy: ".sz",
	LZ4:    ".lz4",
	Zstd:   ".zst",
	S2:     ".s2",
}

// Algorithms lists the supported codecs, excluding None
func Algorithms() []Algorithm {
	return []Algorithm{Gzip, Zstd, LZ4, S2, Snappy}
}

// ParseAlgorithm accepts an algorithm name or a file extension
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(None) {
		return None, nil
	}
	for a, ext := range extensions {
		if s == string(a) || s == ext || "."+s == ext {
			return a, nil
		}
	}
	return None, fmt.Errorf("unsupported compression algorithm: %s", s)
}

// Extension returns the file extension used for a, including the dot.
// None has no extension.
func (a Algorithm) Extension() string {
	return extensions[a]
}

// FromPath returns the algorithm implied by a file's extension, or None
func FromPath(path string) Algorithm {
	ext := strings.ToLower(filepath.Ext(path))
	for a, e := range extensions {
		if e == ext {
			return a
		}
	}
	return None
}

// StripExtension removes a recognized compression extension from path
func StripExtension(path string) string {
	if a := FromPath(path); a != None {
		return strings.TrimSuffix(path, filepath.Ext(path))
	}
	return path
}

// NewWriter returns a writer that compresses into dst. Close flushes the
// final frame but does not close dst.
func NewWriter(dst io.Writer, a Algorithm, level Level) (io.WriteCloser, error) {
	switch a {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, mapGzipLevel(level))
	case Zstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(level)))
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, err
		}
		return w, nil
	case S2:
		opts := []s2.WriterOption{s2.WriterConcurrency(1)}
		if level >= Better {
			opts = append(opts, s2.WriterBetterCompression())
		}
		return s2.NewWriter(dst, opts...), nil
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", a)
	}
}

// NewReader returns a reader that decompresses src
func NewReader(src io.Reader, a Algorithm) (io.ReadCloser, error) {
	switch a {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		return gzip.NewReader(src)
	case Zstd:
		dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", a)
	}
}

// CompressStream compresses everything from src into dst
func CompressStream(dst io.Writer, src io.Reader, a Algorithm, level Level) error {
	w, err := NewWriter(dst, a, level)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// DecompressStream decompresses everything from src into dst
func DecompressStream(dst io.Writer, src io.Reader, a Algorithm) error {
	r, err := NewReader(src, a)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(dst, r) //nolint:gosec // archives are produced locally
	return err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
