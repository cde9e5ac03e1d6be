// Package compression provides compression support for slotpool reports
// with multiple algorithms, configurable levels, and streaming writers.
//
// # Overview
//
// The compression package provides:
//   - Multiple compression algorithms (Gzip, Snappy, LZ4, Zstd, S2, Deflate)
//   - Configurable compression levels (Fastest, Default, Better, Best)
//   - Both in-memory and streaming operations
//   - Algorithm selection from file extensions
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Default,
//	})
//
//	// Compress a report as it is written
//	w, err := comp.NewWriter(file)
//	json.NewEncoder(w).Encode(report)
//	w.Close()
//
// # Performance Characteristics
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd > Gzip/Deflate
// Compression ratio (best to worst): Zstd > Gzip/Deflate > Snappy/S2 > LZ4
package compression

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/slotpool/pkg/errors"
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
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
)

// extensions maps file extensions to the algorithm that produces them.
var extensions = map[string]Algorithm{
	".gz":      Gzip,
	".gzip":    Gzip,
	".sz":      Snappy,
	".lz4":     LZ4,
	".zst":     Zstd,
	".zstd":    Zstd,
	".s2":      S2,
	".deflate": Deflate,
}

// ParseAlgorithm converts a configuration string to an Algorithm. The empty
// string is None.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(s)); a {
	case "":
		return None, nil
	case None, Gzip, Snappy, LZ4, Zstd, S2, Deflate:
		return a, nil
	default:
		return "", errors.New(errors.ErrorTypeValidation, "unsupported compression algorithm").
			WithDetail("algorithm", s)
	}
}

// AlgorithmFromPath infers the algorithm from a file name's extension,
// returning None for unrecognized extensions.
func AlgorithmFromPath(path string) Algorithm {
	if a, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return a
	}
	return None
}

// Extension returns the conventional file extension for a, or "" for None.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	case S2:
		return ".s2"
	case Deflate:
		return ".deflate"
	default:
		return ""
	}
}

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

func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Default:
		return "default"
	case Better:
		return "better"
	case Best:
		return "best"
	default:
		return "unknown"
	}
}

// Compressor provides compression and decompression functionality.
// All implementations are safe for concurrent use.
type Compressor interface {
	// NewWriter returns a writer that compresses into dst. Close flushes
	// the stream; it does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)

	// Compress compresses data and returns the compressed bytes.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	Decompress(data []byte) ([]byte, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm // Compression algorithm to use
	Level     Level     // Compression level
}

// DefaultConfig returns the configuration used when none is given: zstd at
// the default level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Zstd,
		Level:     Default,
	}
}

// NewCompressor creates a new compressor based on the provided configuration.
// If config is nil, default configuration is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	base := baseCompressor{algorithm: config.Algorithm, level: config.Level}

	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &streamCompressor{baseCompressor: base, codec: noneCodec{}}, nil
	case Gzip:
		return &streamCompressor{baseCompressor: base, codec: gzipCodec{level: mapGzipLevel(config.Level)}}, nil
	case Snappy:
		return &streamCompressor{baseCompressor: base, codec: snappyCodec{}}, nil
	case LZ4:
		return &streamCompressor{baseCompressor: base, codec: lz4Codec{level: mapLZ4Level(config.Level)}}, nil
	case Zstd:
		return newZstdCompressor(base, mapZstdLevel(config.Level))
	case S2:
		return &streamCompressor{baseCompressor: base, codec: s2Codec{}}, nil
	case Deflate:
		return &streamCompressor{baseCompressor: base, codec: deflateCodec{level: mapDeflateLevel(config.Level)}}, nil
	default:
		return nil, errors.New(errors.ErrorTypeValidation, "unsupported compression algorithm").
			WithDetail("algorithm", string(config.Algorithm))
	}
}

// Base compressor implementation
type baseCompressor struct {
	algorithm Algorithm
	level     Level
}

// Algorithm returns the compression algorithm
func (bc *baseCompressor) Algorithm() Algorithm {
	return bc.algorithm
}

// Level returns the compression level
func (bc *baseCompressor) Level() Level {
	return bc.level
}

// codec creates the stream halves of one algorithm.
type codec interface {
	writer(dst io.Writer) (io.WriteCloser, error)
	reader(src io.Reader) (io.ReadCloser, error)
}

// streamCompressor implements the buffer operations on top of a codec.
type streamCompressor struct {
	baseCompressor
	codec codec
}

func (sc *streamCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return sc.codec.writer(dst)
}

func (sc *streamCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := sc.codec.writer(&buf)
	if err != nil {
		return nil, sc.wrap(err, "compress")
	}
	if _, err := w.Write(data); err != nil {
		return nil, sc.wrap(err, "compress")
	}
	if err := w.Close(); err != nil {
		return nil, sc.wrap(err, "compress")
	}
	return buf.Bytes(), nil
}

func (sc *streamCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := sc.codec.reader(bytes.NewReader(data))
	if err != nil {
		return nil, sc.wrap(err, "decompress")
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil { //nolint:gosec // G110: inputs are our own reports
		return nil, sc.wrap(err, "decompress")
	}
	return buf.Bytes(), nil
}

func (sc *streamCompressor) wrap(err error, op string) error {
	return errors.Wrap(err, errors.ErrorTypeInternal, op+" failed").
		WithDetail("algorithm", string(sc.algorithm))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// None codec (no compression)
type noneCodec struct{}

func (noneCodec) writer(dst io.Writer) (io.WriteCloser, error) { return nopWriteCloser{dst}, nil }
func (noneCodec) reader(src io.Reader) (io.ReadCloser, error) { return io.NopCloser(src), nil }

// Gzip codec
type gzipCodec struct{ level int }

func (c gzipCodec) writer(dst io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(dst, c.level)
}

func (gzipCodec) reader(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

// Snappy codec (framed format)
type snappyCodec struct{}

func (snappyCodec) writer(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

func (snappyCodec) reader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}

// LZ4 codec
type lz4Codec struct{ level lz4.CompressionLevel }

func (c lz4Codec) writer(dst io.Writer) (io.WriteCloser, error) {
	w := lz4.NewWriter(dst)
	if err := w.Apply(lz4.CompressionLevelOption(c.level)); err != nil {
		return nil, err
	}
	return w, nil
}

func (lz4Codec) reader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(src)), nil
}

// S2 codec
type s2Codec struct{}

func (s2Codec) writer(dst io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(dst), nil
}

func (s2Codec) reader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(src)), nil
}

// Deflate codec
type deflateCodec struct{ level int }

func (c deflateCodec) writer(dst io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(dst, c.level)
}

func (deflateCodec) reader(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

// Zstd compressor. Buffer operations reuse pooled encoders and decoders;
// streams get their own.
type zstdCompressor struct {
	streamCompressor
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newZstdCompressor(base baseCompressor, level zstd.EncoderLevel) (*zstdCompressor, error) {
	zc := &zstdCompressor{
		streamCompressor: streamCompressor{baseCompressor: base, codec: zstdCodec{level: level}},
	}

	zc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		return enc
	}

	zc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}

	return zc, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	defer zc.encoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	defer zc.decoderPool.Put(dec)

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, zc.wrap(err, "decompress")
	}
	return out, nil
}

type zstdCodec struct{ level zstd.EncoderLevel }

func (c zstdCodec) writer(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(c.level))
}

func (zstdCodec) reader(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

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

func mapDeflateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}
