package ioutil

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/format"
)

type CompressWriter interface {
	// Copy reads from the reader until there is no more to read,
	// compresses it into the writer,
	// and returns the bytes read and any error.
	Copy(io.Writer, io.Reader) (int64, error)
}

type CopyWriter struct{}

func (CopyWriter) Copy(writer io.Writer, reader io.Reader) (int64, error) {
	return io.Copy(writer, reader)
}

type ZstdWriter struct {
	Level zstd.EncoderLevel
}

func (compressor ZstdWriter) Copy(writer io.Writer, reader io.Reader) (int64, error) {
	// A single encoder goroutine keeps the frame layout independent of the
	// machine the stream was packed on.
	zWriter, err := zstd.NewWriter(writer,
		zstd.WithEncoderLevel(compressor.Level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return 0, err
	}
	n, err := zWriter.ReadFrom(reader)
	if err != nil {
		zWriter.Close()
		return n, err
	}
	return n, zWriter.Close()
}

type GzipWriter struct {
	Level int
}

func (compressor GzipWriter) Copy(writer io.Writer, reader io.Reader) (int64, error) {
	gWriter, err := gzip.NewWriterLevel(writer, compressor.Level)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(gWriter, reader)
	if err != nil {
		gWriter.Close()
		return n, err
	}
	return n, gWriter.Close()
}

type BrotliWriter struct {
	Level int
}

func (compressor BrotliWriter) Copy(writer io.Writer, reader io.Reader) (int64, error) {
	bWriter := brotli.NewWriterLevel(writer, compressor.Level)
	n, err := io.Copy(bWriter, reader)
	if err != nil {
		bWriter.Close()
		return n, err
	}
	return n, bWriter.Close()
}

// NewCompressor picks the compressor for ctype, scaled by the packing effort
// (0..9).
func NewCompressor(ctype format.CompressionType, effort int) (CompressWriter, error) {
	switch ctype {
	case format.COMPRESSION_NONE:
		return CopyWriter{}, nil
	case format.COMPRESSION_ZSTD:
		level := zstd.SpeedDefault
		switch {
		case effort <= 2:
			level = zstd.SpeedFastest
		case effort >= 8:
			level = zstd.SpeedBestCompression
		case effort >= 6:
			level = zstd.SpeedBetterCompression
		}
		return ZstdWriter{Level: level}, nil
	case format.COMPRESSION_GZIP:
		return GzipWriter{Level: clamp(effort, gzip.BestSpeed, gzip.BestCompression)}, nil
	case format.COMPRESSION_BROTLI:
		return BrotliWriter{Level: clamp(effort+2, brotli.BestSpeed, brotli.BestCompression)}, nil
	default:
		return nil, errors.Errorf("unknown compression %d", ctype)
	}
}

// Compress runs data through the compressor for ctype.
func Compress(ctype format.CompressionType, effort int, data []byte) ([]byte, error) {
	c, err := NewCompressor(ctype, effort)
	if err != nil {
		return nil, err
	}
	out := new(bytes.Buffer)
	if _, err := c.Copy(out, bytes.NewReader(data)); err != nil {
		return nil, errors.Wrapf(err, "failed to compress with %s", ctype)
	}
	return out.Bytes(), nil
}

// Decompress reverses Compress. size is the expected decompressed length;
// anything else is an error.
func Decompress(ctype format.CompressionType, data []byte, size uint64) ([]byte, error) {
	var reader io.Reader
	switch ctype {
	case format.COMPRESSION_NONE:
		reader = bytes.NewReader(data)
	case format.COMPRESSION_ZSTD:
		zReader, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer zReader.Close()
		reader = zReader
	case format.COMPRESSION_GZIP:
		gReader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "bad gzip body")
		}
		defer gReader.Close()
		reader = gReader
	case format.COMPRESSION_BROTLI:
		reader = brotli.NewReader(bytes.NewReader(data))
	default:
		return nil, errors.Errorf("unknown compression %d", ctype)
	}

	out := bytes.NewBuffer(make([]byte, 0, size))
	// Read one byte past the expected size to catch oversized bodies.
	n, err := io.Copy(out, io.LimitReader(reader, int64(size)+1))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decompress %s body", ctype)
	}
	if uint64(n) != size {
		return nil, errors.Errorf("decompressed body is %d bytes, expected %d", n, size)
	}
	return out.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
