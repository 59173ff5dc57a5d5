package proto

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/voxelcraft/vcnet"
)

// A Compression selects the body compression algorithm.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
	CompressionGzip
	CompressionZlib
	CompressionSnappy
)

// ParseCompression maps a configuration string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "gzip":
		return CompressionGzip, nil
	case "zlib":
		return CompressionZlib, nil
	case "snappy":
		return CompressionSnappy, nil
	case "none":
		return CompressionNone, nil
	}

	return 0, fmt.Errorf("unknown compression algorithm %q", s)
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdInit() {
	// EncodeAll/DecodeAll on shared instances are safe for
	// concurrent use.
	zstdEnc, _ = zstd.NewWriter(nil)
	zstdDec, _ = zstd.NewReader(nil)
}

// Compress compresses src with algo. The output starts with a 4-byte
// original-size prefix so Decompress can size its buffer up front.
func Compress(algo Compression, level int, src []byte) ([]byte, error) {
	var w vcnet.Writer
	w.U32(uint32(len(src)))

	switch algo {
	case CompressionLZ4:
		var c lz4.Compressor
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if n == 0 {
			// Incompressible; caller bypasses on size check.
			w.Raw(src)
			return w.Bytes(), nil
		}
		w.Raw(dst[:n])
	case CompressionZstd:
		zstdOnce.Do(zstdInit)
		w.Raw(zstdEnc.EncodeAll(src, nil))
	case CompressionGzip:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, clampLevel(level, gzip.BestCompression))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if _, err := zw.Write(src); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		w.Raw(buf.Bytes())
	case CompressionZlib:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, clampLevel(level, zlib.BestCompression))
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		if _, err := zw.Write(src); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		w.Raw(buf.Bytes())
	case CompressionSnappy:
		w.Raw(snappy.Encode(nil, src))
	default:
		return nil, fmt.Errorf("unknown compression algorithm %d", algo)
	}

	return w.Bytes(), nil
}

// MaxDecompressedSize bounds the size prefix of a compressed body.
// The prefix arrives from the peer and sizes allocations.
const MaxDecompressedSize = 16 << 20

// Decompress reverses Compress.
func Decompress(algo Compression, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, &vcnet.ProtocolError{Reason: "truncated compressed body"}
	}

	size := be.Uint32(data[0:4])
	if size > MaxDecompressedSize {
		return nil, &vcnet.ProtocolError{
			Reason: fmt.Sprintf("decompressed size %d exceeds limit", size),
		}
	}
	body := data[4:]

	switch algo {
	case CompressionLZ4:
		if uint32(len(body)) == size {
			// Incompressible passthrough.
			return append([]byte(nil), body...), nil
		}
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, &vcnet.ProtocolError{Reason: "lz4 decompress", Err: err}
		}
		return dst[:n], nil
	case CompressionZstd:
		zstdOnce.Do(zstdInit)
		dst, err := zstdDec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, &vcnet.ProtocolError{Reason: "zstd decompress", Err: err}
		}
		return dst, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, &vcnet.ProtocolError{Reason: "gzip decompress", Err: err}
		}
		defer zr.Close()
		return readAll(zr, size)
	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, &vcnet.ProtocolError{Reason: "zlib decompress", Err: err}
		}
		defer zr.Close()
		return readAll(zr, size)
	case CompressionSnappy:
		dst, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, &vcnet.ProtocolError{Reason: "snappy decompress", Err: err}
		}
		return dst, nil
	}

	return nil, &vcnet.ProtocolError{
		Reason: fmt.Sprintf("unknown compression algorithm %d", algo),
	}
}

func clampLevel(level, max int) int {
	if level < 1 {
		return 1
	}
	if level > max {
		return max
	}

	return level
}

func readAll(r io.Reader, sizeHint uint32) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, &vcnet.ProtocolError{Reason: "decompress", Err: err}
	}

	return buf.Bytes(), nil
}
