package container

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil

	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil

	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CompressionLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(data) {
			// Stored raw. The reader tells the two cases apart by comparing
			// stored and raw lengths.
			return data, nil
		}
		return out[:n], nil

	default:
		return nil, fmt.Errorf("container: unsupported compression %q", c)
	}
}

// lz4MaxRatio bounds the expansion of an lz4 block: one token byte and up to
// 255 bytes of length extension describe at most 255 output bytes each.
const lz4MaxRatio = 255

// maxRawLength returns the largest raw length a payload of stored bytes can
// decode to, or math.MaxInt64 when the codec has no fixed bound.
func maxRawLength(c Compression, stored int64) int64 {
	switch c {
	case CompressionNone, "":
		return stored
	case CompressionLZ4:
		if stored > math.MaxInt64/lz4MaxRatio {
			return math.MaxInt64
		}
		return stored * lz4MaxRatio
	default:
		return math.MaxInt64
	}
}

func decompress(data []byte, c Compression, rawLen int64) ([]byte, error) {
	switch c {
	case CompressionNone, "":
		return data, nil

	case CompressionZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		if err := dec.Reset(bytes.NewReader(data)); err != nil {
			return nil, err
		}
		return readLimited(dec, rawLen)

	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLimited(zr, rawLen)

	case CompressionLZ4:
		if int64(len(data)) == rawLen {
			return data, nil
		}
		if rawLen > maxRawLength(c, int64(len(data))) {
			return nil, fmt.Errorf("%w: lz4 raw length %d exceeds bound for %d bytes", ErrCorrupt, rawLen, len(data))
		}
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil

	default:
		return nil, fmt.Errorf("%w: unsupported compression %q", ErrCorrupt, c)
	}
}

// readLimited decodes at most rawLen+1 bytes from r. The buffer grows with
// the decoded output, never from rawLen alone, and one extra byte is read so
// an oversized stream shows up as a length mismatch.
func readLimited(r io.Reader, rawLen int64) ([]byte, error) {
	limit := rawLen
	if limit < math.MaxInt64 {
		limit++
	}
	var out bytes.Buffer
	if _, err := io.Copy(&out, io.LimitReader(r, limit)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
