package skein

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnknownCompression indicates a compression algorithm or wire id no
// compressor claims.
var ErrUnknownCompression = errors.New("unknown compression")

// ErrUnknownHash indicates a fingerprint algorithm with no hasher.
var ErrUnknownHash = errors.New("unknown hash algorithm")

// errIncompressible reports that compression would not shrink the stream;
// the stream is then stored uncompressed.
var errIncompressible = errors.New("incompressible")

// zstdEncoder is reused across calls; EncodeAll is safe for concurrent use.
// Decoders are built per call so their window and output are bounded by the
// caller's limit.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("skein: zstd encoder initialization failed: " + err.Error())
	}
}

// compress returns [u32 uncompressed size][compressed bytes], or
// errIncompressible when that would not be smaller than data.
func compress(algo CompressionAlgo, data []byte) ([]byte, error) {
	var body []byte
	switch algo {
	case CompressZstd:
		body = zstdEncoder.EncodeAll(data, make([]byte, 4, 4+len(data)/2))
	case CompressLZ4:
		bound := lz4.CompressBlockBound(len(data))
		body = make([]byte, 4+bound)
		written, err := lz4.CompressBlock(data, body[4:], nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 {
			return nil, errIncompressible
		}
		body = body[:4+written]
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, algo)
	}
	if len(body) >= len(data) {
		return nil, errIncompressible
	}
	binary.LittleEndian.PutUint32(body, uint32(len(data))) // #nosec G115 -- streams are capped well below 4 GiB
	return body, nil
}

// decompress reverses compress, refusing to inflate beyond limit bytes.
func decompress(algo CompressionAlgo, body []byte, limit int) ([]byte, error) {
	if len(body) < 4 {
		return nil, newFormatError(ErrTruncated, 0, "compressed size header")
	}
	size := int(binary.LittleEndian.Uint32(body))
	if size > limit {
		return nil, newFormatError(ErrOversizedPayload, 0, fmt.Sprintf("decompressed size %d exceeds %d", size, limit))
	}
	body = body[4:]
	switch algo {
	case CompressZstd:
		return zstdDecompress(body, size, limit)
	case CompressLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, algo)
}

// zstdDecompress inflates exactly size bytes. The decoder window is capped by
// limit and output stops one byte past size, so a frame lying about its
// length never allocates more than the header claimed.
func zstdDecompress(body []byte, size, limit int) ([]byte, error) {
	window := uint64(max(limit, zstd.MinWindowSize))
	dec, err := zstd.NewReader(bytes.NewReader(body),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(size)+1),
		zstd.WithDecoderMaxWindow(min(window, zstd.MaxWindowSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	defer dec.Close()

	out := make([]byte, size+1)
	n, err := io.ReadFull(dec, out)
	switch {
	case err == nil:
		return nil, newFormatError(ErrOversizedPayload, 0, fmt.Sprintf("zstd stream inflates past %d bytes", size))
	case errors.Is(err, zstd.ErrDecoderSizeExceeded), errors.Is(err, zstd.ErrWindowSizeExceeded):
		return nil, newFormatError(ErrOversizedPayload, 0, "zstd stream: "+err.Error())
	case !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("zstd decompress: %w", err)
	case n != size:
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", n, size)
	}
	return out[:size], nil
}
