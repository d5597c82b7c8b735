package memory

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// minCompressSize is the smallest content worth compressing.
const minCompressSize = 512

// The encoder and decoder are safe for concurrent EncodeAll/DecodeAll
// calls and expensive to build, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("memory: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("memory: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the zstd encoding of data when it is smaller than data.
func compress(data []byte) ([]byte, bool) {
	if len(data) < minCompressSize {
		return data, false
	}
	out := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	if len(out) >= len(data) {
		return data, false
	}
	return out, true
}

func decompress(data []byte, size int64) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if int64(len(out)) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
	}
	return out, nil
}
