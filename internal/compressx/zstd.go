// Package compressx compresses message payloads before encryption.
package compressx

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// MinSize is the smallest payload worth compressing.
const MinSize = 256

// MaxDecodedSize caps decompression output.
const MaxDecodedSize = 16 << 20

var ErrTooLarge = errors.New("compressx: decoded payload too large")

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compressx: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedSize))
	if err != nil {
		panic("compressx: zstd decoder initialization failed: " + err.Error())
	}
}

func Compress(data []byte) []byte {
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func Decompress(data []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// MaybeCompress returns the compressed form of data and true when data is at
// least MinSize and compression actually shrinks it.
func MaybeCompress(data []byte) ([]byte, bool) {
	if len(data) < MinSize {
		return data, false
	}
	c := Compress(data)
	if len(c) >= len(data) {
		return data, false
	}
	return c, true
}
