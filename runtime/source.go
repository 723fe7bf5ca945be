package runtime

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// NoSource is the compressed form of "source not retained".
const NoSource = ""

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// CompressSource compresses source text into a string constant.
func CompressSource(src string) (string, error) {
	enc, _, err := codecs()
	if err != nil {
		return NoSource, fmt.Errorf("source compressor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(enc.EncodeAll([]byte(src), nil)), nil
}

// DecompressSource reverses CompressSource. NoSource decompresses to "".
func DecompressSource(compressed string) (string, error) {
	if compressed == NoSource {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(compressed)
	if err != nil {
		return "", fmt.Errorf("decode source: %w", err)
	}
	_, dec, err := codecs()
	if err != nil {
		return "", fmt.Errorf("source compressor: %w", err)
	}
	out, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return "", fmt.Errorf("decompress source: %w", err)
	}
	return string(out), nil
}
