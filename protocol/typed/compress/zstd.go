package compress

import (
	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements Compressor using the Zstandard algorithm.
// Zstd provides excellent compression ratios with good speed.
type ZstdCompressor struct {
	// Level is the compression level. Use zstd.SpeedFastest, zstd.SpeedDefault,
	// zstd.SpeedBetterCompression, or zstd.SpeedBestCompression.
	// If 0, defaults to zstd.SpeedDefault.
	Level zstd.EncoderLevel
}

func (z *ZstdCompressor) CompressionType() Type { return Zstd }

func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	level := z.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (z *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
