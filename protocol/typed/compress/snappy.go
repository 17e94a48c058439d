package compress

import (
	"github.com/golang/snappy"
)

// SnappyCompressor implements Compressor using the Snappy algorithm.
// Snappy is optimized for speed rather than compression ratio.
type SnappyCompressor struct{}

func (s *SnappyCompressor) CompressionType() Type { return Snappy }

func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (s *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
