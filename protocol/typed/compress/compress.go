// Package compress provides optional body compression for the typed
// parser's length-prefixed frames. It includes built-in compressors for
// gzip, snappy, and zstd, and supports custom compressor registration.
package compress

import (
	"fmt"
	stdsync "sync"
)

// Type identifies a frame body's compression algorithm on the wire
// (the one-byte compression field in a typed frame header).
type Type byte

const (
	None Type = iota
	Gzip
	Snappy
	Zstd
)

// Compressor defines the interface for compression algorithms.
type Compressor interface {
	// Compress compresses data. Returns compressed data or error.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data. Returns original data or error.
	Decompress(data []byte) ([]byte, error)

	// CompressionType returns the compression type for the wire protocol.
	CompressionType() Type
}

var (
	registry   = map[Type]Compressor{}
	registryMu stdsync.RWMutex
)

// Register adds a compressor to the registry. This can be used to register
// custom compressors or override built-in compressors. Thread-safe.
func Register(c Compressor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.CompressionType()] = c
}

// Get returns the compressor for the given type, or nil if not found.
func Get(t Type) Compressor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[t]
}

// Compress compresses data using the specified algorithm.
// Returns original data unchanged if t is None.
// Returns an error if the compressor is not registered.
func Compress(t Type, data []byte) ([]byte, error) {
	if t == None || len(data) == 0 {
		return data, nil
	}
	c := Get(t)
	if c == nil {
		return nil, fmt.Errorf("compress: no compressor registered for type %d", t)
	}
	return c.Compress(data)
}

// Decompress decompresses data using the specified algorithm.
// Returns original data unchanged if t is None.
// Returns an error if the compressor is not registered.
func Decompress(t Type, data []byte) ([]byte, error) {
	if t == None || len(data) == 0 {
		return data, nil
	}
	c := Get(t)
	if c == nil {
		return nil, fmt.Errorf("compress: no compressor registered for type %d", t)
	}
	return c.Decompress(data)
}

func init() {
	Register(&GzipCompressor{})
	Register(&SnappyCompressor{})
	Register(&ZstdCompressor{})
}
