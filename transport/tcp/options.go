package tcp

import (
	"crypto/tls"
	"time"
)

// config holds configuration for a TCP listener.
type config struct {
	// tlsConfig, if set, wraps accepted connections in TLS.
	tlsConfig *tls.Config

	// readBufferSize is the bufio.Reader size for accepted connections.
	readBufferSize int

	// writeBufferSize is the bufio.Writer size for accepted connections.
	writeBufferSize int

	// keepAlive is the TCP keep-alive period. Zero disables keep-alives.
	keepAlive time.Duration
}

func defaultConfig() *config {
	return &config{
		readBufferSize:  64 * 1024,
		writeBufferSize: 64 * 1024,
		keepAlive:       30 * time.Second,
	}
}

// Option configures a TCP listener.
type Option func(*config)

// WithTLSConfig wraps accepted connections in TLS using cfg. If cfg is
// nil, plain TCP is used. The session, not the listener, is responsible
// for driving and verifying the handshake (spec §4.7).
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) {
		c.tlsConfig = cfg
	}
}

// WithReadBufferSize sets the read buffer size for accepted connections.
// Default is 64KiB.
func WithReadBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.readBufferSize = size
		}
	}
}

// WithWriteBufferSize sets the write buffer size for accepted connections.
// Default is 64KiB.
func WithWriteBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.writeBufferSize = size
		}
	}
}

// WithKeepAlive sets the TCP keep-alive period. Default is 30 seconds.
func WithKeepAlive(d time.Duration) Option {
	return func(c *config) {
		c.keepAlive = d
	}
}
