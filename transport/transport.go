// Package transport provides the byte-level I/O abstraction a session is
// built on (spec component C1, "TransportAdapter"): a non-blocking-style
// read/write channel plus TLS handshake hooks, so session never imports
// net or crypto/tls directly.
package transport

import (
	"crypto/tls"
	"io"
	"net"

	"github.com/gostdlib/base/context"
)

// Transport is the byte-level I/O channel a session owns for the lifetime
// of one accepted connection.
type Transport interface {
	io.ReadWriteCloser

	// LocalAddr returns the local network address, if known.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address, if known.
	RemoteAddr() net.Addr
}

// TLSHandshaker is implemented by transports that sit on top of a TLS
// connection. The session is the handshake verifier and completion
// observer (spec §4.7): it calls HandshakeContext once right after
// construction, and on success reads ConnectionState to extract the peer's
// certificate and validate the peer's name against the connection's
// remote address.
//
// Go's crypto/tls has no per-connection pluggable verify-callback the way
// the original's OpenSSL X509_STORE_CTX callback does; running the
// handshake explicitly and inspecting ConnectionState afterwards is the
// idiomatic Go restatement of the same contract.
type TLSHandshaker interface {
	// HandshakeContext runs (or waits for) the TLS handshake.
	HandshakeContext(ctx context.Context) error

	// ConnectionState returns the negotiated TLS state. Only meaningful
	// after HandshakeContext has returned nil.
	ConnectionState() tls.ConnectionState
}

// Listener accepts incoming transport connections.
type Listener interface {
	// Accept waits for and returns the next incoming connection.
	Accept(ctx context.Context) (Transport, error)

	// Close stops the listener from accepting new connections.
	// Already accepted connections are not affected.
	Close() error

	// Addr returns the listener's network address.
	Addr() net.Addr
}

// netConnTransport wraps a net.Conn to implement Transport.
type netConnTransport struct {
	net.Conn
}

// NetConnTransport wraps a net.Conn to implement Transport. Useful for
// tests that hand a net.Pipe() end directly to a session.
func NetConnTransport(conn net.Conn) Transport {
	return &netConnTransport{Conn: conn}
}

func (t *netConnTransport) LocalAddr() net.Addr  { return t.Conn.LocalAddr() }
func (t *netConnTransport) RemoteAddr() net.Addr { return t.Conn.RemoteAddr() }
