// Package tcp implements transport.Listener over plain or TLS-wrapped TCP.
package tcp

import (
	"bufio"
	"crypto/tls"
	"errors"
	"net"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/mcrouterd/session/transport"
)

// ErrClosed is returned by operations on a closed Listener or Conn.
var ErrClosed = errors.New("tcp: closed")

// Listener implements transport.Listener for TCP connections, optionally
// wrapped in TLS. It is deliberately dumb: it only accepts connections and
// hands them to a caller-supplied session, mirroring the teacher's split
// between a listener and the thing that actually drives a connection.
type Listener struct {
	listener net.Listener
	config   *config

	mu     sync.Mutex
	closed bool
}

// Listen creates a new TCP listener on addr ("host:port" or ":port").
func Listen(ctx context.Context, addr string, opts ...Option) (*Listener, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	lc := net.ListenConfig{KeepAlive: cfg.keepAlive}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if cfg.tlsConfig != nil {
		ln = tls.NewListener(ln, cfg.tlsConfig)
	}

	return &Listener{listener: ln, config: cfg}, nil
}

// Accept waits for and returns the next connection as a transport.Transport.
func (l *Listener) Accept(ctx context.Context) (transport.Transport, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	ln := l.listener
	l.mu.Unlock()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan acceptResult, 1)

	go func() {
		conn, err := ln.Accept()
		resultCh <- acceptResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return newConn(result.conn, l.config), nil
	}
}

// Close closes the listener.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

var _ transport.Listener = (*Listener)(nil)

// Conn wraps an accepted TCP connection with buffered I/O and, when the
// underlying net.Conn is a *tls.Conn, the TLS handshake hooks a session
// needs.
type Conn struct {
	conn   net.Conn
	config *config

	readMu sync.Mutex
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer

	connMu sync.Mutex
	closed bool
}

func newConn(conn net.Conn, cfg *config) *Conn {
	return &Conn{
		conn:   conn,
		config: cfg,
		reader: bufio.NewReaderSize(conn, cfg.readBufferSize),
		writer: bufio.NewWriterSize(conn, cfg.writeBufferSize),
	}
}

// Read reads data from the client.
func (c *Conn) Read(p []byte) (int, error) {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return 0, ErrClosed
	}
	c.connMu.Unlock()

	c.readMu.Lock()
	reader := c.reader
	c.readMu.Unlock()

	if reader == nil {
		return 0, ErrClosed
	}
	return reader.Read(p)
}

// Write writes data to the client, flushing immediately so replies are not
// held back by bufio's internal buffering. The session decides batching
// policy (spec §4.4); this layer just moves bytes.
func (c *Conn) Write(p []byte) (int, error) {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return 0, ErrClosed
	}
	c.connMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writer == nil {
		return 0, ErrClosed
	}

	n, err := c.writer.Write(p)
	if err != nil {
		return n, err
	}
	if err := c.writer.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

// Close closes the transport.
func (c *Conn) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.writeMu.Lock()
	if c.writer != nil {
		c.writer.Flush()
		c.writer = nil
	}
	c.writeMu.Unlock()

	c.readMu.Lock()
	c.reader = nil
	c.readMu.Unlock()

	return c.conn.Close()
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// HandshakeContext drives the TLS handshake if this connection is TLS, or
// is a no-op for plain TCP. Implements transport.TLSHandshaker.
func (c *Conn) HandshakeContext(ctx context.Context) error {
	tlsConn, ok := c.conn.(*tls.Conn)
	if !ok {
		return nil
	}
	return tlsConn.HandshakeContext(ctx)
}

// ConnectionState returns the TLS connection state, or the zero value if
// this connection is not TLS. Implements transport.TLSHandshaker.
func (c *Conn) ConnectionState() tls.ConnectionState {
	tlsConn, ok := c.conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}
	}
	return tlsConn.ConnectionState()
}

var (
	_ transport.Transport     = (*Conn)(nil)
	_ transport.TLSHandshaker = (*Conn)(nil)
)
