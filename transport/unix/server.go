// Package unix implements transport.Listener over Unix domain sockets.
package unix

import (
	"bufio"
	"errors"
	"net"
	"os"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/mcrouterd/session/transport"
)

// ErrClosed is returned by operations on a closed Listener or Conn.
var ErrClosed = errors.New("unix: closed")

// Listener implements transport.Listener for Unix domain socket
// connections.
type Listener struct {
	listener net.Listener
	config   *config
	path     string

	mu     sync.Mutex
	closed bool
}

// Listen creates a new Unix socket listener at path.
func Listen(ctx context.Context, path string, opts ...Option) (*Listener, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.unlinkExisting {
		if info, err := os.Stat(path); err == nil {
			if info.Mode()&os.ModeSocket != 0 {
				if err := os.Remove(path); err != nil {
					return nil, err
				}
			}
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	if err := os.Chmod(path, os.FileMode(cfg.socketMode)); err != nil {
		ln.Close()
		os.Remove(path)
		return nil, err
	}

	return &Listener{listener: ln, config: cfg, path: path}, nil
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

// Close closes the listener and removes the socket file.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	err := l.listener.Close()
	os.Remove(l.path)
	return err
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Path returns the socket file path.
func (l *Listener) Path() string {
	return l.path
}

var _ transport.Listener = (*Listener)(nil)

// Conn wraps an accepted Unix socket connection with buffered I/O.
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

// Write writes data to the client, flushing immediately. The session
// decides batching policy (spec §4.4); this layer just moves bytes.
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

var _ transport.Transport = (*Conn)(nil)
