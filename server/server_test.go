package server

import (
	"net"
	"testing"
	"time"

	basecontext "github.com/gostdlib/base/context"

	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/protocol/ascii"
	"github.com/mcrouterd/session/reqctx"
	"github.com/mcrouterd/session/transport"
)

// echoHandler replies STORED to everything, immediately and synchronously.
type echoHandler struct{}

func (echoHandler) OnRequest(ctx *reqctx.Context, req protocol.Request) {
	ctx.Reply(protocol.Reply{Status: "STORED"})
}

func (echoHandler) OnTypedRequest(typeID uint32, body []byte, ctx *reqctx.Context) {
	ctx.Reply(protocol.Reply{Status: "STORED"})
}

func asciiFactory() protocol.Parser { return ascii.New() }

func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	return string(buf[:n])
}

func TestServeDrivesOneSessionToCompletion(t *testing.T) {
	s := New(asciiFactory, ascii.Encoder{}, echoHandler{})

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(t.Context(), transport.NetConnTransport(serverConn))
	}()

	if _, err := clientConn.Write([]byte("set a 0 0 1\r\nA\r\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got := readLine(t, clientConn); got != "STORED\r\n" {
		t.Fatalf("got %q, want %q", got, "STORED\r\n")
	}

	if _, err := clientConn.Write([]byte("quit\r\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve() did not return after quit")
	}
}

func TestServeRejectsConnectionsAfterMaxConnections(t *testing.T) {
	s := New(asciiFactory, ascii.Encoder{}, echoHandler{}, WithMaxConnections(1))

	clientConn1, serverConn1 := net.Pipe()
	defer clientConn1.Close()

	serveDone := make(chan struct{})
	go func() {
		s.Serve(t.Context(), transport.NetConnTransport(serverConn1))
		close(serveDone)
	}()

	// Give the first session's goroutine a chance to register before the
	// second Serve call checks the connection count.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.sessions)
		s.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, serverConn2 := net.Pipe()
	if err := s.Serve(t.Context(), transport.NetConnTransport(serverConn2)); err == nil {
		t.Fatalf("Serve() past max connections returned no error")
	}

	clientConn1.Write([]byte("quit\r\n"))
	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("first Serve() did not return")
	}
}

func TestServeRejectsConnectionsAfterShutdown(t *testing.T) {
	s := New(asciiFactory, ascii.Encoder{}, echoHandler{})

	if s.IsDraining() {
		t.Fatalf("IsDraining() = true before Shutdown()")
	}

	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if !s.IsDraining() {
		t.Fatalf("IsDraining() = false after Shutdown()")
	}

	_, serverConn := net.Pipe()
	if err := s.Serve(t.Context(), transport.NetConnTransport(serverConn)); err == nil {
		t.Fatalf("Serve() after Shutdown() returned no error")
	}
}

func TestShutdownClosesLiveSessions(t *testing.T) {
	s := New(asciiFactory, ascii.Encoder{}, echoHandler{})

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	serveDone := make(chan struct{})
	go func() {
		s.Serve(t.Context(), transport.NetConnTransport(serverConn))
		close(serveDone)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.sessions)
		s.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve() did not return after Shutdown()")
	}
}

// fakeListener hands out a fixed set of pre-built transports, then blocks
// until ctx is cancelled, exercising ListenAndServe's accept loop without a
// real socket.
type fakeListener struct {
	conns chan transport.Transport
}

func (l *fakeListener) Accept(ctx basecontext.Context) (transport.Transport, error) {
	select {
	case c, ok := <-l.conns:
		if !ok {
			return nil, net.ErrClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeListener) Close() error   { close(l.conns); return nil }
func (l *fakeListener) Addr() net.Addr { return nil }

var _ transport.Listener = (*fakeListener)(nil)

func TestListenAndServeDispatchesAcceptedConnections(t *testing.T) {
	s := New(asciiFactory, ascii.Encoder{}, echoHandler{})

	ln := &fakeListener{conns: make(chan transport.Transport, 1)}
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	ln.conns <- transport.NetConnTransport(serverConn)

	ctx, cancel := basecontext.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, ln)
	}()

	if _, err := clientConn.Write([]byte("set a 0 0 1\r\nA\r\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got := readLine(t, clientConn); got != "STORED\r\n" {
		t.Fatalf("got %q, want %q", got, "STORED\r\n")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ListenAndServe() did not return after context cancellation")
	}
}
