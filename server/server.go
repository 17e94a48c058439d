// Package server implements the top-level listener (spec component C7):
// it accepts connections, constructs one session.Session per connection,
// tracks them, and fans out graceful shutdown across every live session.
//
// Grounded directly on rpc/server/server.go's Server: connection
// tracking in a mutex-guarded set, Serve as the per-connection entry
// point, and Shutdown's goroutine-per-connection GracefulClose fan-out
// racing a context deadline.
package server

import (
	stdsync "sync"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/mcrouterd/session/errors"
	"github.com/mcrouterd/session/log"
	"github.com/mcrouterd/session/metrics"
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/session"
	"github.com/mcrouterd/session/transport"
)

// Common errors.
var (
	ErrClosed             = errors.New("server: closed")
	ErrTooManyConnections = errors.New("server: too many connections")
)

// ParserFactory constructs a fresh Parser for one accepted connection.
// Parsers are stateful per connection (buffered input, multi-op state),
// unlike the shared, stateless Encoder and Handler.
type ParserFactory func() protocol.Parser

// Option configures a Server.
type Option func(*Server)

// WithMaxConnections caps concurrent sessions; new connections are
// rejected with ErrTooManyConnections once at the limit. Zero (the
// default) means no limit.
func WithMaxConnections(max int) Option {
	return func(s *Server) { s.maxConnections = max }
}

// WithSessionOptions appends options applied to every session.Session
// this server constructs.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// WithLogger attaches l for server-level lifecycle logging and passes it
// through to every constructed session.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
		s.sessionOpts = append(s.sessionOpts, session.WithLogger(l))
	}
}

// WithMetrics attaches m for server- and session-level counters/gauges.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = m
		s.sessionOpts = append(s.sessionOpts, session.WithMetrics(m))
	}
}

// Server accepts connections and drives one session.Session per
// connection to completion.
type Server struct {
	parserFactory ParserFactory
	encoder       protocol.Encoder
	handler       session.Handler

	mu       sync.Mutex
	closed   bool
	sessions map[*session.Session]struct{}

	maxConnections int
	sessionOpts    []session.Option

	logger  *log.Logger
	metrics *metrics.Collector
}

// New constructs a Server. parserFactory, encoder, and handler are
// required; a nil argument is a programmer error.
func New(parserFactory ParserFactory, encoder protocol.Encoder, handler session.Handler, opts ...Option) *Server {
	s := &Server{
		parserFactory: parserFactory,
		encoder:       encoder,
		handler:       handler,
		sessions:      make(map[*session.Session]struct{}),
		logger:        log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve constructs a session for tport and blocks until that session's
// read loop exits. It mirrors rpc/server/server.go's Serve: one call per
// accepted connection, safe to run in its own goroutine.
func (s *Server) Serve(ctx context.Context, tport transport.Transport) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		tport.Close()
		return errors.E(errors.Unavailable, ErrClosed)
	}
	if s.maxConnections > 0 && len(s.sessions) >= s.maxConnections {
		s.mu.Unlock()
		tport.Close()
		return errors.E(errors.ResourceExhausted, ErrTooManyConnections)
	}
	s.mu.Unlock()

	sess, err := session.New(ctx, tport, s.parserFactory(), s.encoder, s.handler, s.sessionOpts...)
	if err != nil {
		tport.Close()
		return err
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	<-sess.Closed()

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()

	return nil
}

// ListenAndServe accepts connections from ln until ctx is done or Accept
// returns any error, spawning one Serve call per connection
// via the context's worker pool (gostdlib/base/context.Pool), matching
// the teacher's own context.Pool(ctx).Submit dispatch.
func (s *Server) ListenAndServe(ctx context.Context, ln transport.Listener) error {
	for {
		tport, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		context.Pool(ctx).Submit(ctx, func() {
			if err := s.Serve(ctx, tport); err != nil {
				s.logger.Warn("session serve failed", err, nil)
			}
		})
	}
}

// Shutdown stops accepting new connections and closes every live session,
// waiting for each to finish draining (spec §4.6) or for ctx to expire,
// whichever comes first. If ctx expires first, Shutdown returns ctx.Err();
// sessions still draining are not force closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if len(sessions) == 0 {
		return nil
	}

	for _, sess := range sessions {
		sess.Close(nil)
	}

	done := make(chan struct{})
	go func() {
		var wg stdsync.WaitGroup
		for _, sess := range sessions {
			wg.Add(1)
			sess := sess
			go func() {
				defer wg.Done()
				<-sess.Closed()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDraining reports whether Shutdown has been called.
func (s *Server) IsDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
