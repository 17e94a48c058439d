package handler

import (
	"bytes"
	"testing"

	"github.com/mcrouterd/session/log"
	"github.com/mcrouterd/session/multiop"
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/reqctx"
)

type recordingReplier struct {
	calls int
	got   protocol.Reply
}

func (r *recordingReplier) Reply(reqID uint64, outOfOrder bool, op protocol.Op, key []byte, noreply bool, reply protocol.Reply, parent *multiop.Aggregator, subIdx int) {
	r.calls++
	r.got = reply
}

// terminal is a session.Handler that records whether it was reached and
// replies STORED so tests can tell an interceptor's next() call apart from
// a short-circuited chain.
type terminal struct {
	onRequestCalled bool
	onTypedCalled   bool
}

func (t *terminal) OnRequest(ctx *reqctx.Context, req protocol.Request) {
	t.onRequestCalled = true
	ctx.Reply(protocol.Reply{Status: "STORED"})
}

func (t *terminal) OnTypedRequest(typeID uint32, body []byte, ctx *reqctx.Context) {
	t.onTypedCalled = true
	ctx.Reply(protocol.Reply{Status: "STORED"})
}

func TestWrapWithNoInterceptorsReturnsHandlerUnchanged(t *testing.T) {
	term := &terminal{}
	wrapped := Wrap(term)

	if wrapped != term {
		t.Fatalf("Wrap() with no interceptors returned a different handler, want the original passed through")
	}
}

func TestWrapRunsInterceptorsOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) Interceptor {
		return func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
			order = append(order, name)
			next(ctx, req)
		}
	}

	term := &terminal{}
	wrapped := Wrap(term, mark("outer"), mark("inner"))

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)
	wrapped.OnRequest(ctx, protocol.Request{Op: protocol.OpGet, Key: []byte("k")})

	if !term.onRequestCalled {
		t.Fatalf("terminal handler was never reached")
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("interceptor order = %v, want [outer inner]", order)
	}
	if rep.got.Status != "STORED" {
		t.Fatalf("got reply status %q, want %q", rep.got.Status, "STORED")
	}
}

func TestWrapOnTypedRequestBypassesInterceptors(t *testing.T) {
	called := false
	interceptor := func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		called = true
		next(ctx, req)
	}

	term := &terminal{}
	wrapped := Wrap(term, interceptor)

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpTyped, false, true, nil, nil, 0)
	wrapped.OnTypedRequest(9, []byte("body"), ctx)

	if !term.onTypedCalled {
		t.Fatalf("terminal handler's OnTypedRequest was never reached")
	}
	if called {
		t.Fatalf("an ASCII-path interceptor ran for a typed request")
	}
}

func TestInterceptorCanShortCircuitWithoutCallingNext(t *testing.T) {
	shortCircuit := func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		ctx.Reply(protocol.Reply{Status: "CLIENT_ERROR", Reason: "blocked"})
	}

	term := &terminal{}
	wrapped := Wrap(term, shortCircuit)

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)
	wrapped.OnRequest(ctx, protocol.Request{Op: protocol.OpGet, Key: []byte("k")})

	if term.onRequestCalled {
		t.Fatalf("terminal handler was reached despite the interceptor not calling next")
	}
	if rep.got.Status != "CLIENT_ERROR" {
		t.Fatalf("got reply status %q, want %q", rep.got.Status, "CLIENT_ERROR")
	}
}

func TestLoggingInterceptorAlwaysCallsNext(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)

	term := &terminal{}
	wrapped := Wrap(term, LoggingInterceptor(logger))

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)
	wrapped.OnRequest(ctx, protocol.Request{Op: protocol.OpGet, Key: []byte("k")})

	if !term.onRequestCalled {
		t.Fatalf("terminal handler was never reached")
	}
	if buf.Len() == 0 {
		t.Fatalf("LoggingInterceptor wrote nothing to the logger")
	}
}

func TestRecoveryInterceptorConvertsPanicToServerError(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)

	panicking := func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		panic("boom")
	}

	wrapped := Wrap(&terminal{}, RecoveryInterceptor(logger), panicking)

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)

	wrapped.OnRequest(ctx, protocol.Request{Op: protocol.OpGet, Key: []byte("k")})

	if rep.calls != 1 {
		t.Fatalf("Replier.Reply called %d times, want exactly 1", rep.calls)
	}
	if rep.got.Status != "SERVER_ERROR" {
		t.Fatalf("got reply status %q, want %q", rep.got.Status, "SERVER_ERROR")
	}
}

func TestRecoveryInterceptorDoesNotInterfereWhenNoPanicOccurs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)

	term := &terminal{}
	wrapped := Wrap(term, RecoveryInterceptor(logger))

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)
	wrapped.OnRequest(ctx, protocol.Request{Op: protocol.OpGet, Key: []byte("k")})

	if !term.onRequestCalled {
		t.Fatalf("terminal handler was never reached")
	}
	if rep.got.Status != "STORED" {
		t.Fatalf("got reply status %q, want %q", rep.got.Status, "STORED")
	}
}
