package handler

import (
	"testing"

	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/reqctx"
)

func TestChainWithNoInterceptorsReturnsNil(t *testing.T) {
	if Chain() != nil {
		t.Fatalf("Chain() with no interceptors returned non-nil")
	}
}

func TestChainWithOneInterceptorReturnsItUnwrapped(t *testing.T) {
	called := false
	only := func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		called = true
		next(ctx, req)
	}

	chained := Chain(only)

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)
	var nextCalled bool
	chained(ctx, protocol.Request{Op: protocol.OpGet}, &Info{Op: protocol.OpGet}, func(*reqctx.Context, protocol.Request) {
		nextCalled = true
	})

	if !called {
		t.Fatalf("the single interceptor was never run")
	}
	if !nextCalled {
		t.Fatalf("the single interceptor's next() was never run")
	}
}

func TestChainRunsEveryLinkInOrderAndReachesFinalNext(t *testing.T) {
	var order []int
	link := func(n int) Interceptor {
		return func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
			order = append(order, n)
			next(ctx, req)
		}
	}

	chained := Chain(link(1), link(2), link(3))

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)
	finalReached := false
	chained(ctx, protocol.Request{Op: protocol.OpGet}, &Info{Op: protocol.OpGet}, func(*reqctx.Context, protocol.Request) {
		finalReached = true
	})

	if got := order; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("interceptor order = %v, want [1 2 3]", got)
	}
	if !finalReached {
		t.Fatalf("final next was never reached")
	}
}

func TestChainStopsAtTheLinkThatDoesNotCallNext(t *testing.T) {
	var order []int
	link := func(n int) Interceptor {
		return func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
			order = append(order, n)
			next(ctx, req)
		}
	}
	stop := func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		order = append(order, -1)
	}

	chained := Chain(link(1), stop, link(3))

	rep := &recordingReplier{}
	ctx := reqctx.New(rep, 1, protocol.OpGet, false, false, []byte("k"), nil, 0)
	finalReached := false
	chained(ctx, protocol.Request{Op: protocol.OpGet}, &Info{Op: protocol.OpGet}, func(*reqctx.Context, protocol.Request) {
		finalReached = true
	})

	if got := order; len(got) != 2 || got[0] != 1 || got[1] != -1 {
		t.Fatalf("interceptor order = %v, want [1 -1]", got)
	}
	if finalReached {
		t.Fatalf("final next was reached despite the middle link not calling it")
	}
}
