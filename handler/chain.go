package handler

import (
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/reqctx"
)

// Chain composes interceptors into one, executed outermost-first, the
// same recursive-closure shape as the teacher's ChainUnaryServer.
func Chain(interceptors ...Interceptor) Interceptor {
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	}

	return func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		chainNext(interceptors, 0, info, next)(ctx, req)
	}
}

func chainNext(interceptors []Interceptor, idx int, info *Info, finalNext Next) Next {
	if idx == len(interceptors) {
		return finalNext
	}
	return func(ctx *reqctx.Context, req protocol.Request) {
		interceptors[idx](ctx, req, info, chainNext(interceptors, idx+1, info, finalNext))
	}
}
