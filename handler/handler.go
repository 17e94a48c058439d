// Package handler adapts the teacher's RPC interceptor chain
// (rpc/interceptor) to memcached request/reply shapes: cross-cutting
// concerns (logging, metrics, recovery) wrap a session.Handler instead of
// a unary RPC method.
package handler

import (
	"github.com/mcrouterd/session/log"
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/reqctx"
	"github.com/mcrouterd/session/session"
)

// Info carries the per-request metadata an Interceptor may want without
// inspecting the full protocol.Request.
type Info struct {
	Op      protocol.Op
	Noreply bool
}

// Next is the remaining chain (or the terminal handler) an Interceptor
// calls to continue request processing.
type Next func(ctx *reqctx.Context, req protocol.Request)

// Interceptor wraps OnRequest dispatch for cross-cutting concerns. It
// receives the request, its Info, and the next link in the chain; it
// must call next exactly once unless it replies (and so terminates the
// request) itself.
type Interceptor func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next)

// Wrap returns a session.Handler whose OnRequest runs req through the
// given interceptors (outermost first) before reaching h.OnRequest.
// OnTypedRequest passes straight through to h: interceptors here only
// see the ASCII request shape, since typed/binary requests carry no
// protocol.Request for them to inspect (spec §4.1's typed path is
// opaque to the session and, by extension, to middleware built on top
// of it).
func Wrap(h session.Handler, interceptors ...Interceptor) session.Handler {
	chained := Chain(interceptors...)
	if chained == nil {
		return h
	}
	return &wrapped{handler: h, chain: chained}
}

type wrapped struct {
	handler session.Handler
	chain   Interceptor
}

func (w *wrapped) OnRequest(ctx *reqctx.Context, req protocol.Request) {
	info := &Info{Op: req.Op, Noreply: req.Noreply}
	w.chain(ctx, req, info, w.handler.OnRequest)
}

func (w *wrapped) OnTypedRequest(typeID uint32, body []byte, ctx *reqctx.Context) {
	w.handler.OnTypedRequest(typeID, body, ctx)
}

// LoggingInterceptor logs every request's op and noreply flag at debug
// level before continuing the chain.
func LoggingInterceptor(logger *log.Logger) Interceptor {
	return func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		logger.Debug("request", map[string]any{
			"op":      int(info.Op),
			"noreply": info.Noreply,
			"reqid":   ctx.ReqID(),
		})
		next(ctx, req)
	}
}

// RecoveryInterceptor converts a panic inside the remaining chain (or the
// terminal handler) into a SERVER_ERROR reply instead of crashing the
// process, mirroring the blast-radius containment spec §7 expects from
// a single misbehaving request.
func RecoveryInterceptor(logger *log.Logger) Interceptor {
	return func(ctx *reqctx.Context, req protocol.Request, info *Info, next Next) {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("panic in request handler", nil, map[string]any{
					"op":      int(info.Op),
					"reqid":   ctx.ReqID(),
					"recover": r,
				})
				ctx.Reply(protocol.Reply{Status: "SERVER_ERROR", Reason: "internal error"})
			}
		}()
		next(ctx, req)
	}
}
