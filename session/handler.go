package session

import (
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/reqctx"
)

// Handler is the application hook spec.md §3/§6 calls on_request /
// on_typed_request. A Session invokes exactly one of these per request
// it does not short-circuit itself (version/quit/shutdown/bad_key).
type Handler interface {
	// OnRequest is called for every ASCII (or untyped) request the
	// session does not handle itself. The handler must eventually call
	// ctx.Reply exactly once, even for req.Noreply requests (spec §4.4,
	// §9 "Quit noreply" — the same accounting applies to any noreply
	// buffer).
	OnRequest(ctx *reqctx.Context, req protocol.Request)

	// OnTypedRequest is called for out-of-order typed/binary requests.
	// Only reachable when the session's Parser reports OutOfOrder()
	// true (spec §4.1 "Typed request emission").
	OnTypedRequest(typeID uint32, body []byte, ctx *reqctx.Context)
}
