// Package reqctx implements the session's RequestContext (spec component
// C5): a per-request token that carries request identity and is the
// only legal way a handler may submit a reply (spec §3, §4.1).
package reqctx

import (
	"sync/atomic"

	"github.com/mcrouterd/session/multiop"
	"github.com/mcrouterd/session/protocol"
)

// Replier is the session-side hook a Context calls into when a handler
// submits a reply. Defined here (not in package session) so reqctx does
// not import session and create a cycle; *session.Session implements it.
type Replier interface {
	Reply(reqID uint64, outOfOrder bool, op protocol.Op, key []byte, noreply bool, reply protocol.Reply, parent *multiop.Aggregator, subIdx int)
}

// Context is the per-request token spec.md §3 describes as
// (session_ref, reqid, op, noreply, optional_key_snapshot,
// optional_multiop_parent). Exactly one reply may be submitted through
// it; Reply consumes it.
type Context struct {
	session Replier

	reqID      uint64
	op         protocol.Op
	noreply    bool
	outOfOrder bool
	key        []byte // optional_key_snapshot

	parent *multiop.Aggregator // optional_multiop_parent
	subIdx int

	consumed atomic.Bool
}

// New constructs a Context. key may be nil when the op carries no key
// snapshot. parent is nil unless this request is a sub-request of an
// active multi-op.
func New(session Replier, reqID uint64, op protocol.Op, noreply, outOfOrder bool, key []byte, parent *multiop.Aggregator, subIdx int) *Context {
	var snap []byte
	if key != nil {
		snap = append([]byte(nil), key...)
	}
	return &Context{
		session:    session,
		reqID:      reqID,
		op:         op,
		noreply:    noreply,
		outOfOrder: outOfOrder,
		key:        snap,
		parent:     parent,
		subIdx:     subIdx,
	}
}

// ReqID returns the request id this context was constructed with.
func (c *Context) ReqID() uint64 { return c.reqID }

// Op returns the operation this context was constructed for.
func (c *Context) Op() protocol.Op { return c.op }

// Noreply reports whether the originating request suppressed replies.
func (c *Context) Noreply() bool { return c.noreply }

// Key returns the key snapshot attached at construction, or nil.
func (c *Context) Key() []byte { return c.key }

// MultiOpParent returns the aggregator this context's request belongs
// to, or nil if it is not part of a multi-op.
func (c *Context) MultiOpParent() *multiop.Aggregator { return c.parent }

// Reply submits the handler's reply through this context. Calling Reply
// more than once on the same Context is a programmer error and the
// second call is a silent no-op, mirroring spec.md §3's "the context is
// consumed by that submission."
func (c *Context) Reply(reply protocol.Reply) {
	if !c.consumed.CompareAndSwap(false, true) {
		return
	}
	c.session.Reply(c.reqID, c.outOfOrder, c.op, c.key, c.noreply, reply, c.parent, c.subIdx)
}
