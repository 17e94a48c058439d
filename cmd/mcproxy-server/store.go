package main

import (
	"strconv"
	"sync"

	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/reqctx"
)

// memStore is a minimal in-memory key/value backend so this entrypoint has
// something to route requests to. Storage semantics are explicitly out of
// scope for the session itself (spec.md §1 Non-goals); this lives entirely
// outside the session/server/protocol packages as the kind of external
// "route-handle tree" spec.md §1 names as an out-of-scope collaborator.
type memStore struct {
	mu    sync.Mutex
	items map[string]item
}

type item struct {
	value []byte
	flags uint32
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]item)}
}

// storeHandler implements session.Handler by dispatching each ASCII op to
// memStore. It is the example terminal handler this entrypoint wraps with
// handler.LoggingInterceptor/RecoveryInterceptor.
type storeHandler struct {
	store *memStore
}

func (h *storeHandler) OnRequest(ctx *reqctx.Context, req protocol.Request) {
	switch req.Op {
	case protocol.OpGet, protocol.OpGets, protocol.OpLeaseGet, protocol.OpMetaGet:
		h.handleGet(ctx, req)
	case protocol.OpSet, protocol.OpAdd, protocol.OpReplace, protocol.OpAppend, protocol.OpPrepend:
		h.handleStore(ctx, req)
	case protocol.OpCas:
		h.handleStore(ctx, req)
	case protocol.OpDelete:
		h.handleDelete(ctx, req)
	case protocol.OpIncr, protocol.OpDecr:
		h.handleArith(ctx, req)
	default:
		ctx.Reply(protocol.Reply{Status: "SERVER_ERROR", Reason: "unhandled op"})
	}
}

// OnTypedRequest echoes the request body back under the same type id, just
// enough to exercise the out-of-order typed path end to end.
func (h *storeHandler) OnTypedRequest(typeID uint32, body []byte, ctx *reqctx.Context) {
	ctx.Reply(protocol.Reply{TypeID: typeID, Value: body})
}

func (h *storeHandler) handleGet(ctx *reqctx.Context, req protocol.Request) {
	h.store.mu.Lock()
	it, ok := h.store.items[string(req.Key)]
	h.store.mu.Unlock()

	if !ok {
		ctx.Reply(protocol.Reply{Found: false})
		return
	}
	ctx.Reply(protocol.Reply{Found: true, Value: it.value, Flags: it.flags})
}

func (h *storeHandler) handleStore(ctx *reqctx.Context, req protocol.Request) {
	key := string(req.Key)

	h.store.mu.Lock()
	_, exists := h.store.items[key]
	switch req.Op {
	case protocol.OpAdd:
		if exists {
			h.store.mu.Unlock()
			ctx.Reply(protocol.Reply{Status: "NOT_STORED"})
			return
		}
	case protocol.OpReplace, protocol.OpCas:
		if !exists {
			h.store.mu.Unlock()
			status := "NOT_STORED"
			if req.Op == protocol.OpCas {
				status = "NOT_FOUND"
			}
			ctx.Reply(protocol.Reply{Status: status})
			return
		}
	case protocol.OpAppend, protocol.OpPrepend:
		if !exists {
			h.store.mu.Unlock()
			ctx.Reply(protocol.Reply{Status: "NOT_STORED"})
			return
		}
	}

	switch req.Op {
	case protocol.OpAppend:
		cur := h.store.items[key]
		cur.value = append(append([]byte(nil), cur.value...), req.Body...)
		h.store.items[key] = cur
	case protocol.OpPrepend:
		cur := h.store.items[key]
		cur.value = append(append([]byte(nil), req.Body...), cur.value...)
		h.store.items[key] = cur
	default:
		h.store.items[key] = item{value: append([]byte(nil), req.Body...), flags: req.Flags}
	}
	h.store.mu.Unlock()

	ctx.Reply(protocol.Reply{Status: "STORED"})
}

func (h *storeHandler) handleDelete(ctx *reqctx.Context, req protocol.Request) {
	key := string(req.Key)

	h.store.mu.Lock()
	_, ok := h.store.items[key]
	if ok {
		delete(h.store.items, key)
	}
	h.store.mu.Unlock()

	if !ok {
		ctx.Reply(protocol.Reply{Status: "NOT_FOUND"})
		return
	}
	ctx.Reply(protocol.Reply{Status: "DELETED"})
}

func (h *storeHandler) handleArith(ctx *reqctx.Context, req protocol.Request) {
	key := string(req.Key)
	delta, err := strconv.ParseInt(string(req.Body), 10, 64)
	if err != nil {
		ctx.Reply(protocol.Reply{Status: "CLIENT_ERROR", Reason: "invalid numeric delta argument"})
		return
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	it, ok := h.store.items[key]
	if !ok {
		ctx.Reply(protocol.Reply{Status: "NOT_FOUND"})
		return
	}

	cur, err := strconv.ParseUint(string(it.value), 10, 64)
	if err != nil {
		ctx.Reply(protocol.Reply{Status: "CLIENT_ERROR", Reason: "cannot increment or decrement non-numeric value"})
		return
	}

	var next uint64
	if req.Op == protocol.OpIncr {
		next = cur + uint64(delta)
	} else {
		if uint64(delta) > cur {
			next = 0
		} else {
			next = cur - uint64(delta)
		}
	}

	it.value = []byte(strconv.FormatUint(next, 10))
	h.store.items[key] = it
	ctx.Reply(protocol.Reply{Value: it.value})
}
