package reqctx

import (
	"testing"

	"github.com/mcrouterd/session/multiop"
	"github.com/mcrouterd/session/protocol"
)

type recordingReplier struct {
	calls int
	got   protocol.Reply
}

func (r *recordingReplier) Reply(reqID uint64, outOfOrder bool, op protocol.Op, key []byte, noreply bool, reply protocol.Reply, parent *multiop.Aggregator, subIdx int) {
	r.calls++
	r.got = reply
}

func TestContextReplyIsConsumedExactlyOnce(t *testing.T) {
	rep := &recordingReplier{}
	ctx := New(rep, 7, protocol.OpGet, false, false, []byte("k"), nil, 0)

	ctx.Reply(protocol.Reply{Status: "STORED"})
	ctx.Reply(protocol.Reply{Status: "SHOULD_NOT_REACH_SESSION"})

	if rep.calls != 1 {
		t.Fatalf("Replier.Reply called %d times, want exactly 1", rep.calls)
	}
	if rep.got.Status != "STORED" {
		t.Fatalf("Replier saw Status %q, want %q (second Reply call must be a no-op)", rep.got.Status, "STORED")
	}
}

func TestContextKeySnapshotIsIndependentOfCallerBuffer(t *testing.T) {
	key := []byte("mutable")
	ctx := New(&recordingReplier{}, 1, protocol.OpGet, false, false, key, nil, 0)

	key[0] = 'X'
	if string(ctx.Key()) != "mutable" {
		t.Fatalf("Key() = %q, want %q (snapshot must not alias the caller's slice)", ctx.Key(), "mutable")
	}
}

func TestContextNilKeyStaysNil(t *testing.T) {
	ctx := New(&recordingReplier{}, 1, protocol.OpVersion, false, false, nil, nil, 0)
	if ctx.Key() != nil {
		t.Fatalf("Key() = %v, want nil for a request with no key snapshot", ctx.Key())
	}
}

func TestContextAccessors(t *testing.T) {
	agg := multiop.New(3, protocol.OpGet)
	ctx := New(&recordingReplier{}, 5, protocol.OpGet, true, false, []byte("k"), agg, 2)

	if ctx.ReqID() != 5 {
		t.Fatalf("ReqID() = %d, want 5", ctx.ReqID())
	}
	if ctx.Op() != protocol.OpGet {
		t.Fatalf("Op() = %v, want OpGet", ctx.Op())
	}
	if !ctx.Noreply() {
		t.Fatalf("Noreply() = false, want true")
	}
	if ctx.MultiOpParent() != agg {
		t.Fatalf("MultiOpParent() did not return the aggregator passed to New")
	}
}
