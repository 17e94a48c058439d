package session

import (
	"github.com/mcrouterd/session/multiop"
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/writequeue"
)

// Reply implements reqctx.Replier: it is the one path by which a handler's
// ctx.Reply call reaches the session (spec §3, §4.1).
func (s *Session) Reply(reqID uint64, outOfOrder bool, op protocol.Op, key []byte, noreply bool, reply protocol.Reply, parent *multiop.Aggregator, subIdx int) {
	if parent != nil {
		s.replyMultiOpSub(reqID, parent, subIdx, reply)
		return
	}
	s.replyPlain(reqID, outOfOrder, op, key, noreply, reply)
}

// replyPlain handles a reply with no multi-op parent: a normal request, or
// the version/quit/shutdown/bad_key/client_error short-circuits.
func (s *Session) replyPlain(reqID uint64, outOfOrder bool, op protocol.Op, key []byte, noreply bool, reply protocol.Reply) {
	s.onTransactionCompleted(false)

	buf := s.encodeBuffer(reqID, op, key, noreply, reply)
	if outOfOrder {
		s.queueWrite(buf)
		return
	}
	s.orderedReply(reqID, buf)
}

// replyMultiOpSub merges one GET-family sub-request's reply into its
// MultiOpAggregator. The sub-request's own reply never reaches the wire;
// only the aggregator's one logical reply, emitted once Complete (spec
// §4.5).
func (s *Session) replyMultiOpSub(reqID uint64, parent *multiop.Aggregator, subIdx int, reply protocol.Reply) {
	s.mu.Lock()
	parent.MergeReply(subIdx, reply, reply.Found)
	final, endID, ready := s.finalizeMultiOpLocked(parent)
	s.mu.Unlock()

	s.onTransactionCompleted(true)

	if ready {
		s.orderedReply(endID, writequeue.Buffer{Data: final})
	}
}

// finalizeMultiOpLocked reports whether agg is ready to emit its one
// aggregate reply and renders it (already full wire bytes, see
// multiop.Aggregator.Finalize) if so. Callers must hold s.mu; agg's
// fields are protected by that same lock, not a lock of their own (see
// DESIGN.md's note on the mutex-based concurrency model).
func (s *Session) finalizeMultiOpLocked(agg *multiop.Aggregator) ([]byte, uint64, bool) {
	if !agg.Complete() || agg.Dropped() {
		return nil, 0, false
	}
	return agg.Finalize(s.encoder), agg.EndReqID, true
}

// orderedReply implements spec §4.3's head_reqid/tail_reqid/blocked_replies
// drain: a reply for an out-of-sequence reqID is parked until every reply
// ahead of it in the ASCII request order has queued its own write.
func (s *Session) orderedReply(reqID uint64, buf writequeue.Buffer) {
	s.mu.Lock()
	if reqID != s.headReqID {
		s.blockedReplies[reqID] = buf
		s.mu.Unlock()
		return
	}

	ready := []writequeue.Buffer{buf}
	s.headReqID++
	for {
		next, ok := s.blockedReplies[s.headReqID]
		if !ok {
			break
		}
		delete(s.blockedReplies, s.headReqID)
		ready = append(ready, next)
		s.headReqID++
	}
	s.mu.Unlock()

	for _, b := range ready {
		s.queueWrite(b)
	}
}
