package session

import (
	"github.com/mcrouterd/session/multiop"
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/reqctx"
	"github.com/mcrouterd/session/writequeue"
)

// readLoop is the session's single owning goroutine (spec §4.1): it reads,
// feeds the parser, dispatches every request the parser emits, and tears
// down the session on any read or parse error.
func (s *Session) readLoop() {
	defer close(s.readDone)

	for {
		s.mu.Lock()
		for s.pauseMask != 0 && s.state == Streaming {
			s.cond.Wait()
		}
		state := s.state
		s.mu.Unlock()
		if state != Streaming {
			return
		}

		buf := s.parser.Buffer(s.cfg.MinBufferSize, s.cfg.MaxBufferSize)
		n, err := s.transport.Read(buf)
		if n > 0 && s.cfg.DebugTap != nil {
			s.cfg.DebugTap.Write(buf[:n])
		}
		if err != nil {
			s.Close(err)
			return
		}
		if n == 0 {
			continue
		}

		if s.drainParsed(n) {
			return
		}
	}
}

// drainParsed feeds n freshly read bytes to the parser and dispatches
// every Request it emits, looping on Feed's "more" signal to drain
// already-buffered requests without another transport.Read. It returns
// true if the session should stop reading (a parse failure closed it).
func (s *Session) drainParsed(n int) (stop bool) {
	for {
		reqs, more, ferr := s.parser.Feed(n, s.cfg.RequestsPerRead)
		n = 0 // only the first Feed call in this drain consumes new bytes

		for _, req := range reqs {
			s.dispatchRequest(req)
		}

		if ferr != nil {
			s.synthesizeParseFailure(ferr)
			return true
		}
		if !more {
			return false
		}
	}
}

// dispatchRequest turns one parsed Request into a RequestContext and
// either short-circuits it itself (bad_key, version, quit, shutdown,
// client_error) or hands it to the Handler (spec §4.1).
func (s *Session) dispatchRequest(req protocol.Request) {
	// Once Close has run, requests still parsed from the same read are
	// dropped: the handler receives nothing after the session starts closing.
	if s.State() != Streaming {
		return
	}
	if req.Result == protocol.ResultMultiOpEnd {
		s.multiOpEnd()
		return
	}

	isSub := req.Op.IsMultiGet()

	s.mu.Lock()
	// spec §4.1: a new multi-op's parent slot is reserved from tail_reqid
	// *before* the first sub-request's own id is assigned.
	var startID uint64
	newMultiop := isSub && s.currentMultiop == nil
	if newMultiop {
		startID = s.tailReqID
		s.tailReqID++
		s.currentMultiop = multiop.New(startID, req.Op)
	}

	var reqID uint64
	if s.outOfOrder {
		reqID = req.ReqID
	} else {
		reqID = s.tailReqID
		s.tailReqID++
	}

	var parent *multiop.Aggregator
	var subIdx int
	if isSub {
		parent = s.currentMultiop
		subIdx = parent.AddSubRequest(req.Key)
	}
	s.mu.Unlock()

	// Neither the parent's reserved start-id nor a sub-request's own id is
	// ever the target of a real reply() call — sub-replies merge straight
	// into the aggregator (spec §4.5) and only the aggregator's one
	// completion reply (queued under EndReqID) carries content. Both ids
	// are still slots in the ASCII reply-ordering sequence, so each is
	// immediately "replied" with an empty tombstone buffer the instant it
	// is consumed, letting head_reqid advance through the whole multi-op
	// span without ever waiting on an id nothing will fill (spec §9,
	// DESIGN.md "Multi-op end reqid").
	if newMultiop {
		s.orderedReply(startID, writequeue.Buffer{})
	}
	if isSub {
		s.orderedReply(reqID, writequeue.Buffer{})
	}

	s.onTransactionStarted(isSub)

	ctx := reqctx.New(s, reqID, req.Op, req.Noreply, s.outOfOrder, req.Key, parent, subIdx)

	switch req.Result {
	case protocol.ResultBadKey:
		ctx.Reply(protocol.Reply{Status: "bad_key", Reason: req.Reason})
		return
	case protocol.ResultClientError:
		ctx.Reply(protocol.Reply{Status: "CLIENT_ERROR", Reason: req.Reason})
		s.Close(nil)
		return
	}

	switch req.Op {
	case protocol.OpVersion:
		if s.cfg.DefaultVersionHandler {
			ctx.Reply(protocol.Reply{Status: "VERSION", Value: []byte(s.cfg.VersionString)})
			return
		}
	case protocol.OpQuit:
		ctx.Reply(protocol.Reply{Status: "OK"})
		s.Close(nil)
		return
	case protocol.OpShutdown:
		ctx.Reply(protocol.Reply{Status: "OK"})
		if s.cfg.OnShutdown != nil {
			s.cfg.OnShutdown()
		}
		s.Close(nil)
		return
	}

	if req.Op == protocol.OpTyped {
		s.handler.OnTypedRequest(req.TypeID, req.Body, ctx)
		return
	}
	s.handler.OnRequest(ctx, req)
}

// multiOpEnd handles the parser's synthetic multi_op_end marker: it
// assigns the aggregator's EndReqID from a fresh tail_reqid slot (spec
// §4.3, §9 "two ids for one logical reply") and, if every sub-reply has
// already arrived, finalizes and queues the aggregate reply immediately.
func (s *Session) multiOpEnd() {
	s.mu.Lock()
	agg := s.currentMultiop
	s.currentMultiop = nil
	if agg == nil {
		s.mu.Unlock()
		return
	}
	endID := s.tailReqID
	s.tailReqID++
	agg.SetEndReqID(endID)
	agg.End()
	final, finalEndID, ready := s.finalizeMultiOpLocked(agg)
	s.mu.Unlock()

	if ready {
		s.orderedReply(finalEndID, writequeue.Buffer{Data: final})
	}
}

// synthesizeParseFailure implements spec §7 ParseFailure: one error reply
// is sent (if the connection can still take one) and the session closes.
// The original's parseError builds this as an ordinary
// McServerRequestContext(*this, mc_op_unknown, tailReqid_++) and replies
// through the normal path, so it takes its place in blockedReplies like
// any other out-of-order arrival instead of jumping the queue (spec §9
// Invariant 1: reply ids reach the wire in 0,1,2,… arrival order) —
// _examples/original_source/mcrouter/lib/network/McServerSession.cpp's
// parseError/reply. In out-of-order mode there is no such sequence to
// respect, so the buffer goes straight to queueWrite.
func (s *Session) synthesizeParseFailure(err error) {
	s.cfg.Logger.Info("parse failure", map[string]any{"error": err.Error()})
	buf := s.encodeBuffer(0, protocol.OpUnknown, nil, false, protocol.Reply{Status: "ERROR", Reason: err.Error()})
	if s.outOfOrder {
		s.queueWrite(buf)
	} else {
		s.mu.Lock()
		reqID := s.tailReqID
		s.tailReqID++
		s.mu.Unlock()
		s.orderedReply(reqID, buf)
	}
	s.Close(err)
}
