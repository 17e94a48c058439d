package session

import (
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/writequeue"
)

// queueWrite stages buf in the WriteBufferQueue and immediately drains it:
// one buffer at a time in single-write mode, or everything currently
// staged as one writev-style call in batched mode (spec §4.4). Draining
// from the staging call itself, rather than only at the end of a read
// loop's Feed drain, is what lets a handler that replies from its own
// goroutine — after the read loop has already moved on — still reach the
// wire. Each call flushes at once, so replies share one TakeBatch only
// when they are staged while another flush holds writeMu.
func (s *Session) queueWrite(buf writequeue.Buffer) {
	s.mu.Lock()
	s.wq.Stage(buf)
	single := s.cfg.SingleWrite
	s.mu.Unlock()

	if single {
		s.flushSingle()
		return
	}
	s.flushBatch()
}

// encodeBuffer renders reply to wire bytes via the session's Encoder, or
// produces a Noreply placeholder that still occupies a WriteBufferQueue
// slot for accounting without ever reaching the transport (spec §4.4, §9
// "Quit noreply").
func (s *Session) encodeBuffer(reqID uint64, op protocol.Op, key []byte, noreply bool, reply protocol.Reply) writequeue.Buffer {
	if noreply {
		return writequeue.Buffer{Noreply: true}
	}
	return writequeue.Buffer{Data: s.encoder.Encode(nil, reqID, op, key, noreply, reply)}
}

// writeRaw issues one blocking write to the transport. The teacher's
// writeSuccess/writeErr callback split collapses here: transport.Write
// returning is itself the completion signal (DESIGN.md "write model").
func (s *Session) writeRaw(data []byte) {
	if len(data) == 0 {
		return
	}
	if _, err := s.transport.Write(data); err != nil {
		s.Close(err)
	}
}

// flushSingle drains the WriteBufferQueue one buffer at a time, each with
// its own writev-equivalent call (spec §4.4 single-write mode). writeMu
// serializes concurrent flush attempts so two replies never interleave
// their bytes on the wire.
func (s *Session) flushSingle() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for {
		s.mu.Lock()
		buf, ok := s.wq.TakeSingle()
		s.mu.Unlock()
		if !ok {
			return
		}
		if !buf.Noreply {
			s.writeRaw(buf.Data)
		}
		s.retireAndSettle(func() []writequeue.Buffer {
			if b, ok := s.wq.RetireSingle(); ok {
				return []writequeue.Buffer{b}
			}
			return nil
		})
	}
}

// flushBatch drains every currently staged buffer as one writev-style call
// (spec §4.4 batched mode). Called from queueWrite each time a buffer is
// staged.
func (s *Session) flushBatch() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	batch := s.wq.TakeBatch()
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	var out []byte
	for _, b := range batch {
		if !b.Noreply {
			out = append(out, b.Data...)
		}
	}
	s.writeRaw(out)
	s.cfg.Metrics.ObserveWriteBatch()

	s.retireAndSettle(func() []writequeue.Buffer {
		return s.wq.RetireBatch()
	})
}

// retireAndSettle runs retire (a RetireSingle/RetireBatch call) under the
// state lock, then fires OnWriteQuiescence and checkClosed as appropriate.
// It exists so flushSingle/flushBatch share the identical settle logic.
func (s *Session) retireAndSettle(retire func() []writequeue.Buffer) {
	s.mu.Lock()
	retire()
	empty := s.wq.Empty()
	st := s.state
	onQuiescence := s.cfg.OnWriteQuiescence
	s.mu.Unlock()

	if empty && st == Streaming && onQuiescence != nil {
		onQuiescence(s)
	}
	s.checkClosed()
}
