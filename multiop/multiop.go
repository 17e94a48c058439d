// Package multiop implements the session's MultiOpAggregator (spec
// component C4): it groups the contiguous sub-requests of an ASCII
// multi-key GET (get/gets/lease_get/metaget) into one logical parent
// reply, finalized only once every sub-reply has arrived and the
// parser's synthetic end marker has been seen (spec §3, §4.5).
package multiop

import "github.com/mcrouterd/session/protocol"

// Aggregator is shared between the session (which may drop it on close)
// and every outstanding sub-request context, mirroring spec.md §5's
// "Shared multi-op" note. It has no lock of its own; every field access
// happens while the owning *session.Session holds its own mutex, since
// sub-replies can legitimately arrive from concurrent handler goroutines.
type Aggregator struct {
	// StartReqID is the id reserved at multi-op creation time
	// (tail_reqid++ before any sub-request). No reply content is ever
	// queued under it: the session fills it with an empty tombstone
	// buffer, so it only holds the parent's place in the ASCII id
	// sequence while sub-requests are assigned their own ids.
	StartReqID uint64

	// EndReqID is the id the aggregator's own completion is queued
	// under, assigned from a fresh tail_reqid++ when the parser's
	// multi_op_end marker is processed (spec §4.3, §9 "Multi-op end
	// reqid" — kept as the literal, if surprising, two-ids-for-one-reply
	// behavior rather than reusing StartReqID).
	EndReqID uint64

	// Op is the multi-key GET op every sub-request in this group shares
	// (get/gets/lease_get/metaget never mix within one aggregator, since
	// each is a single ASCII command line).
	Op protocol.Op

	// subCount is the number of sub-requests seen so far.
	subCount int
	// repliesIn is the number of sub-replies merged so far.
	repliesIn int
	// endSeen is true once the parser's multi_op_end marker arrived.
	endSeen bool
	// dropped is true once the session abandoned this aggregator on
	// close without normal completion (spec §4.5 "If the session closes
	// mid-multi-op").
	dropped bool

	values []keyedValue
}

type keyedValue struct {
	key   []byte
	reply protocol.Reply
	ok    bool // false for a sub-request that failed to produce a value
}

// New creates an Aggregator reserving startReqID as its content-free
// starting slot for the given multi-key GET op. The caller is
// responsible for actually reserving that id from tail_reqid before
// calling New (spec §4.1).
func New(startReqID uint64, op protocol.Op) *Aggregator {
	return &Aggregator{StartReqID: startReqID, Op: op}
}

// AddSubRequest records that one more sub-request joined this
// aggregator, returning its index within the group.
func (a *Aggregator) AddSubRequest(key []byte) int {
	idx := a.subCount
	a.subCount++
	a.values = append(a.values, keyedValue{key: append([]byte(nil), key...)})
	return idx
}

// MergeReply records a sub-request's reply at idx. ok false means the
// key missed (no value to include in the aggregated response).
func (a *Aggregator) MergeReply(idx int, reply protocol.Reply, ok bool) {
	if idx < 0 || idx >= len(a.values) {
		return
	}
	a.values[idx].reply = reply
	a.values[idx].ok = ok
	a.repliesIn++
}

// SetEndReqID records the id assigned to this aggregator's completion
// when the parser's multi_op_end marker is processed.
func (a *Aggregator) SetEndReqID(id uint64) {
	a.EndReqID = id
}

// End marks that the parser's multi_op_end marker has been observed.
// Callers should call Finalize afterward if Complete now reports true.
func (a *Aggregator) End() {
	a.endSeen = true
}

// Drop marks the aggregator as abandoned mid-flight (session closing).
func (a *Aggregator) Drop() {
	a.dropped = true
}

// Dropped reports whether Drop was called.
func (a *Aggregator) Dropped() bool {
	return a.dropped
}

// Complete reports whether every sub-reply has arrived and the end
// marker has been seen — the sole condition under which the aggregator
// may submit its one logical reply (spec §4.5).
func (a *Aggregator) Complete() bool {
	return a.endSeen && a.repliesIn >= a.subCount
}

// Finalize renders the complete wire bytes for this group's one logical
// reply: enc renders one value block per key that produced a value (in
// sub-request order, not arrival order), followed by the ASCII "END\r\n"
// terminator every GET-family command ends with. Finalize must only be
// called once Complete reports true.
//
// enc does the actual per-key encoding (it alone knows the wire syntax of
// a value line) so this package stays about grouping and completion
// tracking, not wire format.
func (a *Aggregator) Finalize(enc protocol.Encoder) []byte {
	var body []byte
	for _, v := range a.values {
		if !v.ok {
			continue
		}
		body = enc.Encode(body, a.EndReqID, a.Op, v.key, false, v.reply)
	}
	return append(body, "END\r\n"...)
}
