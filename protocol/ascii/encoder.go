package ascii

import (
	"strconv"

	"github.com/mcrouterd/session/protocol"
)

// Encoder renders protocol.Reply values into classic memcached ASCII
// wire bytes. It is stateless and safe for concurrent use, mirroring
// protocol.Encoder's contract that session state never reaches it.
type Encoder struct{}

var _ protocol.Encoder = Encoder{}

// Encode appends reply's wire representation for op to dst. reqID is
// unused: ASCII replies are ordered on the wire, not tagged with an id.
func (Encoder) Encode(dst []byte, reqID uint64, op protocol.Op, key []byte, noreply bool, reply protocol.Reply) []byte {
	if noreply {
		return dst
	}

	switch op {
	case protocol.OpQuit:
		// Real memcached sends nothing back for quit; the connection just
		// closes.
		return dst
	case protocol.OpGet, protocol.OpGets, protocol.OpLeaseGet, protocol.OpMetaGet:
		return encodeValueLine(dst, key, reply)
	case protocol.OpIncr, protocol.OpDecr:
		return encodeArithReply(dst, reply)
	}

	if reply.Status != "" {
		return encodeStatusLine(dst, reply)
	}
	return dst
}

// encodeValueLine renders one GET-family value block: "VALUE <key>
// <flags> <len>\r\n<data>\r\n". Called once per key that produced a
// value; multiop.Aggregator.Finalize appends the group's "END\r\n" after
// the last one.
func encodeValueLine(dst []byte, key []byte, reply protocol.Reply) []byte {
	if !reply.Found {
		return dst
	}
	dst = append(dst, "VALUE "...)
	dst = append(dst, key...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(reply.Flags), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(len(reply.Value)), 10)
	dst = append(dst, crlf...)
	dst = append(dst, reply.Value...)
	dst = append(dst, crlf...)
	return dst
}

// encodeArithReply renders an incr/decr reply: either the new counter
// value on its own line, or a status line (typically NOT_FOUND /
// CLIENT_ERROR) when the op failed.
func encodeArithReply(dst []byte, reply protocol.Reply) []byte {
	if reply.Status == "" {
		dst = append(dst, reply.Value...)
		return append(dst, crlf...)
	}
	return encodeStatusLine(dst, reply)
}

// encodeStatusLine renders every other reply shape: STORED, NOT_STORED,
// EXISTS, NOT_FOUND, DELETED, OK, VERSION, bad_key, CLIENT_ERROR,
// SERVER_ERROR, ERROR. The ones that carry a reason append it after the
// status word, matching the real protocol's "CLIENT_ERROR <msg>" and
// "SERVER_ERROR <msg>" shapes.
func encodeStatusLine(dst []byte, reply protocol.Reply) []byte {
	dst = append(dst, reply.Status...)
	switch reply.Status {
	case "CLIENT_ERROR", "SERVER_ERROR", "bad_key":
		if reply.Reason != "" {
			dst = append(dst, ' ')
			dst = append(dst, reply.Reason...)
		}
	case "VERSION":
		if len(reply.Value) > 0 {
			dst = append(dst, ' ')
			dst = append(dst, reply.Value...)
		}
	}
	return append(dst, crlf...)
}
