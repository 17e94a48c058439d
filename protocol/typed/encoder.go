package typed

import (
	"encoding/binary"

	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/protocol/typed/compress"
)

// Encoder renders protocol.Reply values as typed frames, mirroring
// Parser's own header layout. It is stateless and safe for concurrent
// use: an out-of-order session may call it from many handler goroutines
// at once.
type Encoder struct {
	// Compression selects the body compression every encoded frame uses.
	// compress.None disables it.
	Compression compress.Type
}

var _ protocol.Encoder = Encoder{}

// Encode appends reply's frame to dst, stamping reqID into the header so
// the client can correlate an out-of-order reply back to its request.
// op and noreply are accepted to satisfy protocol.Encoder but unused:
// every typed reply carries exactly the same shape, a compressed body
// under the originating reqID, with no separate status vocabulary.
func (e Encoder) Encode(dst []byte, reqID uint64, op protocol.Op, key []byte, noreply bool, reply protocol.Reply) []byte {
	if noreply {
		return dst
	}

	body, err := compress.Compress(e.Compression, reply.Value)
	compType := e.Compression
	if err != nil {
		// Fall back to an uncompressed frame rather than drop the reply;
		// the caller has no path to surface a compressor error here.
		body = reply.Value
		compType = compress.None
	}

	hdr := make([]byte, headerLen)
	binary.BigEndian.PutUint32(hdr[0:4], reply.TypeID)
	binary.BigEndian.PutUint64(hdr[4:12], reqID)
	hdr[12] = byte(compType)
	binary.BigEndian.PutUint32(hdr[13:17], uint32(len(body)))

	dst = append(dst, hdr...)
	return append(dst, body...)
}
