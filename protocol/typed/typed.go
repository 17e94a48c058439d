// Package typed implements the reference out-of-order, length-prefixed
// binary parser (spec component C10): a minimal framing usable in tests
// and as a template for a real binary protocol, exercising
// protocol.Parser's OutOfOrder()==true path and the session's dispatch of
// OpTyped requests to Handler.OnTypedRequest.
//
// Frame layout (all integers big-endian):
//
//	4 bytes  type id
//	8 bytes  request id (caller-assigned; out-of-order parsers own their
//	         own id space, spec §4.1)
//	1 byte   body compression (compress.Type)
//	4 bytes  body length (post-compression, on-wire length)
//	N bytes  body
package typed

import (
	"encoding/binary"

	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/protocol/typed/compress"
)

const headerLen = 4 + 8 + 1 + 4

// Parser implements protocol.Parser for the typed frame format above.
type Parser struct {
	raw      []byte
	filled   int
	consumed int
}

// New returns an empty Parser ready to accept bytes via Buffer/Feed.
func New() *Parser {
	return &Parser{}
}

func (p *Parser) OutOfOrder() bool { return true }
func (p *Parser) Protocol() string { return "typed" }

var _ protocol.Parser = (*Parser)(nil)

func (p *Parser) Buffer(min, max int) []byte {
	p.compact()

	need := p.filled + min
	if cap(p.raw) < need {
		newCap := cap(p.raw) * 2
		if newCap < need {
			newCap = need
		}
		nb := make([]byte, p.filled, newCap)
		copy(nb, p.raw[:p.filled])
		p.raw = nb
	}

	avail := cap(p.raw) - p.filled
	if avail > max {
		avail = max
	}
	if len(p.raw) < p.filled+avail {
		p.raw = p.raw[:p.filled+avail]
	}
	return p.raw[p.filled : p.filled+avail]
}

func (p *Parser) compact() {
	if p.consumed == 0 {
		return
	}
	copy(p.raw, p.raw[p.consumed:p.filled])
	p.filled -= p.consumed
	p.consumed = 0
}

// Feed decodes as many complete frames as are buffered, up to
// maxRequests, each becoming one protocol.Request with Op set to
// protocol.OpTyped.
func (p *Parser) Feed(n int, maxRequests int) (reqs []protocol.Request, more bool, err error) {
	p.filled += n

	for len(reqs) < maxRequests {
		avail := p.filled - p.consumed
		if avail < headerLen {
			return reqs, false, nil
		}

		hdr := p.raw[p.consumed : p.consumed+headerLen]
		typeID := binary.BigEndian.Uint32(hdr[0:4])
		reqID := binary.BigEndian.Uint64(hdr[4:12])
		compType := compress.Type(hdr[12])
		bodyLen := binary.BigEndian.Uint32(hdr[13:17])

		frameLen := headerLen + int(bodyLen)
		if avail < frameLen {
			return reqs, false, nil
		}

		wireBody := p.raw[p.consumed+headerLen : p.consumed+frameLen]
		p.consumed += frameLen

		body, derr := compress.Decompress(compType, append([]byte(nil), wireBody...))
		if derr != nil {
			return reqs, false, derr
		}

		reqs = append(reqs, protocol.Request{
			Op:     protocol.OpTyped,
			Body:   body,
			ReqID:  reqID,
			TypeID: typeID,
		})
	}

	more = p.filled-p.consumed >= headerLen
	return reqs, more, nil
}
