// Package ascii implements the reference in-order ASCII parser and
// encoder (spec component C10). The teacher has no ASCII memcached
// parser of its own; this is grounded on pior-memcache/protocol's
// line-then-body reading style (ReadResponse's bufio.Reader.ReadString
// followed by io.ReadFull for a known-length value) translated from that
// package's blocking bufio.Reader contract to protocol.Parser's
// incremental Buffer/Feed contract, since a session's transport.Read
// never blocks waiting for a full command.
package ascii

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/mcrouterd/session/protocol"
)

const (
	maxKeyLen = 250
	crlf      = "\r\n"
)

// Parser implements protocol.Parser for the classic memcached ASCII
// protocol: get/gets/lease_get/metaget (multi-key), set/add/replace/
// append/prepend/cas, delete, incr/decr, version, quit, shutdown.
type Parser struct {
	raw      []byte
	filled   int
	consumed int

	multi *multiGetState
}

type multiGetState struct {
	op   protocol.Op
	keys [][]byte
	idx  int
}

// New returns an empty Parser ready to accept bytes via Buffer/Feed.
func New() *Parser {
	return &Parser{}
}

func (p *Parser) OutOfOrder() bool { return false }
func (p *Parser) Protocol() string { return "ascii" }

var _ protocol.Parser = (*Parser)(nil)

// Buffer returns a writable tail region sized between min and max bytes,
// compacting already-consumed bytes off the front first so the backing
// array does not grow without bound across a long-lived connection.
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

// Feed hands n bytes freshly written into the last Buffer call's return
// value to the parser (n is only meaningful the first time Feed is
// called after a Buffer/Read pair; subsequent calls draining already
// buffered input pass n=0).
func (p *Parser) Feed(n int, maxRequests int) (reqs []protocol.Request, more bool, err error) {
	p.filled += n

	for len(reqs) < maxRequests {
		if p.multi != nil {
			if p.multi.idx < len(p.multi.keys) {
				key := p.multi.keys[p.multi.idx]
				p.multi.idx++
				reqs = append(reqs, p.keyRequest(p.multi.op, key))
				continue
			}
			reqs = append(reqs, protocol.Request{Result: protocol.ResultMultiOpEnd})
			p.multi = nil
			continue
		}

		lineStart := p.consumed
		line, ok := p.nextLine()
		if !ok {
			return reqs, false, nil
		}

		req, ok2 := p.parseLine(line, lineStart)
		if !ok2 {
			// parseLine needs more buffered bytes (a body) than we have;
			// it has already rewound p.consumed to lineStart.
			return reqs, false, nil
		}
		if req == nil {
			// A pure multi-get command line: no request to emit yet, the
			// next loop iteration drains p.multi.
			continue
		}
		reqs = append(reqs, *req)
	}

	more = p.multi != nil || p.hasLine()
	return reqs, more, nil
}

// nextLine returns the next CRLF-terminated line (without the CRLF),
// advancing p.consumed past it. ok is false if no full line is buffered
// yet.
func (p *Parser) nextLine() ([]byte, bool) {
	idx := bytes.Index(p.raw[p.consumed:p.filled], []byte(crlf))
	if idx < 0 {
		return nil, false
	}
	line := p.raw[p.consumed : p.consumed+idx]
	p.consumed += idx + 2
	return line, true
}

func (p *Parser) hasLine() bool {
	return bytes.Contains(p.raw[p.consumed:p.filled], []byte(crlf))
}

// haveBytes reports whether count bytes are available starting at
// p.consumed.
func (p *Parser) haveBytes(count int) bool {
	return p.filled-p.consumed >= count
}

// keyRequest builds a Request for key, copying it out of the parser's
// internal buffer since that buffer is compacted and overwritten on
// every subsequent Buffer call.
func (p *Parser) keyRequest(op protocol.Op, key []byte) protocol.Request {
	key = append([]byte(nil), key...)
	if !validKey(key) {
		return protocol.Request{Op: op, Key: key, Result: protocol.ResultBadKey, Reason: "bad_key"}
	}
	return protocol.Request{Op: op, Key: key}
}

func validKey(key []byte) bool {
	if len(key) == 0 || len(key) > maxKeyLen {
		return false
	}
	for _, b := range key {
		if b <= 0x20 || b == 0x7f {
			return false
		}
	}
	return true
}

func clientError(reason string) *protocol.Request {
	return &protocol.Request{Result: protocol.ResultClientError, Reason: reason}
}

// parseLine dispatches one command line. ok is false when the command
// needs a body that is not fully buffered yet; the caller must retry
// once more bytes arrive, and parseLine has already restored p.consumed
// to lineStart so the line is reparsed from scratch.
func (p *Parser) parseLine(line []byte, lineStart int) (*protocol.Request, bool) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return clientError("empty command line"), true
	}
	cmd := string(fields[0])
	args := fields[1:]

	switch cmd {
	case "get", "gets":
		return p.startMultiGet(protocol.OpGet, args, cmd == "gets")
	case "lease_get":
		return p.startMultiGet(protocol.OpLeaseGet, args, false)
	case "metaget":
		return p.startMultiGet(protocol.OpMetaGet, args, false)
	case "set", "add", "replace", "append", "prepend":
		return p.parseStorage(storageOp(cmd), args, lineStart)
	case "cas":
		return p.parseStorage(protocol.OpCas, args, lineStart)
	case "delete":
		return p.parseDelete(args)
	case "incr":
		return p.parseArith(protocol.OpIncr, args)
	case "decr":
		return p.parseArith(protocol.OpDecr, args)
	case "version":
		return &protocol.Request{Op: protocol.OpVersion}, true
	case "quit":
		return &protocol.Request{Op: protocol.OpQuit}, true
	case "shutdown":
		return &protocol.Request{Op: protocol.OpShutdown}, true
	default:
		return clientError(fmt.Sprintf("unknown command %q", cmd)), true
	}
}

func storageOp(cmd string) protocol.Op {
	switch cmd {
	case "set":
		return protocol.OpSet
	case "add":
		return protocol.OpAdd
	case "replace":
		return protocol.OpReplace
	case "append":
		return protocol.OpAppend
	case "prepend":
		return protocol.OpPrepend
	}
	return protocol.OpUnknown
}

// startMultiGet begins a GET-family command. Every key, including the
// only key of a single-key get, is later emitted as its own sub-request,
// followed by one ResultMultiOpEnd marker. isGets switches op to OpGets.
func (p *Parser) startMultiGet(op protocol.Op, keys [][]byte, isGets bool) (*protocol.Request, bool) {
	if isGets {
		op = protocol.OpGets
	}
	if len(keys) == 0 {
		return clientError(op.String() + ": no keys given"), true
	}
	cp := make([][]byte, len(keys))
	for i, k := range keys {
		cp[i] = append([]byte(nil), k...)
	}
	p.multi = &multiGetState{op: op, keys: cp}
	return nil, true
}

// parseStorage parses set/add/replace/append/prepend/cas's shared
// "<key> <flags> <exptime> <bytes> [casid] [noreply]" tail and reads the
// data block that follows the header line. If the data block is not yet
// fully buffered, it rewinds p.consumed to lineStart and returns ok=false
// so the header is reparsed once more bytes arrive.
func (p *Parser) parseStorage(op protocol.Op, args [][]byte, lineStart int) (*protocol.Request, bool) {
	minArgs := 4
	if op == protocol.OpCas {
		minArgs = 5
	}
	if len(args) < minArgs {
		return clientError("malformed storage command"), true
	}

	key := args[0]
	flags, err1 := strconv.ParseUint(string(args[1]), 10, 32)
	_, err2 := strconv.ParseInt(string(args[2]), 10, 64) // exptime, unused by the session itself
	length, err3 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil || err3 != nil || length < 0 {
		return clientError("malformed storage command"), true
	}

	noreply := len(args) > minArgs && string(args[len(args)-1]) == "noreply"

	need := length + 2 // data block plus trailing CRLF
	if !p.haveBytes(need) {
		p.consumed = lineStart
		return nil, false
	}

	body := append([]byte(nil), p.raw[p.consumed:p.consumed+length]...)
	p.consumed += need

	req := p.keyRequest(op, key)
	req.Body = body
	req.Noreply = noreply
	req.Flags = uint32(flags)
	return &req, true
}

func (p *Parser) parseDelete(args [][]byte) (*protocol.Request, bool) {
	if len(args) == 0 {
		return clientError("delete: no key given"), true
	}
	req := p.keyRequest(protocol.OpDelete, args[0])
	req.Noreply = len(args) > 1 && string(args[len(args)-1]) == "noreply"
	return &req, true
}

func (p *Parser) parseArith(op protocol.Op, args [][]byte) (*protocol.Request, bool) {
	if len(args) < 2 {
		return clientError(op.String() + ": malformed command"), true
	}
	if _, err := strconv.ParseInt(string(args[1]), 10, 64); err != nil {
		return clientError(op.String() + ": malformed delta"), true
	}
	req := p.keyRequest(op, args[0])
	req.Body = append([]byte(nil), args[1]...)
	req.Noreply = len(args) > 2 && string(args[len(args)-1]) == "noreply"
	return &req, true
}
