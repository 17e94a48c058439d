// Package protocol defines the contract between a session and the parser
// that turns an inbound byte stream into requests (spec component C2).
// The session never decodes bytes itself; it drives a Parser and reacts
// to the requests the Parser hands back.
package protocol

// Op identifies the memcached operation a request names.
type Op int

const (
	OpUnknown Op = iota
	OpGet
	OpGets
	OpLeaseGet
	OpMetaGet
	OpSet
	OpAdd
	OpReplace
	OpAppend
	OpPrepend
	OpCas
	OpDelete
	OpIncr
	OpDecr
	OpVersion
	OpQuit
	OpShutdown
	OpTyped // out-of-order binary/typed request; body is opaque to the session
)

var opNames = map[Op]string{
	OpUnknown:  "unknown",
	OpGet:      "get",
	OpGets:     "gets",
	OpLeaseGet: "lease_get",
	OpMetaGet:  "metaget",
	OpSet:      "set",
	OpAdd:      "add",
	OpReplace:  "replace",
	OpAppend:   "append",
	OpPrepend:  "prepend",
	OpCas:      "cas",
	OpDelete:   "delete",
	OpIncr:     "incr",
	OpDecr:     "decr",
	OpVersion:  "version",
	OpQuit:     "quit",
	OpShutdown: "shutdown",
	OpTyped:    "typed",
}

// String renders op's command name, used in log lines and error replies.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown"
}

// IsMultiGet reports whether op belongs to the ASCII multi-key GET family
// that the session aggregates via a MultiOpAggregator (spec §4.1, §4.5).
func (op Op) IsMultiGet() bool {
	switch op {
	case OpGet, OpGets, OpLeaseGet, OpMetaGet:
		return true
	default:
		return false
	}
}

// Result classifies how a Parser finished producing a Request.
type Result int

const (
	// ResultOK means the request parsed cleanly.
	ResultOK Result = iota
	// ResultBadKey means the key failed validation (too long, contains
	// whitespace/control bytes); the session short-circuits this with an
	// immediate bad_key reply (spec §4.1).
	ResultBadKey
	// ResultClientError means the request is malformed in a way that
	// cannot be completed at all; the session synthesizes one error
	// reply and closes (spec §4.1, §7 ParseFailure).
	ResultClientError
	// ResultMultiOpEnd is not a request: it is the synthetic terminator
	// the parser emits after the last sub-request of an ASCII multi-key
	// GET, signaling the session to finalize the current MultiOpAggregator
	// (spec §4.5).
	ResultMultiOpEnd
)

// Request is the value a Parser hands to the session for every fully
// parsed unit of work, mirroring spec.md §4.1's "(request, op,
// parser_reqid, result, noreply)" tuple.
type Request struct {
	Op     Op
	Key    []byte
	Body   []byte
	Result Result
	Noreply bool

	// Flags is the client-supplied flags word on a storage command
	// (set/add/replace/append/prepend/cas); zero and unused otherwise.
	Flags uint32

	// ReqID is only meaningful when the owning Parser is out-of-order
	// (TypedRequest); in-order parsers leave this zero and the session
	// assigns tail_reqid itself (spec §4.1).
	ReqID uint64

	// TypeID identifies the wire message type for a typed/binary request;
	// zero for ASCII requests.
	TypeID uint32

	// Reason is a human-readable explanation attached to
	// ResultClientError requests (spec §7 ParseFailure).
	Reason string
}

// Parser consumes bytes from a session's read buffer and emits Requests.
// Implementations are supplied by the caller (spec's "external
// collaborator"); this package only fixes the contract a session can
// drive. See protocol/ascii and protocol/typed for two concrete parsers.
type Parser interface {
	// OutOfOrder reports whether replies may be written to the wire in
	// any order relative to request arrival. ASCII parsers return false;
	// typed/binary parsers return true.
	OutOfOrder() bool

	// Protocol names the wire protocol, used for diagnostics and for
	// selecting a WriteBufferQueue encoding.
	Protocol() string

	// Buffer returns a writable region sized between min and max bytes
	// for the transport to fill via Read.
	Buffer(min, max int) []byte

	// Feed hands n freshly read bytes (the prefix of the last Buffer
	// call's return value) to the parser. It returns every Request fully
	// parsed from the accumulated input, up to maxRequests of them
	// (spec §4.1's requests_per_read fairness bound), plus a bool
	// indicating whether more complete requests remain buffered and
	// could be drained immediately without another Read.
	Feed(n int, maxRequests int) (reqs []Request, more bool, err error)
}

// Encoder renders a reply payload into wire bytes, the second half of
// the Parser/WriteBufferQueue split (spec C3). Session state (reqid,
// multi-op membership) never reaches the Encoder; it only needs what
// the wire format requires to render one reply.
type Encoder interface {
	// Encode appends the wire representation of reply to dst and
	// returns the extended slice. key is the snapshot attached to the
	// originating RequestContext (spec §4.1), needed by GET-family
	// ASCII replies which echo the key back on the VALUE line. reqID is
	// only meaningful to an out-of-order encoder (e.g. protocol/typed),
	// which must stamp a correlation id into every reply frame since the
	// wire order no longer implies it; an in-order ASCII encoder ignores
	// it.
	Encode(dst []byte, reqID uint64, op Op, key []byte, noreply bool, reply Reply) []byte
}

// Reply is the payload a handler submits through a RequestContext. It is
// protocol-agnostic; an Encoder turns it into wire bytes.
type Reply struct {
	// Status is a short machine-readable outcome, e.g. "STORED",
	// "NOT_FOUND", "bad_key", "ERROR". Empty means "no status line",
	// used for value-bearing GET replies.
	Status string
	// Value is the payload bytes for replies that carry a value.
	Value []byte
	// Flags is the protocol-level flags word for GET-family replies.
	Flags uint32
	// Reason carries a human-readable explanation for CLIENT_ERROR /
	// SERVER_ERROR replies.
	Reason string
	// Found reports whether a GET-family sub-request produced a value.
	// Only consulted by multiop.Aggregator when merging sub-replies.
	Found bool
	// TypeID is the out-of-order typed protocol's response type id
	// (protocol/typed.Encoder stamps it into the reply frame's header);
	// unused by ASCII replies.
	TypeID uint32
}
