// Package session implements the session core (spec component C6): the
// state machine tying the transport, parser, write queue, multi-op
// aggregator, and request contexts to a user-supplied handler. It owns
// reply ordering, throttling, write batching, and shutdown.
//
// Grounded on rpc/server/conn.go's ServerConn (the teacher's own
// per-connection state machine: a single owning goroutine driving reads,
// a writeMu-guarded writer, graceful close fanning out to in-flight
// work) generalized from claw's RPC session framing to memcached
// request/reply semantics.
package session

import (
	stdsync "sync"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/mcrouterd/session/errors"
	"github.com/mcrouterd/session/multiop"
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/transport"
	"github.com/mcrouterd/session/writequeue"
)

// State is the session's lifecycle state (spec §3, §4.6). Progression is
// monotonic: Streaming -> Closing -> Closed, and no transition leaves
// Closed.
type State int32

const (
	Streaming State = iota
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// pauseReason is a bit in the session's pause_mask (spec §3, §4.2).
type pauseReason uint32

const (
	// PauseThrottled is asserted while real_in_flight >= max_in_flight.
	PauseThrottled pauseReason = 1 << iota
	// PauseWrite is the write-backpressure pause bit. The session itself
	// never asserts it: transport.Write blocks until the write completes.
	PauseWrite
)

// Session is one per accepted connection. It must be constructed with
// New; the zero value is not usable.
//
// Unlike the original's single-threaded event-loop session, a
// *Session's mutable state is guarded by an ordinary mutex: replies may
// legitimately arrive from a handler goroutine that is not the one
// driving reads (spec §5 "callbacks from a non-owning thread"), and
// Close may be invoked by a Server's shutdown fan-out from yet another
// goroutine. A mutex is the idiomatic Go restatement of the single
// "session-owning goroutine" contract; see DESIGN.md for why this
// replaces a literal goroutine-id debug assertion.
type Session struct {
	ctx       context.Context
	transport transport.Transport
	parser    protocol.Parser
	encoder   protocol.Encoder
	handler   Handler
	cfg       Config

	outOfOrder bool

	mu   sync.Mutex
	cond *stdsync.Cond

	// writeMu serializes actual transport.Write calls so two flushes
	// never interleave their bytes on the wire. It is acquired
	// independently of mu, which only ever guards in-memory state.
	writeMu sync.Mutex

	state     State
	pauseMask pauseReason

	inFlight     int
	realInFlight int

	headReqID uint64
	tailReqID uint64

	blockedReplies map[uint64]writequeue.Buffer

	wq             *writequeue.Queue
	writeScheduled bool

	currentMultiop *multiop.Aggregator

	clientCommonName string

	closeCause error

	readDone chan struct{}
}

// New constructs a Session, enrolls it as the transport's reader, and
// starts its owning read-loop goroutine. If the transport implements
// transport.TLSHandshaker, the handshake is driven to completion before
// any bytes are parsed (spec §4.1, §4.7).
//
// handler's OnRequest/OnTypedRequest are invoked from the session's read
// loop for every request the session does not short-circuit itself.
func New(ctx context.Context, tport transport.Transport, parser protocol.Parser, encoder protocol.Encoder, handler Handler, opts ...Option) (*Session, error) {
	if tport == nil || parser == nil || encoder == nil || handler == nil {
		return nil, errors.E(errors.FailedPrecondition, errors.New("session: nil transport, parser, encoder, or handler"))
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		ctx:            ctx,
		transport:      tport,
		parser:         parser,
		encoder:        encoder,
		handler:        handler,
		cfg:            cfg,
		outOfOrder:     parser.OutOfOrder(),
		blockedReplies: make(map[uint64]writequeue.Buffer),
		wq:             writequeue.New(),
		readDone:       make(chan struct{}),
	}
	s.cond = stdsync.NewCond(&s.mu)

	if hs, ok := tport.(transport.TLSHandshaker); ok {
		if err := s.handshake(ctx, hs); err != nil {
			tport.Close()
			// handshake already attaches errors.PermissionDenied to a
			// certificate/address mismatch (spec §7 PeerCertificateInvalid);
			// preserve that code instead of flattening every handshake
			// failure to Unavailable.
			code := errors.CodeOf(err)
			if code == errors.Unknown {
				code = errors.Unavailable
			}
			return nil, errors.E(code, err)
		}
	}

	cfg.Metrics.ObserveSessionCreated()

	go s.readLoop()

	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ClientCommonName returns the peer certificate's common name extracted
// after a successful TLS handshake, or "" for a plain connection or one
// whose certificate carried no CN (spec §3, §4.7).
func (s *Session) ClientCommonName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientCommonName
}

// InFlight returns the current in_flight counter (spec §3).
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// RealInFlight returns the current real_in_flight counter (spec §3).
func (s *Session) RealInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realInFlight
}

// Closed returns a channel that is closed once the session's read loop
// has exited. It does not by itself mean the session reached the Closed
// state (in-flight writes may still be draining); callers that need that
// should poll State() or rely on Config.OnCloseFinish.
func (s *Session) Closed() <-chan struct{} {
	return s.readDone
}

// Close begins graceful teardown (spec §4.6). It is idempotent and safe
// to call from any goroutine, including concurrently with itself. cause
// may be nil for a locally initiated close (e.g. "quit").
func (s *Session) Close(cause error) {
	s.mu.Lock()
	if s.state != Streaming {
		s.mu.Unlock()
		return
	}
	s.state = Closing
	s.closeCause = cause
	onCloseStart := s.cfg.OnCloseStart
	logger := s.cfg.Logger
	agg := s.currentMultiop
	s.currentMultiop = nil
	s.mu.Unlock()

	if cause != nil {
		logger.Warn("session closing", cause, nil)
	}
	if onCloseStart != nil {
		onCloseStart(s)
	}

	// spec §4.5: a close mid-multi-op simulates multiOpEnd so the
	// aggregator can flush already-complete sub-replies or be dropped.
	// agg != nil here only when the parser's own multi_op_end marker
	// never arrived (multiOpEnd already nils out currentMultiop once it
	// does), so EndReqID has not been assigned yet either; reserve it the
	// same way multiOpEnd does. End must run before the completeness
	// check: an aggregator whose every sub-reply already arrived is
	// Complete the instant End sees the (simulated) end marker, and only
	// gets to submit instead of being dropped if Drop is not called on
	// that path.
	if agg != nil {
		s.mu.Lock()
		endID := s.tailReqID
		s.tailReqID++
		agg.SetEndReqID(endID)
		agg.End()
		final, finalEndID, ready := s.finalizeMultiOpLocked(agg)
		if !ready {
			agg.Drop()
		}
		s.mu.Unlock()
		if ready {
			s.orderedReply(finalEndID, writequeue.Buffer{Data: final})
		}
	}

	s.cond.Broadcast()
	s.checkClosed()
}

// checkClosed implements spec §4.6's Closing -> Closed guard:
// in_flight == 0 AND pending_writes/write_buffers empty. Safe to call
// from any goroutine without holding s.mu.
func (s *Session) checkClosed() {
	s.mu.Lock()
	finish := s.state == Closing && s.inFlight == 0 && s.wq.Empty()
	if finish {
		s.state = Closed
	}
	cb := s.cfg.OnCloseFinish
	s.mu.Unlock()

	if !finish {
		return
	}
	s.transport.Close()
	if cb != nil {
		cb(s)
	}
	s.cond.Broadcast()
}

func (s *Session) onTransactionStarted(isSubRequest bool) {
	s.mu.Lock()
	s.inFlight++
	var throttledNow bool
	if !isSubRequest {
		s.realInFlight++
		if s.cfg.MaxInFlight > 0 && s.realInFlight >= s.cfg.MaxInFlight {
			throttledNow = s.pauseLocked(PauseThrottled)
		}
	}
	s.mu.Unlock()

	s.cfg.Metrics.ObserveTransactionStarted(isSubRequest)
	if throttledNow {
		s.cfg.Metrics.SetThrottled(true)
	}
}

func (s *Session) onTransactionCompleted(isSubRequest bool) {
	s.mu.Lock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	var resumedNow bool
	if !isSubRequest {
		if s.realInFlight > 0 {
			s.realInFlight--
		}
		if s.cfg.MaxInFlight > 0 && s.realInFlight < s.cfg.MaxInFlight {
			resumedNow = s.resumeLocked(PauseThrottled)
		}
	}
	s.mu.Unlock()

	s.cfg.Metrics.ObserveTransactionCompleted(isSubRequest)
	if resumedNow {
		s.cfg.Metrics.SetThrottled(false)
	}
	s.checkClosed()
}

// pauseLocked ORs reason into pause_mask. Must be called with s.mu held.
// Returns true iff this call is what newly asserted PauseThrottled.
func (s *Session) pauseLocked(reason pauseReason) bool {
	was := s.pauseMask
	s.pauseMask |= reason
	return reason == PauseThrottled && was&PauseThrottled == 0
}

// resumeLocked ANDs reason out of pause_mask and wakes the read loop if
// the mask is now empty. Must be called with s.mu held. Returns true iff
// this call is what newly cleared PauseThrottled.
func (s *Session) resumeLocked(reason pauseReason) bool {
	was := s.pauseMask
	s.pauseMask &^= reason
	if s.pauseMask == 0 {
		s.cond.Broadcast()
	}
	return reason == PauseThrottled && was&PauseThrottled != 0
}
