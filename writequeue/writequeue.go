// Package writequeue implements the session's WriteBufferQueue (spec
// component C3): the staging-then-retention pipeline a serialized reply
// travels through between a handler producing it and the transport
// retiring it. See spec.md §3 invariant 6 and §4.4.
//
// Queue owns no goroutine, does no I/O and has no locking of its own; the
// session calls it from its read loop and from replying goroutines, always
// while holding the session's mutex.
package writequeue

// Buffer is one serialized reply awaiting a trip to the wire.
type Buffer struct {
	// Data is the wire bytes. Nil (not just empty) for a noreply buffer
	// that must still be retained and retired for accounting purposes
	// (spec §4.4, §9 "Quit noreply").
	Data []byte
	// Noreply marks a buffer that must not actually be written to the
	// transport, even though it still occupies a slot in pending/write
	// buffers.
	Noreply bool
}

// Queue holds pending_writes (staged, not yet handed to the transport)
// and write_buffers (retained while the transport owns them) from
// spec.md §3.
type Queue struct {
	pending []Buffer
	buffers []Buffer
	batches []int
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Stage appends buf to pending_writes. Returns the new pending length.
func (q *Queue) Stage(buf Buffer) int {
	q.pending = append(q.pending, buf)
	return len(q.pending)
}

// PendingLen reports the number of buffers currently staged.
func (q *Queue) PendingLen() int {
	return len(q.pending)
}

// BuffersLen reports the number of buffers currently retained by the
// transport (write_buffers).
func (q *Queue) BuffersLen() int {
	return len(q.buffers)
}

// TakeSingle moves exactly one staged buffer into write_buffers and
// returns it, for single-write mode where each Stage is immediately
// handed to one writev call (spec §4.4).
func (q *Queue) TakeSingle() (Buffer, bool) {
	if len(q.pending) == 0 {
		return Buffer{}, false
	}
	buf := q.pending[0]
	q.pending = q.pending[1:]
	q.buffers = append(q.buffers, buf)
	return buf, true
}

// TakeBatch moves every currently staged buffer into write_buffers as
// one batch, records its size in write_batches, and returns the moved
// buffers for encoding into a single writev-style call (spec §4.4
// batched mode). Noreply buffers are included in the returned slice so
// the caller can skip them on the wire while still counting them.
func (q *Queue) TakeBatch() []Buffer {
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = nil
	q.buffers = append(q.buffers, batch...)
	q.batches = append(q.batches, len(batch))
	return batch
}

// RetireSingle pops exactly one buffer from write_buffers, for
// single-write mode completions.
func (q *Queue) RetireSingle() (Buffer, bool) {
	if len(q.buffers) == 0 {
		return Buffer{}, false
	}
	buf := q.buffers[0]
	q.buffers = q.buffers[1:]
	return buf, true
}

// RetireBatch pops the front of write_batches worth of buffers from
// write_buffers, for batched-mode completions. It returns the retired
// buffers.
func (q *Queue) RetireBatch() []Buffer {
	if len(q.batches) == 0 {
		return nil
	}
	count := q.batches[0]
	q.batches = q.batches[1:]
	if count > len(q.buffers) {
		count = len(q.buffers)
	}
	retired := q.buffers[:count]
	q.buffers = q.buffers[count:]
	return retired
}

// Empty reports whether both pending_writes and write_buffers are empty,
// the condition spec.md §4.6 requires before Closing -> Closed.
func (q *Queue) Empty() bool {
	return len(q.pending) == 0 && len(q.buffers) == 0
}
