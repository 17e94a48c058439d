package writequeue

import "testing"

func TestQueueSingleMode(t *testing.T) {
	q := New()

	q.Stage(Buffer{Data: []byte("a")})
	q.Stage(Buffer{Data: []byte("b")})

	if got := q.PendingLen(); got != 2 {
		t.Fatalf("PendingLen() = %d, want 2", got)
	}

	buf, ok := q.TakeSingle()
	if !ok || string(buf.Data) != "a" {
		t.Fatalf("TakeSingle() = %+v, %v, want {a}, true", buf, ok)
	}
	if got := q.BuffersLen(); got != 1 {
		t.Fatalf("BuffersLen() = %d, want 1", got)
	}

	retired, ok := q.RetireSingle()
	if !ok || string(retired.Data) != "a" {
		t.Fatalf("RetireSingle() = %+v, %v, want {a}, true", retired, ok)
	}
	if q.Empty() {
		t.Fatalf("Empty() = true after retiring only one of two buffers")
	}

	if _, ok := q.TakeSingle(); !ok {
		t.Fatalf("TakeSingle() second call ok = false, want true")
	}
	if _, ok := q.RetireSingle(); !ok {
		t.Fatalf("RetireSingle() second call ok = false, want true")
	}
	if !q.Empty() {
		t.Fatalf("Empty() = false after retiring all staged buffers")
	}
}

func TestQueueBatchMode(t *testing.T) {
	q := New()

	q.Stage(Buffer{Data: []byte("a")})
	q.Stage(Buffer{Noreply: true})
	q.Stage(Buffer{Data: []byte("c")})

	batch := q.TakeBatch()
	if len(batch) != 3 {
		t.Fatalf("TakeBatch() returned %d buffers, want 3", len(batch))
	}
	if q.PendingLen() != 0 {
		t.Fatalf("PendingLen() = %d after TakeBatch, want 0", q.PendingLen())
	}
	if q.BuffersLen() != 3 {
		t.Fatalf("BuffersLen() = %d after TakeBatch, want 3", q.BuffersLen())
	}

	// A second Stage while the first batch is still outstanding starts a
	// second, independent batch.
	q.Stage(Buffer{Data: []byte("d")})
	second := q.TakeBatch()
	if len(second) != 1 {
		t.Fatalf("second TakeBatch() returned %d buffers, want 1", len(second))
	}

	retired := q.RetireBatch()
	if len(retired) != 3 {
		t.Fatalf("first RetireBatch() retired %d buffers, want 3", len(retired))
	}
	if q.Empty() {
		t.Fatalf("Empty() = true with the second batch still outstanding")
	}

	retired = q.RetireBatch()
	if len(retired) != 1 {
		t.Fatalf("second RetireBatch() retired %d buffers, want 1", len(retired))
	}
	if !q.Empty() {
		t.Fatalf("Empty() = false after both batches retired")
	}
}

func TestQueueEmptyOnConstruction(t *testing.T) {
	q := New()
	if !q.Empty() {
		t.Fatalf("Empty() = false on a freshly constructed Queue")
	}
	if _, ok := q.TakeSingle(); ok {
		t.Fatalf("TakeSingle() on an empty Queue returned ok = true")
	}
	if batch := q.TakeBatch(); batch != nil {
		t.Fatalf("TakeBatch() on an empty Queue returned %v, want nil", batch)
	}
}
