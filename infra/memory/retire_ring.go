package memory

import "sync"

// RetireRing buffers retired objects between the matchers and the
// epoch reclaimer. Instruments match in parallel, so enqueues arrive
// from many goroutines at once, and the reclaimer itself re-enqueues
// objects it cannot free yet. A mutex guards both ends; the ring is
// only touched on order completion and on the reclaim tick, never in
// the matching loop itself.
type RetireRing struct {
	mu   sync.Mutex
	head uint64
	tail uint64
	buf  []any
	mask uint64
}

func NewRetireRing(size uint64) *RetireRing {
	if size&(size-1) != 0 {
		panic("RetireRing size must be power of two")
	}
	return &RetireRing{
		buf:  make([]any, size),
		mask: size - 1,
	}
}

// Enqueue adds a retired object. Returns false when the ring is full,
// which means the reclaimer has fallen behind the matchers.
func (r *RetireRing) Enqueue(v any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head-r.tail == uint64(len(r.buf)) {
		return false
	}
	r.buf[r.head&r.mask] = v
	r.head++
	return true
}

// Dequeue removes the oldest retired object, or nil when empty.
func (r *RetireRing) Dequeue() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tail == r.head {
		return nil
	}
	v := r.buf[r.tail&r.mask]
	r.buf[r.tail&r.mask] = nil
	r.tail++
	return v
}
