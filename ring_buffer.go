package cmdq

import (
	"sync/atomic"
)

// BoundedRingBuffer is a fixed-capacity lock-free FIFO for exactly one
// producer goroutine and one consumer goroutine. Because there is a single
// writer per index no CAS is needed: the producer publishes a written slot
// with a release store of head, the consumer observes it with an acquire
// load, and symmetrically for tail.
//
// Each side keeps a cached copy of the other side's index so the fast path
// touches only its own cache line; the cross-core load happens only when
// the cached value says the buffer looks full (or empty).
type BoundedRingBuffer[T any] struct {
	// Producer side: head (producer writes) + cached tail
	head       atomic.Uint64
	cachedTail uint64
	_          [cacheLinePad - 16]byte

	// Consumer side: tail (consumer writes) + cached head
	tail       atomic.Uint64
	cachedHead uint64
	_          [cacheLinePad - 16]byte

	// Immutable after construction
	buf  []T
	mask uint64
}

// NewBoundedRingBuffer creates an SPSC ring buffer. Capacity must be a
// power of two; anything else is a configuration defect and fails at
// construction, not at first use.
func NewBoundedRingBuffer[T any](capacity int) (*BoundedRingBuffer[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	return &BoundedRingBuffer[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// TryPush appends an item. Returns false without blocking when the buffer
// is full; rejection is the backpressure signal. Producer goroutine only.
func (rb *BoundedRingBuffer[T]) TryPush(item T) bool {
	head := rb.head.Load()
	if head-rb.cachedTail >= uint64(len(rb.buf)) {
		rb.cachedTail = rb.tail.Load()
		if head-rb.cachedTail >= uint64(len(rb.buf)) {
			return false // still full
		}
	}

	rb.buf[head&rb.mask] = item
	// Release store publishes the slot to the consumer
	rb.head.Store(head + 1)
	return true
}

// TryPop removes the oldest item. ok is false when the buffer is empty.
// Consumer goroutine only.
func (rb *BoundedRingBuffer[T]) TryPop() (item T, ok bool) {
	tail := rb.tail.Load()
	if tail >= rb.cachedHead {
		rb.cachedHead = rb.head.Load()
		if tail >= rb.cachedHead {
			var zero T
			return zero, false // still empty
		}
	}

	idx := tail & rb.mask
	item = rb.buf[idx]
	var zero T
	rb.buf[idx] = zero // clear reference to help GC
	rb.tail.Store(tail + 1)
	return item, true
}

// Len returns the number of buffered items. The value is a snapshot and
// may be stale by the time the caller acts on it.
func (rb *BoundedRingBuffer[T]) Len() int {
	return int(rb.head.Load() - rb.tail.Load())
}

// Cap returns the fixed capacity.
func (rb *BoundedRingBuffer[T]) Cap() int {
	return len(rb.buf)
}

// IsEmpty reports whether the buffer currently holds no items.
func (rb *BoundedRingBuffer[T]) IsEmpty() bool {
	return rb.Len() == 0
}

// IsFull reports whether the buffer is currently at capacity.
func (rb *BoundedRingBuffer[T]) IsFull() bool {
	return rb.Len() >= len(rb.buf)
}
