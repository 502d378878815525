package cmdq

import (
	"sync/atomic"
)

const cacheLinePad = 64

// slot pairs a payload with its own sequence number. The sequence is what
// lets producers and consumers detect readiness without a lock: a slot is
// writable when sequence == tail and readable when sequence == head+1.
// Sequences increase monotonically, which also rules out ABA on reused
// indices.
type slot[T any] struct {
	sequence atomic.Uint64
	item     T
}

// BoundedConcurrentQueue is a fixed-capacity lock-free FIFO safe for any
// number of concurrent producers and consumers, after Dmitry Vyukov's
// bounded MPMC queue. Producers claim a slot with a CAS on tail, write the
// payload, then publish by storing the new sequence; consumers run the
// symmetric protocol on head. Losing a CAS costs a retry, never a block.
type BoundedConcurrentQueue[T any] struct {
	head uint64
	_    [cacheLinePad - 8]byte
	tail uint64
	_    [cacheLinePad - 8]byte

	mask  uint64
	slots []slot[T]
}

// NewBoundedConcurrentQueue creates an MPMC queue. Capacity must be a
// power of two (enables modulo via bitmask); violating that is a fatal
// configuration error reported at construction.
func NewBoundedConcurrentQueue[T any](capacity int) (*BoundedConcurrentQueue[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}

	q := &BoundedConcurrentQueue[T]{
		mask:  uint64(capacity - 1),
		slots: make([]slot[T], capacity),
	}
	for i := range q.slots {
		q.slots[i].sequence.Store(uint64(i))
	}
	return q, nil
}

// TryPush appends an item; returns false without blocking when full.
func (q *BoundedConcurrentQueue[T]) TryPush(item T) bool {
	for {
		tail := atomic.LoadUint64(&q.tail)
		s := &q.slots[tail&q.mask]
		seq := s.sequence.Load()
		diff := int64(seq) - int64(tail)

		if diff == 0 {
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				s.item = item
				s.sequence.Store(tail + 1)
				return true
			}
			// lost the slot to another producer, retry
		} else if diff < 0 {
			return false // full
		}
		// diff > 0: tail moved under us, retry
	}
}

// TryPop removes the oldest item; ok is false when empty.
func (q *BoundedConcurrentQueue[T]) TryPop() (item T, ok bool) {
	for {
		head := atomic.LoadUint64(&q.head)
		s := &q.slots[head&q.mask]
		seq := s.sequence.Load()
		diff := int64(seq) - int64(head+1)

		if diff == 0 {
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				item = s.item
				var zero T
				s.item = zero // clear reference to help GC
				// Mark the slot writable for the producer one lap ahead
				s.sequence.Store(head + q.mask + 1)
				return item, true
			}
			// lost the slot to another consumer, retry
		} else if diff < 0 {
			var zero T
			return zero, false // empty
		}
		// diff > 0: head moved under us, retry
	}
}

// Len returns the number of queued items as a racy snapshot.
func (q *BoundedConcurrentQueue[T]) Len() int {
	head := atomic.LoadUint64(&q.head)
	tail := atomic.LoadUint64(&q.tail)
	if tail < head {
		return 0
	}
	n := int(tail - head)
	if n > len(q.slots) {
		return len(q.slots)
	}
	return n
}

// Cap returns the fixed capacity.
func (q *BoundedConcurrentQueue[T]) Cap() int {
	return len(q.slots)
}

// IsEmpty reports whether the queue currently holds no items.
func (q *BoundedConcurrentQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// IsFull reports whether the queue is currently at capacity.
func (q *BoundedConcurrentQueue[T]) IsFull() bool {
	return q.Len() >= len(q.slots)
}
