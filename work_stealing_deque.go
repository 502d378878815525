package cmdq

import (
	"sync/atomic"
)

// WorkStealingDeque is a bounded double-ended queue for redistributing
// backlog across workers, after the Chase-Lev deque. The owning worker
// pushes and pops at the bottom end (LIFO, plain atomic increment and
// decrement since the owner is the only writer there); other workers
// steal from the top end (FIFO) with a CAS. The two ends only contend on
// the last remaining element, where a CAS on top decides the winner.
//
// Items are held behind atomic pointers so a thief reading a slot ahead
// of its CAS never races with the owner recycling that slot.
type WorkStealingDeque[T any] struct {
	top    atomic.Int64
	_      [cacheLinePad - 8]byte
	bottom atomic.Int64
	_      [cacheLinePad - 8]byte

	buf  []atomic.Pointer[T]
	mask int64
}

// NewWorkStealingDeque creates a deque with the given power-of-two
// capacity. Push fails once capacity items are pending; the deque never
// grows.
func NewWorkStealingDeque[T any](capacity int) (*WorkStealingDeque[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	return &WorkStealingDeque[T]{
		buf:  make([]atomic.Pointer[T], capacity),
		mask: int64(capacity - 1),
	}, nil
}

// Push appends an item at the owner end. Returns false when the deque is
// full. Owner goroutine only.
func (d *WorkStealingDeque[T]) Push(item T) bool {
	b := d.bottom.Load()
	t := d.top.Load()
	if b-t >= int64(len(d.buf)) {
		return false // full
	}

	p := new(T)
	*p = item
	d.buf[b&d.mask].Store(p)
	d.bottom.Store(b + 1)
	return true
}

// Pop removes the most recently pushed item (LIFO). Owner goroutine only.
func (d *WorkStealingDeque[T]) Pop() (item T, ok bool) {
	b := d.bottom.Load() - 1
	// Reserve the slot before looking at top so a concurrent steal of the
	// same element is forced through the CAS below
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		// Deque was already empty
		d.bottom.Store(b + 1)
		var zero T
		return zero, false
	}

	p := d.buf[b&d.mask].Load()
	if t == b {
		// Last element: race the thieves for it
		if !d.top.CompareAndSwap(t, t+1) {
			// A thief won
			d.bottom.Store(b + 1)
			var zero T
			return zero, false
		}
		d.bottom.Store(b + 1)
		return *p, true
	}
	return *p, true
}

// Steal removes the oldest item (FIFO). Safe to call from any goroutine.
// Returns false when the deque is empty or the steal lost a race; callers
// treat both as "no work here" and move on.
func (d *WorkStealingDeque[T]) Steal() (item T, ok bool) {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		var zero T
		return zero, false // empty
	}

	p := d.buf[t&d.mask].Load()
	if !d.top.CompareAndSwap(t, t+1) {
		var zero T
		return zero, false // lost to the owner or another thief
	}
	return *p, true
}

// Len returns the number of pending items as a racy snapshot.
func (d *WorkStealingDeque[T]) Len() int {
	b := d.bottom.Load()
	t := d.top.Load()
	if b < t {
		return 0
	}
	return int(b - t)
}

// Cap returns the fixed capacity.
func (d *WorkStealingDeque[T]) Cap() int {
	return len(d.buf)
}

// IsEmpty reports whether the deque currently holds no items.
func (d *WorkStealingDeque[T]) IsEmpty() bool {
	return d.Len() == 0
}
