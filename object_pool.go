package cmdq

import (
	"sync/atomic"
)

// ObjectPool is a fixed-capacity pool of reusable objects backed by a
// lock-free free list, used to keep hot-path allocations (envelopes,
// scratch buffers) off the garbage collector.
//
// Exhaustion policy: Acquire falls back to the factory when the free list
// is empty, so callers never block; the miss is counted so integrators can
// size the pool. Releasing into an already-full free list means the caller
// released an object it never acquired (or released twice) and is reported
// as a defect via ErrDoubleRelease rather than silently dropped.
type ObjectPool[T any] struct {
	free    *BoundedConcurrentQueue[T]
	factory func() T
	stats   poolStats
}

// poolStats tracks pool usage for monitoring and tuning
type poolStats struct {
	gets     atomic.Uint64
	puts     atomic.Uint64
	misses   atomic.Uint64
	inUse    atomic.Int64
	maxInUse atomic.Int64
}

// PoolStats is a snapshot of pool usage counters.
type PoolStats struct {
	Gets     uint64
	Puts     uint64
	Misses   uint64
	InUse    int64
	MaxInUse int64
}

// NewObjectPool creates a pool holding up to capacity free objects,
// pre-filled by calling factory capacity times. Capacity must be a power
// of two (the free list is a BoundedConcurrentQueue).
func NewObjectPool[T any](capacity int, factory func() T) (*ObjectPool[T], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	free, err := NewBoundedConcurrentQueue[T](capacity)
	if err != nil {
		return nil, err
	}

	p := &ObjectPool[T]{
		free:    free,
		factory: factory,
	}
	// Pre-warm so the steady state never touches the allocator
	for i := 0; i < capacity; i++ {
		p.free.TryPush(factory())
	}
	return p, nil
}

// Acquire returns an object from the free list, or a freshly built one
// when the pool is exhausted. Never blocks.
func (p *ObjectPool[T]) Acquire() T {
	p.stats.gets.Add(1)
	inUse := p.stats.inUse.Add(1)
	for {
		max := p.stats.maxInUse.Load()
		if inUse <= max || p.stats.maxInUse.CompareAndSwap(max, inUse) {
			break
		}
	}

	if item, ok := p.free.TryPop(); ok {
		return item
	}
	p.stats.misses.Add(1)
	return p.factory()
}

// Release returns an object to the free list. Returns ErrDoubleRelease
// when the free list is already at capacity, which means the caller is
// returning more objects than it acquired.
func (p *ObjectPool[T]) Release(item T) error {
	p.stats.puts.Add(1)
	p.stats.inUse.Add(-1)

	if !p.free.TryPush(item) {
		return ErrDoubleRelease
	}
	return nil
}

// Available returns the current number of free objects.
func (p *ObjectPool[T]) Available() int {
	return p.free.Len()
}

// Cap returns the fixed free-list capacity.
func (p *ObjectPool[T]) Cap() int {
	return p.free.Cap()
}

// Stats returns a snapshot of the pool usage counters.
func (p *ObjectPool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:     p.stats.gets.Load(),
		Puts:     p.stats.puts.Load(),
		Misses:   p.stats.misses.Load(),
		InUse:    p.stats.inUse.Load(),
		MaxInUse: p.stats.maxInUse.Load(),
	}
}
