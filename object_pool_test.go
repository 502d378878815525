package cmdq

import (
	"sync"
	"testing"
)

type pooledBuffer struct {
	data []byte
}

func TestObjectPoolAcquireRelease(t *testing.T) {
	built := 0
	pool, err := NewObjectPool(8, func() *pooledBuffer {
		built++
		return &pooledBuffer{data: make([]byte, 64)}
	})
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	if built != 8 {
		t.Errorf("Expected 8 pre-warmed objects, factory ran %d times", built)
	}
	if pool.Available() != 8 {
		t.Errorf("Expected 8 available, got %d", pool.Available())
	}

	obj := pool.Acquire()
	if obj == nil {
		t.Fatal("Acquire returned nil")
	}
	if pool.Available() != 7 {
		t.Errorf("Expected 7 available after acquire, got %d", pool.Available())
	}

	if err := pool.Release(obj); err != nil {
		t.Errorf("Release failed: %v", err)
	}
	if pool.Available() != 8 {
		t.Errorf("Expected 8 available after release, got %d", pool.Available())
	}
}

func TestObjectPoolExhaustionFallsBackToFactory(t *testing.T) {
	pool, _ := NewObjectPool(4, func() *pooledBuffer {
		return &pooledBuffer{}
	})

	held := make([]*pooledBuffer, 0, 6)
	for i := 0; i < 6; i++ {
		held = append(held, pool.Acquire())
	}
	// 4 from the free list, 2 allocated on demand
	stats := pool.Stats()
	if stats.Misses != 2 {
		t.Errorf("Expected 2 misses, got %d", stats.Misses)
	}
	for _, obj := range held {
		if obj == nil {
			t.Fatal("Acquire returned nil on exhausted pool")
		}
	}
}

func TestObjectPoolDoubleRelease(t *testing.T) {
	pool, _ := NewObjectPool(2, func() int { return 0 })

	obj := pool.Acquire()
	if err := pool.Release(obj); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	// Free list is full again; releasing an object that was never acquired
	// must surface as a defect
	if err := pool.Release(42); err != ErrDoubleRelease {
		t.Errorf("Expected ErrDoubleRelease, got %v", err)
	}
}

func TestObjectPoolInvalidConfig(t *testing.T) {
	if _, err := NewObjectPool[int](3, func() int { return 0 }); err == nil {
		t.Error("Expected error for non-power-of-two capacity")
	}
	if _, err := NewObjectPool[int](4, nil); err == nil {
		t.Error("Expected error for nil factory")
	}
}

func TestObjectPoolStats(t *testing.T) {
	pool, _ := NewObjectPool(8, func() int { return 0 })

	a := pool.Acquire()
	b := pool.Acquire()
	c := pool.Acquire()

	stats := pool.Stats()
	if stats.Gets != 3 {
		t.Errorf("Expected 3 gets, got %d", stats.Gets)
	}
	if stats.InUse != 3 {
		t.Errorf("Expected 3 in use, got %d", stats.InUse)
	}
	if stats.MaxInUse != 3 {
		t.Errorf("Expected max 3 in use, got %d", stats.MaxInUse)
	}

	pool.Release(a)
	pool.Release(b)
	pool.Release(c)

	stats = pool.Stats()
	if stats.Puts != 3 {
		t.Errorf("Expected 3 puts, got %d", stats.Puts)
	}
	if stats.InUse != 0 {
		t.Errorf("Expected 0 in use after releases, got %d", stats.InUse)
	}
	if stats.MaxInUse != 3 {
		t.Errorf("Expected max in use to stay 3, got %d", stats.MaxInUse)
	}
}

func TestObjectPoolConcurrent(t *testing.T) {
	pool, _ := NewObjectPool(64, func() *pooledBuffer {
		return &pooledBuffer{}
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5000; i++ {
				obj := pool.Acquire()
				obj.data = append(obj.data[:0], byte(i))
				pool.Release(obj)
			}
		}()
	}
	wg.Wait()

	stats := pool.Stats()
	if stats.Gets != 40000 {
		t.Errorf("Expected 40000 gets, got %d", stats.Gets)
	}
	if stats.InUse != 0 {
		t.Errorf("Expected 0 in use after all releases, got %d", stats.InUse)
	}
}
