package cmdq

import (
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

type benchCommand struct{ counter *atomic.Int64 }

func (c *benchCommand) Execute(ctx ExecutionContext) error {
	if c.counter != nil {
		c.counter.Add(1)
	}
	return nil
}
func (c *benchCommand) GetType() CommandType     { return CommandTypeDraw }
func (c *benchCommand) GetPriority() Priority    { return PriorityNormal }
func (c *benchCommand) GetName() string          { return "bench" }
func (c *benchCommand) CanBatch() bool           { return true }
func (c *benchCommand) GetEstimatedCost() uint64 { return 1 }

func BenchmarkRingBufferPushPop(b *testing.B) {
	rb, _ := NewBoundedRingBuffer[int](1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.TryPush(i)
		rb.TryPop()
	}
}

func BenchmarkConcurrentQueuePushPop(b *testing.B) {
	q, _ := NewBoundedConcurrentQueue[int](1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.TryPush(i)
		q.TryPop()
	}
}

func BenchmarkConcurrentQueueContended(b *testing.B) {
	q, _ := NewBoundedConcurrentQueue[int](4096)
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i&1 == 0 {
				q.TryPush(i)
			} else {
				q.TryPop()
			}
			i++
		}
	})
}

func BenchmarkObjectPoolAcquireRelease(b *testing.B) {
	pool, _ := NewObjectPool(1024, func() *CommandEnvelope {
		return &CommandEnvelope{}
	})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		env := pool.Acquire()
		pool.Release(env)
	}
}

func BenchmarkDequePushPop(b *testing.B) {
	d, _ := NewWorkStealingDeque[int](1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Push(i)
		d.Pop()
	}
}

func BenchmarkCommandQueueSubmitProcess(b *testing.B) {
	logger := zerolog.Nop()
	cq, _ := NewCommandQueue(QueueConfig{
		Capacity:              4096,
		EnablePrioritySorting: true,
		EnableBatching:        true,
		EnableStatistics:      true,
	}, &logger)
	ctx := &fakeContext{}
	cmd := &benchCommand{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cq.Submit(cmd)
		if i&1023 == 1023 {
			cq.Process(ctx)
		}
	}
	cq.Process(ctx)
}

func BenchmarkCommandQueueSubmitParallel(b *testing.B) {
	logger := zerolog.Nop()
	cq, _ := NewCommandQueue(QueueConfig{Capacity: 1 << 16}, &logger)
	ctx := &fakeContext{}
	cmd := &benchCommand{}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if !cq.Submit(cmd) {
				cq.ProcessBatch(ctx, 256)
			}
		}
	})
}
