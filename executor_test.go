package cmdq

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestExecutor(t *testing.T, cfg QueueConfig) (*CommandExecutor, *CommandQueue) {
	t.Helper()
	logger := zerolog.Nop()
	cq, err := NewCommandQueue(cfg, &logger)
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	return NewCommandExecutor(cq, &logger), cq
}

// countingCommand atomically counts executions, for cross-goroutine
// verification without a recorder mutex.
type countingCommand struct {
	counter  *atomic.Int64
	priority Priority
}

func (c *countingCommand) Execute(ctx ExecutionContext) error {
	c.counter.Add(1)
	return nil
}
func (c *countingCommand) GetType() CommandType     { return CommandTypeCompute }
func (c *countingCommand) GetPriority() Priority    { return c.priority }
func (c *countingCommand) GetName() string          { return "counting" }
func (c *countingCommand) CanBatch() bool           { return true }
func (c *countingCommand) GetEstimatedCost() uint64 { return 1 }

func TestExecutorProcessesAllCommands(t *testing.T) {
	exec, cq := newTestExecutor(t, QueueConfig{
		Capacity:    1024,
		WorkerCount: 4,
	})

	if err := exec.Start(&fakeContext{name: "gpu"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer exec.Stop()

	var counter atomic.Int64
	const total = 20000
	for i := 0; i < total; {
		if cq.Submit(&countingCommand{counter: &counter}) {
			i++
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for counter.Load() < total && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := counter.Load(); got != total {
		t.Errorf("Expected %d commands executed, got %d", total, got)
	}

	stats := exec.Stats()
	if stats.CommandsHandled != total {
		t.Errorf("Expected %d commands handled by workers, got %d", total, stats.CommandsHandled)
	}
	if stats.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", stats.Workers)
	}
}

func TestExecutorStopIdempotent(t *testing.T) {
	exec, _ := newTestExecutor(t, QueueConfig{Capacity: 64, WorkerCount: 2})

	exec.Start(&fakeContext{})
	done := make(chan struct{})
	go func() {
		exec.Stop()
		exec.Stop() // Second stop must not hang or panic
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Double Stop deadlocked")
	}
	if exec.IsRunning() {
		t.Error("Expected executor to report not running after Stop")
	}
}

func TestExecutorStopBeforeStart(t *testing.T) {
	exec, _ := newTestExecutor(t, QueueConfig{Capacity: 64, WorkerCount: 2})

	done := make(chan struct{})
	go func() {
		exec.Stop() // Never started; must return immediately
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop before Start deadlocked")
	}

	// Start after Stop is refused, not a crash
	if err := exec.Start(&fakeContext{}); err != ErrExecutorNotRunning {
		t.Errorf("Expected ErrExecutorNotRunning after Stop, got %v", err)
	}
}

func TestExecutorStartTwice(t *testing.T) {
	exec, cq := newTestExecutor(t, QueueConfig{Capacity: 64, WorkerCount: 2})
	defer exec.Stop()

	if err := exec.Start(&fakeContext{}); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	if err := exec.Start(&fakeContext{}); err != nil {
		t.Errorf("Second start must be a no-op, got %v", err)
	}

	var counter atomic.Int64
	cq.Submit(&countingCommand{counter: &counter})
	deadline := time.Now().Add(2 * time.Second)
	for counter.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if counter.Load() != 1 {
		t.Error("Expected command to run exactly once after double start")
	}
}

func TestExecutorStartNilContext(t *testing.T) {
	exec, _ := newTestExecutor(t, QueueConfig{Capacity: 64, WorkerCount: 1})
	if err := exec.Start(nil); err != ErrNilContext {
		t.Errorf("Expected ErrNilContext, got %v", err)
	}
}

func TestExecutorSubmitCommands(t *testing.T) {
	exec, cq := newTestExecutor(t, QueueConfig{
		Capacity:              64,
		EnablePrioritySorting: true,
		WorkerCount:           1,
	})

	var counter atomic.Int64
	batch := []Command{
		&countingCommand{counter: &counter, priority: PriorityHigh},
		nil, // skipped with a warning, not fatal
		&countingCommand{counter: &counter, priority: PriorityLow},
	}
	accepted := exec.SubmitCommands(batch)
	if accepted != 2 {
		t.Errorf("Expected 2 accepted commands, got %d", accepted)
	}
	if cq.Len() != 2 {
		t.Errorf("Expected 2 queued commands, got %d", cq.Len())
	}
}

func TestExecutorWaitForCompletion(t *testing.T) {
	exec, cq := newTestExecutor(t, QueueConfig{Capacity: 256, WorkerCount: 2})

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		cq.Submit(&countingCommand{counter: &counter})
	}

	exec.Start(&fakeContext{})
	exec.WaitForCompletion()

	if !cq.IsEmpty() {
		t.Errorf("Expected empty queue after WaitForCompletion, got %d", cq.Len())
	}
	exec.Stop()

	if counter.Load() != 100 {
		t.Errorf("Expected 100 executed, got %d", counter.Load())
	}
}

func TestExecutorWaitForCompletionWhenStopped(t *testing.T) {
	exec, cq := newTestExecutor(t, QueueConfig{Capacity: 64, WorkerCount: 2})

	var counter atomic.Int64
	for i := 0; i < 10; i++ {
		cq.Submit(&countingCommand{counter: &counter})
	}

	// Never started: backlog is flushed, not executed
	exec.WaitForCompletion()
	if !cq.IsEmpty() {
		t.Errorf("Expected flushed queue, got %d pending", cq.Len())
	}
	if counter.Load() != 0 {
		t.Errorf("Expected no execution without a context, got %d", counter.Load())
	}
	if cq.GetStats().Dropped != 10 {
		t.Errorf("Expected 10 dropped by flush, got %d", cq.GetStats().Dropped)
	}
}

func TestExecutorStopDrainsInFlightWork(t *testing.T) {
	exec, cq := newTestExecutor(t, QueueConfig{Capacity: 1024, WorkerCount: 4})
	exec.Start(&fakeContext{})

	var counter atomic.Int64
	const total = 1000
	for i := 0; i < total; {
		if cq.Submit(&countingCommand{counter: &counter}) {
			i++
		}
	}

	exec.WaitForCompletion()
	exec.Stop()

	executed := counter.Load()
	flushed := cq.GetStats().Dropped
	if executed+int64(flushed) != total {
		t.Errorf("Commands lost: %d executed + %d dropped != %d", executed, flushed, total)
	}
}
