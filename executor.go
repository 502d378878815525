package cmdq

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// idle sleep bounds for workers that found no work
const (
	executorIdleSleepMin = 50 * time.Microsecond
	executorIdleSleepMax = 2 * time.Millisecond
)

// CommandExecutor owns a fixed pool of worker goroutines that
// continuously drain a shared CommandQueue and execute each command
// against the context supplied at Start. No work stealing: every worker
// drains the same MPMC queue, which already load-balances by
// construction.
//
// Shutdown is cooperative: Stop sets a flag, closes the stop channel and
// joins the workers at their next poll iteration. In-flight commands run
// to completion.
type CommandExecutor struct {
	queue     *CommandQueue
	workers   int
	batchSize int
	logger    *zerolog.Logger

	ctx     ExecutionContext
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool

	// Statistics
	busyWorkers     atomic.Int32
	batchesDrained  atomic.Int64
	commandsHandled atomic.Int64
}

// ExecutorStats contains statistics about a command executor.
type ExecutorStats struct {
	Workers         int
	BusyWorkers     int32
	BatchesDrained  int64
	CommandsHandled int64
	QueueDepth      int
}

// NewCommandExecutor creates an executor for the given queue. Worker
// count and per-drain batch size come from the queue configuration.
func NewCommandExecutor(queue *CommandQueue, logger *zerolog.Logger) *CommandExecutor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CommandExecutor{
		queue:     queue,
		workers:   queue.cfg.WorkerCount,
		batchSize: queue.cfg.MaxCommandsPerFrame,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start spawns the worker pool. The context is borrowed for the lifetime
// of the executor and handed to every command. Calling Start twice, or
// after Stop, is a no-op.
func (e *CommandExecutor) Start(ctx ExecutionContext) error {
	if ctx == nil {
		return ErrNilContext
	}
	if e.stopped.Load() {
		return ErrExecutorNotRunning
	}
	if !e.started.CompareAndSwap(false, true) {
		return nil // already running
	}

	e.ctx = ctx
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.runWorker(i)
	}
	e.logger.Info().Int("workers", e.workers).Msg("[cmdq|executor] started")
	return nil
}

// Stop signals all workers to exit and joins them. Idempotent, and safe
// to call even when Start was never called.
func (e *CommandExecutor) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return // already stopped
	}
	close(e.stopCh)
	if e.started.Load() {
		e.wg.Wait()
	}
	e.logger.Info().
		Int64("commands", e.commandsHandled.Load()).
		Msg("[cmdq|executor] stopped")
}

// IsRunning reports whether workers are currently draining.
func (e *CommandExecutor) IsRunning() bool {
	return e.started.Load() && !e.stopped.Load()
}

// SubmitCommands forwards a batch of commands to the queue at their own
// declared priority, returning how many were accepted. Rejected commands
// are counted as drops by the queue.
func (e *CommandExecutor) SubmitCommands(commands []Command) int {
	accepted := 0
	for _, cmd := range commands {
		if cmd == nil {
			e.logger.Warn().Msg("[cmdq|executor] nil command in batch skipped")
			continue
		}
		if e.queue.SubmitWithPriority(cmd, cmd.GetPriority()) {
			accepted++
		}
	}
	return accepted
}

// WaitForCompletion drains the queue synchronously on the calling
// goroutine. While the executor is running this executes the backlog
// alongside the workers; on a stopped or never-started executor it
// flushes, reporting the remainder as dropped.
func (e *CommandExecutor) WaitForCompletion() {
	if e.IsRunning() {
		for !e.queue.IsEmpty() {
			if e.queue.ProcessBatch(e.ctx, e.batchSize) == 0 {
				// Workers hold the remaining commands; give them a beat
				time.Sleep(executorIdleSleepMin)
			}
		}
		return
	}
	e.queue.Flush()
}

// Stats returns a snapshot of executor counters.
func (e *CommandExecutor) Stats() ExecutorStats {
	return ExecutorStats{
		Workers:         e.workers,
		BusyWorkers:     e.busyWorkers.Load(),
		BatchesDrained:  e.batchesDrained.Load(),
		CommandsHandled: e.commandsHandled.Load(),
		QueueDepth:      e.queue.Len(),
	}
}

// runWorker is the drain loop. Each worker repeatedly takes a batch from
// the shared queue; an empty poll escalates the idle sleep up to
// executorIdleSleepMax so quiet executors don't spin a core.
func (e *CommandExecutor) runWorker(id int) {
	defer e.wg.Done()

	idleSleep := executorIdleSleepMin
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		e.busyWorkers.Add(1)
		n := e.queue.ProcessBatch(e.ctx, e.batchSize)
		e.busyWorkers.Add(-1)

		if n > 0 {
			e.batchesDrained.Add(1)
			e.commandsHandled.Add(int64(n))
			idleSleep = executorIdleSleepMin
			continue
		}

		select {
		case <-e.stopCh:
			return
		case <-time.After(idleSleep):
		}
		idleSleep *= 2
		if idleSleep > executorIdleSleepMax {
			idleSleep = executorIdleSleepMax
		}
	}
}
