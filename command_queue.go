package cmdq

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DebugCallback receives human-readable messages on debug-group push/pop
// and on command execution errors. Intended for log subscribers.
type DebugCallback func(message string)

// CommandQueue holds submitted command envelopes in a lock-free MPMC
// queue and layers priority sorting, type-based batching, frame-scoped
// statistics, debug-group tracking and time-bounded draining on top.
//
// Any goroutine may submit; any goroutine may drain. Submission is
// non-blocking: a full queue rejects the command, counts a drop and
// leaves retry policy to the caller.
type CommandQueue struct {
	cfg   QueueConfig
	queue *BoundedConcurrentQueue[*CommandEnvelope]
	// envelopes recycles CommandEnvelope allocations through the
	// lock-free object pool; exhaustion falls back to the allocator
	envelopes *ObjectPool[*CommandEnvelope]
	stats     *queueStats
	logger    *zerolog.Logger

	frameID    atomic.Uint64
	frameStart atomic.Int64 // UnixNano of BeginFrame, 0 when no frame open
	submitSeq  atomic.Uint64

	// drainBuffers recycles the scratch slices Process* drains into, so
	// concurrent executor workers don't contend on a shared buffer
	drainBuffers sync.Pool

	debugMu       sync.Mutex
	debugGroups   []string
	debugCallback atomic.Pointer[DebugCallback]
}

// NewCommandQueue creates a command queue from the given configuration.
// Zero-valued config fields are defaulted; an invalid capacity is a hard
// construction failure, the queue never comes up in a broken state.
func NewCommandQueue(cfg QueueConfig, logger *zerolog.Logger) (*CommandQueue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	queue, err := NewBoundedConcurrentQueue[*CommandEnvelope](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	envelopes, err := NewObjectPool(cfg.Capacity, func() *CommandEnvelope {
		return &CommandEnvelope{}
	})
	if err != nil {
		return nil, err
	}

	cq := &CommandQueue{
		cfg:       cfg,
		queue:     queue,
		envelopes: envelopes,
		stats:     newQueueStats(),
		logger:    logger,
	}
	cq.drainBuffers.New = func() interface{} {
		buf := make([]*CommandEnvelope, 0, cfg.MaxCommandsPerFrame)
		return &buf
	}
	return cq, nil
}

// Submit enqueues a command at normal priority under the current frame id.
// Returns false (and counts a drop) when the queue is full.
func (cq *CommandQueue) Submit(cmd Command) bool {
	return cq.SubmitWithPriority(cmd, PriorityNormal)
}

// SubmitWithPriority enqueues a command at an explicit priority.
func (cq *CommandQueue) SubmitWithPriority(cmd Command, priority Priority) bool {
	if cmd == nil {
		cq.logger.Warn().Msg("[cmdq|submit] nil command rejected")
		return false
	}

	frame := cq.frameID.Load()
	env := cq.envelopes.Acquire()
	env.Command = cmd
	env.Priority = priority
	env.SubmitTime = time.Now()
	env.FrameID = frame
	env.Seq = cq.submitSeq.Add(1)
	if cq.cfg.EnableDebugMarkers {
		env.ID = uuid.New()
	}

	if !cq.queue.TryPush(env) {
		cq.recycle(env)
		cq.stats.dropped.Add(1)
		cq.logger.Warn().
			Err(ErrQueueFull).
			Str("command", cmd.GetName()).
			Str("priority", priority.String()).
			Msg("[cmdq|submit] command dropped")
		return false
	}

	cq.stats.submitted.Add(1)
	cq.stats.recordQueueSize(cq.queue.Len())
	if level := cq.logger.GetLevel(); level <= zerolog.DebugLevel {
		cq.logger.Debug().
			Str("command", cmd.GetName()).
			Str("priority", priority.String()).
			Uint64("frame", frame).
			Msg("[cmdq|submit] command queued")
	}
	return true
}

// ExecuteImmediate bypasses the queue and runs the command synchronously
// on the calling goroutine. Failures are reported through the returned
// error and the debug callback; panics inside Execute are contained.
func (cq *CommandQueue) ExecuteImmediate(cmd Command, ctx ExecutionContext) error {
	if cmd == nil {
		cq.logger.Warn().Msg("[cmdq|immediate] nil command rejected")
		return ErrNilCommand
	}
	if ctx == nil {
		cq.logger.Warn().Str("command", cmd.GetName()).Msg("[cmdq|immediate] nil context rejected")
		return ErrNilContext
	}
	return cq.runCommand(cmd, ctx, cq.frameID.Load(), uuid.Nil)
}

// Process drains and executes up to MaxCommandsPerFrame commands against
// the given context, returning the number executed.
func (cq *CommandQueue) Process(ctx ExecutionContext) int {
	return cq.ProcessBatch(ctx, cq.cfg.MaxCommandsPerFrame)
}

// ProcessBatch is Process with an explicit drain cap overriding the
// configured per-frame maximum.
func (cq *CommandQueue) ProcessBatch(ctx ExecutionContext, maxCommands int) int {
	if ctx == nil {
		cq.logger.Warn().Msg("[cmdq|process] nil context, nothing executed")
		return 0
	}
	if maxCommands <= 0 {
		maxCommands = cq.cfg.MaxCommandsPerFrame
	}

	bufp := cq.drainBuffers.Get().(*[]*CommandEnvelope)
	batch := (*bufp)[:0]
	for len(batch) < maxCommands {
		env, ok := cq.queue.TryPop()
		if !ok {
			break
		}
		batch = append(batch, env)
	}
	if len(batch) == 0 {
		*bufp = batch
		cq.drainBuffers.Put(bufp)
		return 0
	}

	cq.orderBatch(batch)

	executed := 0
	for i, env := range batch {
		batch[i] = nil
		if !cq.envelopeOK(env, "process") {
			continue
		}
		cq.runCommand(env.Command, ctx, env.FrameID, env.ID)
		cq.recycle(env)
		executed++
	}

	*bufp = batch[:0]
	cq.drainBuffers.Put(bufp)
	return executed
}

// ProcessWithTimeLimit drains and executes one command at a time,
// checking elapsed wall-clock time before popping each new command. The
// last command already started always runs to completion; there is no
// mid-command cancellation. A non-positive budget uses the configured
// MaxExecutionTimePerFrame.
func (cq *CommandQueue) ProcessWithTimeLimit(ctx ExecutionContext, budget time.Duration) int {
	if ctx == nil {
		cq.logger.Warn().Msg("[cmdq|process] nil context, nothing executed")
		return 0
	}
	if budget <= 0 {
		budget = cq.cfg.MaxExecutionTimePerFrame
	}

	start := time.Now()
	executed := 0
	for time.Since(start) < budget {
		env, ok := cq.queue.TryPop()
		if !ok {
			break
		}
		if !cq.envelopeOK(env, "process") {
			continue
		}
		cq.runCommand(env.Command, ctx, env.FrameID, env.ID)
		cq.recycle(env)
		executed++
	}
	return executed
}

// BeginFrame opens a new frame: bumps the frame id and starts the frame
// timer. Commands submitted from here until EndFrame carry the new id.
func (cq *CommandQueue) BeginFrame() {
	id := cq.frameID.Add(1)
	cq.frameStart.Store(time.Now().UnixNano())
	if cq.cfg.EnableDebugMarkers {
		cq.emitDebug(fmt.Sprintf("frame %d begin", id))
	}
}

// EndFrame closes the current frame and folds its duration into the
// min/max/average frame-time aggregates. A second EndFrame without an
// intervening BeginFrame is ignored.
func (cq *CommandQueue) EndFrame() {
	started := cq.frameStart.Swap(0)
	if started == 0 {
		return
	}
	elapsed := time.Duration(time.Now().UnixNano() - started)
	if cq.cfg.EnableStatistics {
		cq.stats.recordFrame(elapsed)
	}
	if cq.cfg.EnableDebugMarkers {
		cq.emitDebug(fmt.Sprintf("frame %d end (%s)", cq.frameID.Load(), elapsed))
	}
}

// Flush drains the queue without executing anything. Used at shutdown:
// commands needing a context cannot run here, so they are reported and
// counted as dropped. Returns the number discarded.
func (cq *CommandQueue) Flush() int {
	flushed := 0
	for {
		env, ok := cq.queue.TryPop()
		if !ok {
			break
		}
		if env != nil && env.Command != nil {
			cq.logger.Warn().
				Str("command", env.Command.GetName()).
				Uint64("frame", env.FrameID).
				Msg("[cmdq|flush] unexecuted command dropped")
		}
		if env != nil {
			cq.recycle(env)
		}
		flushed++
	}
	if flushed > 0 {
		cq.stats.dropped.Add(uint64(flushed))
		cq.emitDebug(fmt.Sprintf("flush dropped %d commands", flushed))
	}
	return flushed
}

// PushDebugGroup opens a named debug group. No-op unless debug markers
// are enabled.
func (cq *CommandQueue) PushDebugGroup(name string) {
	if !cq.cfg.EnableDebugMarkers {
		return
	}
	cq.debugMu.Lock()
	cq.debugGroups = append(cq.debugGroups, name)
	cq.debugMu.Unlock()
	cq.emitDebug("begin group: " + name)
}

// PopDebugGroup closes the innermost debug group. An unbalanced pop is a
// caller defect and is logged rather than panicking.
func (cq *CommandQueue) PopDebugGroup() {
	if !cq.cfg.EnableDebugMarkers {
		return
	}
	cq.debugMu.Lock()
	n := len(cq.debugGroups)
	if n == 0 {
		cq.debugMu.Unlock()
		cq.logger.Warn().Msg("[cmdq|debug] unbalanced debug group pop")
		return
	}
	name := cq.debugGroups[n-1]
	cq.debugGroups = cq.debugGroups[:n-1]
	cq.debugMu.Unlock()
	cq.emitDebug("end group: " + name)
}

// DebugGroupDepth returns the current debug group nesting depth.
func (cq *CommandQueue) DebugGroupDepth() int {
	cq.debugMu.Lock()
	defer cq.debugMu.Unlock()
	return len(cq.debugGroups)
}

// SetDebugCallback installs the callback invoked on debug-group push/pop
// and on command execution errors. Pass nil to remove it.
func (cq *CommandQueue) SetDebugCallback(fn DebugCallback) {
	if fn == nil {
		cq.debugCallback.Store(nil)
		return
	}
	cq.debugCallback.Store(&fn)
}

// GetStats returns a snapshot of the queue statistics. Individual fields
// are internally consistent; the snapshot as a whole may be torn across
// fields under concurrent updates.
func (cq *CommandQueue) GetStats() QueueStats {
	return cq.stats.snapshot(cq.queue.Len())
}

// ResetStats zeroes all counters and timing aggregates.
func (cq *CommandQueue) ResetStats() {
	cq.stats.reset()
}

// Len returns the number of pending commands.
func (cq *CommandQueue) Len() int {
	return cq.queue.Len()
}

// Cap returns the fixed queue capacity.
func (cq *CommandQueue) Cap() int {
	return cq.queue.Cap()
}

// IsEmpty reports whether no commands are pending.
func (cq *CommandQueue) IsEmpty() bool {
	return cq.queue.IsEmpty()
}

// FrameID returns the current frame id.
func (cq *CommandQueue) FrameID() uint64 {
	return cq.frameID.Load()
}

// orderBatch applies priority ordering and type grouping to a drained
// batch. The submission sequence number is the final tie-break, so ties
// within a priority tier resolve to submission order even when
// concurrent submitters were popped out of order. Grouping keys on the
// command's type tag; non-batchable commands follow the grouped ones
// within their tier, also in submission order.
func (cq *CommandQueue) orderBatch(batch []*CommandEnvelope) {
	sorting := cq.cfg.EnablePrioritySorting
	batching := cq.cfg.EnableBatching
	if !sorting && !batching {
		return
	}

	sort.SliceStable(batch, func(i, j int) bool {
		a, b := batch[i], batch[j]
		if a == nil || a.Command == nil || b == nil || b.Command == nil {
			return false
		}
		if sorting && a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if batching {
			ab, bb := a.Command.CanBatch(), b.Command.CanBatch()
			if ab != bb {
				return ab
			}
			if ab && a.Command.GetType() != b.Command.GetType() {
				return a.Command.GetType() < b.Command.GetType()
			}
		}
		return a.Seq < b.Seq
	})
}

// envelopeOK filters defective envelopes out of the drain loop. A nil
// envelope or nil command is logged and skipped, never allowed to crash
// the drain.
func (cq *CommandQueue) envelopeOK(env *CommandEnvelope, op string) bool {
	if env == nil {
		cq.logger.Warn().Msgf("[cmdq|%s] nil envelope skipped", op)
		return false
	}
	if env.Command == nil {
		cq.logger.Warn().Uint64("frame", env.FrameID).Msgf("[cmdq|%s] envelope with nil command skipped", op)
		cq.recycle(env)
		return false
	}
	return true
}

// runCommand executes a single command, containing panics and folding the
// result into statistics, logs and the debug callback. A non-nil envelope
// id (assigned under debug markers) tags the failure log and the callback
// message so a reported error can be traced back to its submission.
func (cq *CommandQueue) runCommand(cmd Command, ctx ExecutionContext, frameID uint64, id uuid.UUID) error {
	start := time.Now()
	err := cq.safeExecute(cmd, ctx, frameID)
	elapsed := time.Since(start)

	if cq.cfg.EnableStatistics {
		cq.stats.recordExec(elapsed)
	} else {
		cq.stats.executed.Add(1)
	}

	if err != nil {
		cq.stats.failed.Add(1)
		ev := cq.logger.Error().
			Err(err).
			Str("command", cmd.GetName()).
			Uint64("frame", frameID)
		if id != uuid.Nil {
			ev = ev.Str("envelope", id.String())
		}
		ev.Msg("[cmdq|execute] command failed")
		msg := "command error: " + cmd.GetName() + ": " + err.Error()
		if id != uuid.Nil {
			msg = "command error: " + cmd.GetName() + " [" + id.String() + "]: " + err.Error()
		}
		cq.emitDebug(msg)
		return err
	}

	if level := cq.logger.GetLevel(); level <= zerolog.DebugLevel {
		cq.logger.Debug().
			Str("command", cmd.GetName()).
			Dur("took", elapsed).
			Msg("[cmdq|execute] command completed")
	}
	return nil
}

// safeExecute invokes Execute with a panic boundary. A panicking command
// degrades to a CommandError carrying the stack, never a crashed drain.
func (cq *CommandQueue) safeExecute(cmd Command, ctx ExecutionContext, frameID uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newCommandError("execute", cmd.GetName(), frameID,
				fmt.Errorf("panic: %v\n%s", r, string(debug.Stack())))
		}
	}()
	if execErr := cmd.Execute(ctx); execErr != nil {
		err = newCommandError("execute", cmd.GetName(), frameID, execErr)
	}
	return err
}

// recycle resets an envelope and returns it to the pool. The pool runs
// allocate-on-demand, so envelopes created past capacity are simply left
// to the garbage collector when the free list is full.
func (cq *CommandQueue) recycle(env *CommandEnvelope) {
	env.reset()
	if err := cq.envelopes.Release(env); err != nil {
		if level := cq.logger.GetLevel(); level <= zerolog.DebugLevel {
			cq.logger.Debug().Msg("[cmdq|pool] free list full, surplus envelope discarded")
		}
	}
}

// emitDebug invokes the debug callback when one is installed.
func (cq *CommandQueue) emitDebug(message string) {
	if fn := cq.debugCallback.Load(); fn != nil {
		(*fn)(message)
	}
}
