package cmdq

import (
	"fmt"
	"runtime"
	"time"
)

// QueueConfig configures a CommandQueue and its executor. Zero values are
// filled in by DefaultQueueConfig; capacity is the one setting that is
// validated hard, because a non-power-of-two capacity breaks the bitmask
// indexing of every queue in this package.
type QueueConfig struct {
	// Capacity is the fixed size of the backing queue. Must be a power of
	// two.
	Capacity int
	// MaxCommandsPerFrame caps how many commands Process drains per call
	MaxCommandsPerFrame int
	// MaxExecutionTimePerFrame is the default budget for
	// ProcessWithTimeLimit when the caller passes no explicit budget
	MaxExecutionTimePerFrame time.Duration
	// EnableBatching groups same-type commands adjacently within a
	// priority tier before execution
	EnableBatching bool
	// EnablePrioritySorting stable-sorts drained batches by descending
	// priority, arrival order breaking ties
	EnablePrioritySorting bool
	// EnableStatistics turns on the per-command timing aggregates; the
	// submit/execute/drop counters are always maintained
	EnableStatistics bool
	// EnableDebugMarkers assigns envelope ids and activates debug-group
	// callbacks
	EnableDebugMarkers bool
	// WorkerCount is the fixed worker pool size for CommandExecutor
	WorkerCount int
}

// DefaultQueueConfig returns the configuration used when callers pass the
// zero value.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity:                 4096,
		MaxCommandsPerFrame:      1024,
		MaxExecutionTimePerFrame: 8 * time.Millisecond,
		EnableBatching:           true,
		EnablePrioritySorting:    true,
		EnableStatistics:         true,
		EnableDebugMarkers:       false,
		WorkerCount:              runtime.NumCPU(),
	}
}

// withDefaults fills unset fields from DefaultQueueConfig
func (c QueueConfig) withDefaults() QueueConfig {
	def := DefaultQueueConfig()
	if c.Capacity == 0 {
		c.Capacity = def.Capacity
	}
	if c.MaxCommandsPerFrame <= 0 {
		c.MaxCommandsPerFrame = def.MaxCommandsPerFrame
	}
	if c.MaxExecutionTimePerFrame <= 0 {
		c.MaxExecutionTimePerFrame = def.MaxExecutionTimePerFrame
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = def.WorkerCount
	}
	return c
}

// Validate reports configuration defects. A non-power-of-two capacity is
// fatal: the queue must not come up in an invalid state.
func (c QueueConfig) Validate() error {
	if c.Capacity <= 0 || c.Capacity&(c.Capacity-1) != 0 {
		return fmt.Errorf("queue capacity %d: %w", c.Capacity, ErrInvalidCapacity)
	}
	if c.MaxCommandsPerFrame <= 0 {
		return fmt.Errorf("maxCommandsPerFrame must be positive, got %d", c.MaxCommandsPerFrame)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("workerCount must be positive, got %d", c.WorkerCount)
	}
	return nil
}
