package cmdq

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders commands within a frame. Higher values drain first.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns a human-readable priority name for logs
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// CommandType is the closed set of command kinds. Batching groups on this
// tag, never on command names.
type CommandType uint8

const (
	CommandTypeClear CommandType = iota
	CommandTypeDraw
	CommandTypeCopy
	CommandTypeCompute
	CommandTypeState
	CommandTypeDebug
	CommandTypeCustom
)

// String returns a human-readable type name for logs
func (t CommandType) String() string {
	switch t {
	case CommandTypeClear:
		return "clear"
	case CommandTypeDraw:
		return "draw"
	case CommandTypeCopy:
		return "copy"
	case CommandTypeCompute:
		return "compute"
	case CommandTypeState:
		return "state"
	case CommandTypeDebug:
		return "debug"
	case CommandTypeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ExecutionContext is the backend context commands execute against (a
// graphics device, an IO session). The queue treats it as opaque and
// borrows it only for the duration of a drain call.
type ExecutionContext interface{}

// Command is the capability set a queued payload must implement.
// A command is immutable once submitted: the queue owns it exclusively
// until it is popped, then the executing goroutine owns it.
type Command interface {
	// Execute runs the command against the given context. Failures are
	// reported through the returned error, never by panicking; panics are
	// still contained at the drain boundary as a defensive measure.
	Execute(ctx ExecutionContext) error
	GetType() CommandType
	GetPriority() Priority
	// GetName is used for logs and metrics only
	GetName() string
	CanBatch() bool
	GetEstimatedCost() uint64
}

// CommandEnvelope wraps a submitted command with queue-internal metadata.
// Envelopes are created per-submission and recycled through the queue's
// envelope pool after execution.
type CommandEnvelope struct {
	Command    Command
	Priority   Priority
	SubmitTime time.Time
	FrameID    uint64
	// Seq is the queue-wide submission counter, the tie-break within a
	// priority tier
	Seq uint64
	// ID is only assigned when debug markers are enabled; it tags
	// execution-failure logs and debug-callback error messages
	ID uuid.UUID
}

func (e *CommandEnvelope) reset() {
	e.Command = nil
	e.Priority = PriorityNormal
	e.SubmitTime = time.Time{}
	e.FrameID = 0
	e.Seq = 0
	e.ID = uuid.UUID{}
}

// FuncCommand adapts a plain function to the Command interface for callers
// that don't want to define a command type.
type FuncCommand struct {
	name     string
	kind     CommandType
	priority Priority
	batch    bool
	cost     uint64
	fn       func(ctx ExecutionContext) error
}

// NewFuncCommand creates a FuncCommand with normal priority and unit cost
func NewFuncCommand(name string, kind CommandType, fn func(ctx ExecutionContext) error) *FuncCommand {
	return &FuncCommand{
		name:     name,
		kind:     kind,
		priority: PriorityNormal,
		batch:    true,
		cost:     1,
		fn:       fn,
	}
}

// WithPriority overrides the command priority and returns the command
func (c *FuncCommand) WithPriority(p Priority) *FuncCommand {
	c.priority = p
	return c
}

// WithCost overrides the estimated cost and returns the command
func (c *FuncCommand) WithCost(cost uint64) *FuncCommand {
	c.cost = cost
	return c
}

// WithBatchable overrides whether the command can be grouped with
// same-type commands and returns the command
func (c *FuncCommand) WithBatchable(b bool) *FuncCommand {
	c.batch = b
	return c
}

func (c *FuncCommand) Execute(ctx ExecutionContext) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx)
}

func (c *FuncCommand) GetType() CommandType    { return c.kind }
func (c *FuncCommand) GetPriority() Priority   { return c.priority }
func (c *FuncCommand) GetName() string         { return c.name }
func (c *FuncCommand) CanBatch() bool          { return c.batch }
func (c *FuncCommand) GetEstimatedCost() uint64 { return c.cost }
