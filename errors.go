package cmdq

import (
	"errors"
	"fmt"
)

var (
	// Pre-allocated common errors
	ErrInvalidCapacity    = errors.New("capacity must be a power of two")
	ErrQueueFull          = errors.New("command queue is full")
	ErrNilCommand         = errors.New("command is nil")
	ErrNilContext         = errors.New("execution context is nil")
	ErrExecutorNotRunning = errors.New("executor is not running")
	ErrNilFactory         = errors.New("pool factory is nil")
	ErrDoubleRelease      = errors.New("object released to an already-full pool")
)

// CommandError represents an error that occurred while executing a command
type CommandError struct {
	Op          string // Operation that failed
	CommandName string // Name of the command that failed
	FrameID     uint64 // Frame the command was submitted in
	Err         error  // Underlying error
}

// newCommandError creates a new CommandError
func newCommandError(op, commandName string, frameID uint64, err error) *CommandError {
	return &CommandError{
		Op:          op,
		CommandName: commandName,
		FrameID:     frameID,
		Err:         err,
	}
}

// Error returns the error message
func (e *CommandError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cmdq.%s: command '%s' failed", e.Op, e.CommandName)
	}
	return fmt.Sprintf("cmdq.%s: %v [command=%s frame=%d]", e.Op, e.Err, e.CommandName, e.FrameID)
}

// Unwrap returns the underlying error
func (e *CommandError) Unwrap() error {
	return e.Err
}
