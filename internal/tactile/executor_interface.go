package tactile

import (
	"context"
)

// Executor is the interface for command execution.
type Executor interface {
	// Execute runs a command to completion. A command that could not be
	// started returns an error; everything else, including timeouts and
	// non-zero exits, is reported in the result.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
}

// AuditedExecutor wraps an executor to provide audit event generation.
type AuditedExecutor interface {
	Executor

	// SetAuditCallback sets the callback for audit events.
	SetAuditCallback(callback func(AuditEvent))
}
