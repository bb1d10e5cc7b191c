// Package tactile runs external programs (compilers, disassemblers, shell
// post-processors) on the host with a wall-clock timeout and independent
// byte caps on stdout and stderr. A process that exceeds either limit is
// killed together with its children; the caller still receives a result
// describing what happened.
package tactile

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is the cancellation cause when the wall-clock limit expires.
	ErrTimeout = errors.New("processing time exceeded")
	// ErrOutputLimit is the cancellation cause when a stream exceeds its cap.
	ErrOutputLimit = errors.New("output limit exceeded")
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "g++", "objdump", "sh").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format).
	// These are appended to the executor's allowed host environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Limits specifies resource constraints for execution.
	Limits *ResourceLimits `json:"limits,omitempty"`

	// RequestID links the execution to a compile job (for audit).
	RequestID string `json:"request_id,omitempty"`

	// Tags are arbitrary key-value pairs for categorization and audit.
	Tags map[string]string `json:"tags,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	result := c.Binary
	for _, arg := range c.Arguments {
		result += " " + arg
	}
	return result
}

// ResourceLimits defines constraints on command execution.
type ResourceLimits struct {
	// TimeoutMs is the maximum execution time in milliseconds.
	// Zero means use the executor's default timeout.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// MaxStdoutBytes caps captured stdout. Zero means the executor default.
	MaxStdoutBytes int64 `json:"max_stdout_bytes,omitempty"`

	// MaxStderrBytes caps captured stderr. Zero means the executor default.
	MaxStderrBytes int64 `json:"max_stderr_bytes,omitempty"`
}

// KillReason says why a process was terminated early.
type KillReason string

const (
	KillNone        KillReason = ""
	KillTimeout     KillReason = "timeout"
	KillOutputLimit KillReason = "output_limit"
	KillCanceled    KillReason = "canceled"
)

// ExecutionResult is the outcome of a command that was started.
// Failing to start returns an error instead.
type ExecutionResult struct {
	// ExitCode is the command's exit code (-1 if it was killed by a signal).
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output, truncated at its cap.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error, truncated at its cap.
	Stderr string `json:"stderr"`

	// StdoutTruncated and StderrTruncated report which stream hit its cap.
	StdoutTruncated bool `json:"stdout_truncated"`
	StderrTruncated bool `json:"stderr_truncated"`

	// Killed indicates the command was forcibly terminated.
	Killed bool `json:"killed"`

	// KillReason explains why the command was killed.
	KillReason KillReason `json:"kill_reason,omitempty"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when execution completed.
	FinishedAt time.Time `json:"finished_at"`

	// ResourceUsage contains resource consumption metrics (if available).
	ResourceUsage *ResourceUsage `json:"resource_usage,omitempty"`
}

// TimedOut reports whether the wall-clock limit killed the command.
func (r *ExecutionResult) TimedOut() bool {
	return r.Killed && r.KillReason == KillTimeout
}

// Truncated reports whether either stream hit its cap.
func (r *ExecutionResult) Truncated() bool {
	return r.StdoutTruncated || r.StderrTruncated
}

// ResourceUsage contains metrics about resource consumption.
type ResourceUsage struct {
	// UserTimeMs is user-mode CPU time in milliseconds.
	UserTimeMs int64 `json:"user_time_ms"`

	// SystemTimeMs is kernel-mode CPU time in milliseconds.
	SystemTimeMs int64 `json:"system_time_ms"`
}

// TotalCPUTimeMs returns total CPU time (user + system).
func (r *ResourceUsage) TotalCPUTimeMs() int64 {
	return r.UserTimeMs + r.SystemTimeMs
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "execution_start"
	AuditEventComplete AuditEventType = "execution_complete"
	AuditEventKilled   AuditEventType = "execution_killed"
	AuditEventError    AuditEventType = "execution_error"
)

// AuditEvent is emitted around every execution.
type AuditEvent struct {
	Type         AuditEventType   `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Command      Command          `json:"command"`
	Result       *ExecutionResult `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	ExecutorName string           `json:"executor_name"`
}

// ExecutorConfig holds executor defaults.
type ExecutorConfig struct {
	// DefaultTimeout applies when a command has no TimeoutMs.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxOutputBytes is the per-stream cap when a command sets none.
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// AllowedEnvironment lists host variables passed through to children.
	AllowedEnvironment []string `json:"allowed_environment"`

	// EnableResourceUsage collects rusage after each run.
	EnableResourceUsage bool `json:"enable_resource_usage"`
}

// DefaultExecutorConfig returns sensible defaults for compiler processes.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeout: 7500 * time.Millisecond,
		MaxOutputBytes: 5000,
		AllowedEnvironment: []string{
			"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "TEMP", "TMP",
			"SYSTEMROOT", "WINEPREFIX",
		},
		EnableResourceUsage: true,
	}
}

// Merge fills unset limits on cmd from the config defaults.
func (c ExecutorConfig) Merge(cmd Command) Command {
	limits := ResourceLimits{}
	if cmd.Limits != nil {
		limits = *cmd.Limits
	}
	if limits.TimeoutMs <= 0 {
		limits.TimeoutMs = c.DefaultTimeout.Milliseconds()
	}
	if limits.MaxStdoutBytes <= 0 {
		limits.MaxStdoutBytes = c.MaxOutputBytes
	}
	if limits.MaxStderrBytes <= 0 {
		limits.MaxStderrBytes = c.MaxOutputBytes
	}
	cmd.Limits = &limits
	return cmd
}
