package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"asmexplorer/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
// Each command runs in its own process group so that a kill reaches any
// children it spawned (cc1, as, ld, wine helpers).
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("Creating DirectExecutor with config: timeout=%s, maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	return &DirectExecutor{
		config: config,
	}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

// emitAudit emits an audit event if a callback is registered.
func (e *DirectExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		event.Timestamp = time.Now()
		event.ExecutorName = "direct"
		callback(event)
	}
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	cmd = e.config.Merge(cmd)
	timeout := time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond

	logging.TactileDebug("Executing: %s (dir=%s, timeout=%s, stdout cap=%d, stderr cap=%d)",
		cmd.CommandString(), cmd.WorkingDirectory, timeout, cmd.Limits.MaxStdoutBytes, cmd.Limits.MaxStderrBytes)

	timeoutCtx, cancelTimeout := context.WithTimeoutCause(ctx, timeout, ErrTimeout)
	defer cancelTimeout()
	execCtx, cancel := context.WithCancelCause(timeoutCtx)
	defer cancel(nil)

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = time.Second

	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	stdoutPipe, err := execCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := execCmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	overflow := func() { cancel(ErrOutputLimit) }
	stdout := &cappedBuffer{max: cmd.Limits.MaxStdoutBytes, onOverflow: overflow}
	stderr := &cappedBuffer{max: cmd.Limits.MaxStderrBytes, onOverflow: overflow}

	e.emitAudit(AuditEvent{Type: AuditEventStart, Command: cmd})

	result := &ExecutionResult{ExitCode: -1, StartedAt: time.Now()}
	if err := execCmd.Start(); err != nil {
		logging.TactileError("Failed to start %s: %v", cmd.Binary, err)
		e.emitAudit(AuditEvent{Type: AuditEventError, Command: cmd, Error: err.Error()})
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Binary, err)
	}

	var pumps errgroup.Group
	pumps.Go(func() error { return drain(stdout, stdoutPipe) })
	pumps.Go(func() error { return drain(stderr, stderrPipe) })
	if err := pumps.Wait(); err != nil {
		logging.TactileDebug("Output pump for %s ended with: %v", cmd.Binary, err)
	}
	waitErr := execCmd.Wait()

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.StdoutTruncated = stdout.truncated
	result.StderrTruncated = stderr.truncated
	if execCmd.ProcessState != nil {
		result.ExitCode = execCmd.ProcessState.ExitCode()
	}

	if waitErr != nil {
		if cause := context.Cause(execCtx); cause != nil {
			result.Killed = true
			result.ExitCode = -1
			switch {
			case errors.Is(cause, ErrTimeout):
				result.KillReason = KillTimeout
			case errors.Is(cause, ErrOutputLimit):
				result.KillReason = KillOutputLimit
			default:
				result.KillReason = KillCanceled
			}
			logging.TactileWarn("Command killed (%s): %s after %s", result.KillReason, cmd.Binary, result.Duration)
			e.emitAudit(AuditEvent{Type: AuditEventKilled, Command: cmd, Result: result})
		}
	}

	if e.config.EnableResourceUsage {
		result.ResourceUsage = getProcessResourceUsage(execCmd)
	}

	e.emitAudit(AuditEvent{Type: AuditEventComplete, Command: cmd, Result: result})

	logging.TactileDebug("Command completed: %s -> exit=%d, duration=%s, stdout=%d bytes, stderr=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Stdout), len(result.Stderr))

	return result, nil
}

// buildEnvironment creates the environment variable list.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))

	for _, key := range e.config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}

	return append(env, cmdEnv...)
}

// drain copies r into w. Errors from a pipe closed by the kill are expected.
func drain(w io.Writer, r io.Reader) error {
	_, err := io.Copy(w, r)
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// cappedBuffer keeps at most max bytes. The first write past the cap marks
// the buffer truncated and fires onOverflow; later writes are discarded but
// reported as written so the pipe keeps draining until the process dies.
type cappedBuffer struct {
	buf        bytes.Buffer
	max        int64
	truncated  bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	remaining := b.max - int64(b.buf.Len())
	if int64(n) <= remaining {
		return b.buf.Write(p)
	}

	if remaining > 0 {
		b.buf.Write(p[:remaining])
	}
	if !b.truncated {
		b.truncated = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
	}
	return n, nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
