//go:build windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// getProcessResourceUsage is not available on Windows.
func getProcessResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	return nil
}

// setupProcessGroup starts the command in a new process group.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessGroup terminates the process. Windows has no group kill signal,
// so children that detached survive.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
