//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes configures Unix-specific process attributes
func setupProcessAttributes(cmd *exec.Cmd) {
	// On Unix, create a new process group that we can signal as a whole,
	// so cancelling a step also stops the interpreter's children
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	cmd.Cancel = func() error {
		return SendTerminationSignal(cmd.Process.Pid)
	}
}

// SendTerminationSignal sends SIGTERM to the process group on Unix systems
func SendTerminationSignal(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
