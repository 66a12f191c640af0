//go:build !windows

package processstate

import (
	"os"
	"syscall"

	"github.com/mwonya/entrypoint/pkg/errors"
)

// IsProcessRunning reports whether pid names a live process.
// EPERM counts as running: the process exists but belongs to someone else.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("PID must be positive", nil).WithContext("pid", pid)
	}

	// FindProcess always succeeds on Unix; signal 0 does the actual probing.
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, errors.NewProcessError("failed to find process", err).WithContext("pid", pid)
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err == os.ErrProcessDone {
		return false, nil
	}
	errno, ok := err.(syscall.Errno)
	if !ok {
		return false, errors.NewProcessError("failed to signal process", err).WithContext("pid", pid)
	}
	switch errno {
	case syscall.ESRCH:
		return false, nil
	case syscall.EPERM:
		return true, nil
	}
	return false, errors.NewProcessError("failed to signal process", err).WithContext("pid", pid)
}
