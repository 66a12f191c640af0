//go:build !windows

package process

import (
	"syscall"
)

// replaceProcess execs path in place of the current process image.
// The PID, open descriptors without close-on-exec and signal dispositions
// set to ignore carry over; Go's own handlers are reset by the kernel.
func replaceProcess(path string, argv []string, env []string) error {
	return syscall.Exec(path, argv, env)
}
