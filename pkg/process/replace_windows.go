//go:build windows

package process

import (
	stdErrors "errors"
	"os"
	"os/exec"
)

var exitFunc = os.Exit

func replaceProcess(path string, argv []string, env []string) error {
	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !stdErrors.As(err, &exitErr) {
		return err
	}

	exitFunc(cmd.ProcessState.ExitCode())
	return nil
}
