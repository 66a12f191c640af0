package process

import (
	"context"
	stdErrors "errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"
)

type ExecutionConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	Args             []string      `yaml:"args,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	WaitDelay        time.Duration `yaml:"wait_delay,omitempty"`
}

// CommandLine renders the configuration as a single shell-like string for diagnostics.
func (c ExecutionConfig) CommandLine() string {
	return strings.Join(append([]string{c.ExecutablePath}, c.Args...), " ")
}

// Runner runs an external command to completion.
// exitCode is the child's exit status (-1 if it was killed by a signal);
// err is non-nil only when the command could not be started or was cancelled.
type Runner interface {
	Run(ctx context.Context, execution ExecutionConfig) (exitCode int, err error)
}

type commandRunner struct {
	stdout io.Writer
	stderr io.Writer
	logger logging.Logger
}

// NewCommandRunner returns a Runner that streams the child's output to stdout and stderr.
func NewCommandRunner(stdout, stderr io.Writer, logger logging.Logger) Runner {
	return &commandRunner{
		stdout: stdout,
		stderr: stderr,
		logger: logger,
	}
}

func (r *commandRunner) Run(ctx context.Context, execution ExecutionConfig) (int, error) {
	if ctx == nil {
		return -1, errors.NewValidationError("context cannot be nil", nil)
	}

	if err := ValidateExecutionConfig(execution); err != nil {
		r.logger.Errorf("Execution configuration validation failed, command: %s, error: %v", execution.CommandLine(), err)
		return -1, errors.NewValidationError("invalid execution configuration", err)
	}

	path, err := ResolveExecutable(execution.ExecutablePath, execution.WorkingDirectory)
	if err != nil {
		return -1, err
	}

	cmd := exec.CommandContext(ctx, path, execution.Args...)
	cmd.Dir = execution.WorkingDirectory
	cmd.Env = MergeEnvironment(os.Environ(), execution.Environment)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	// Platform-specific setup is handled in execute_windows.go or execute_unix.go
	setupProcessAttributes(cmd)

	// wait after sending the termination signal, before sending the kill signal
	cmd.WaitDelay = execution.WaitDelay

	r.logger.Debugf("Running command, path: '%s', args: %v, working directory: '%s'",
		path, execution.Args, execution.WorkingDirectory)

	if err := cmd.Start(); err != nil {
		return -1, errors.NewProcessError("failed to start the process", err).WithContext("executable_path", path)
	}

	r.logger.Debugf("Command started, PID: %d", cmd.Process.Pid)

	err = cmd.Wait()
	exitCode := cmd.ProcessState.ExitCode()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return exitCode, errors.NewCancelledError("command cancelled", ctxErr).WithContext("executable_path", path)
	}

	var exitErr *exec.ExitError
	if err != nil && !stdErrors.As(err, &exitErr) {
		return exitCode, errors.NewProcessError("failed to wait for the process", err).WithContext("executable_path", path)
	}

	r.logger.Debugf("Command finished, PID: %d, exit code: %d", cmd.Process.Pid, exitCode)

	return exitCode, nil
}

// ResolveExecutable returns an absolute path for path, searching PATH when it has no separator.
// A relative path with a separator is taken relative to workingDirectory when one is set,
// as the program would see it after changing into that directory.
func ResolveExecutable(path string, workingDirectory string) (string, error) {
	if path == "" {
		return "", errors.NewValidationError("executable path is required", nil)
	}

	if !hasPathSeparator(path) {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", errors.NewNotFoundError("executable not found in PATH: "+path, err)
		}
		path = resolved
	} else {
		path = executablePathIn(path, workingDirectory)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewIOError("failed to get absolute path", err).WithContext("executable_path", path)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", errors.NewNotFoundError("executable not found: "+absPath, err)
	}
	if info.IsDir() {
		return "", errors.NewValidationError("executable path is a directory: "+absPath, nil)
	}

	return absPath, nil
}

func hasPathSeparator(path string) bool {
	return strings.ContainsRune(path, '/') || strings.ContainsRune(path, filepath.Separator)
}

func executablePathIn(path string, workingDirectory string) string {
	if workingDirectory == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workingDirectory, path)
}

// MergeEnvironment appends extra to base, letting extra override keys already in base.
func MergeEnvironment(base []string, extra []string) []string {
	if len(extra) == 0 {
		return base
	}

	overridden := make(map[string]bool, len(extra))
	for _, e := range extra {
		overridden[envKey(e)] = true
	}

	env := make([]string, 0, len(base)+len(extra))
	for _, e := range base {
		if !overridden[envKey(e)] {
			env = append(env, e)
		}
	}
	return append(env, extra...)
}

func envKey(entry string) string {
	if i := strings.Index(entry, "="); i >= 0 {
		return entry[:i]
	}
	return entry
}
