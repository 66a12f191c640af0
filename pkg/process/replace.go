package process

import (
	"os"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"
)

// Replacer hands the current process over to another program.
// On success Replace does not return.
type Replacer interface {
	Replace(execution ExecutionConfig) error
}

type execReplacer struct {
	logger logging.Logger
}

// NewExecReplacer returns a Replacer backed by exec(2) on Unix.
// Windows has no exec; there the program runs as a child and
// the current process exits with the child's status.
func NewExecReplacer(logger logging.Logger) Replacer {
	return &execReplacer{logger: logger}
}

func (r *execReplacer) Replace(execution ExecutionConfig) error {
	if err := ValidateExecutionConfig(execution); err != nil {
		return errors.NewValidationError("invalid execution configuration", err)
	}

	path, err := ResolveExecutable(execution.ExecutablePath, execution.WorkingDirectory)
	if err != nil {
		return err
	}

	// argv[0] keeps the name the program was configured with, as a shell would pass it
	argv := append([]string{execution.ExecutablePath}, execution.Args...)
	env := MergeEnvironment(os.Environ(), execution.Environment)

	if execution.WorkingDirectory != "" {
		if err := os.Chdir(execution.WorkingDirectory); err != nil {
			return errors.NewIOError("failed to change working directory", err).
				WithContext("working_directory", execution.WorkingDirectory)
		}
	}

	r.logger.Infof("Replacing process, PID: %d, path: '%s', args: %v", os.Getpid(), path, execution.Args)

	if err := replaceProcess(path, argv, env); err != nil {
		return errors.NewProcessError("failed to replace the process", err).WithContext("executable_path", path)
	}
	return nil
}
