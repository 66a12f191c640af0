package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mwonya/entrypoint/pkg/errors"
)

// ValidateExecutionConfig validates execution configuration.
// Bare program names are accepted here and resolved against PATH when run.
func ValidateExecutionConfig(config ExecutionConfig) error {
	// Validate executable path
	if config.ExecutablePath == "" {
		return errors.NewValidationError("executable path is required", nil)
	}

	// Check if executable exists when a path was given
	if hasPathSeparator(config.ExecutablePath) {
		path := executablePathIn(config.ExecutablePath, config.WorkingDirectory)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return errors.NewValidationError("executable not found: "+path, err)
		}
	}

	// Validate working directory if provided
	if config.WorkingDirectory != "" {
		if !filepath.IsAbs(config.WorkingDirectory) {
			return errors.NewValidationError("working directory must be absolute path", nil)
		}

		if info, err := os.Stat(config.WorkingDirectory); err != nil {
			return errors.NewValidationError("working directory not accessible: "+config.WorkingDirectory, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+config.WorkingDirectory, nil)
		}
	}

	// Validate environment variables
	for _, env := range config.Environment {
		if !strings.Contains(env, "=") || strings.HasPrefix(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	// Validate wait delay
	if config.WaitDelay < 0 {
		return errors.NewValidationError("wait delay cannot be negative", nil)
	}

	return nil
}
