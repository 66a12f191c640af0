// Package provision describes the provisioning steps that must succeed
// before the application server is allowed to start.
package provision

import (
	"context"
	"fmt"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/process"
)

// FailureKind names what a step failure means for the deployment
type FailureKind string

const (
	FailureAssetCollection FailureKind = "asset_collection"
	FailureMigration       FailureKind = "migration"
)

// Check is a precondition evaluated right before a step's command runs
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// Step is a single external command in the startup sequence
type Step struct {
	Name      string                  `yaml:"name"`
	Label     string                  `yaml:"label,omitempty"`
	Execution process.ExecutionConfig `yaml:"execution"`
	Failure   FailureKind             `yaml:"failure"`
	Checks    []Check                 `yaml:"-"`
}

// DisplayName returns the label, falling back to the name
func (s Step) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Name
}

// FailureError builds the error for this step's failure kind
func (s Step) FailureError(message string, cause error) *errors.DomainError {
	var err *errors.DomainError
	switch s.Failure {
	case FailureAssetCollection:
		err = errors.NewAssetCollectionError(message, cause)
	case FailureMigration:
		err = errors.NewMigrationError(message, cause)
	default:
		err = errors.NewProcessError(message, cause)
	}
	return err.WithContext("step", s.Name)
}

// ExitStatusError is the cause attached to a step that exited non-zero
type ExitStatusError struct {
	Code int
}

func (e *ExitStatusError) Error() string {
	if e.Code < 0 {
		return "terminated by signal"
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// ValidateStep validates a step definition
func ValidateStep(step Step) error {
	if step.Name == "" {
		return errors.NewValidationError("step name is required", nil)
	}

	switch step.Failure {
	case FailureAssetCollection, FailureMigration:
	default:
		return errors.NewValidationError("unsupported failure kind: "+string(step.Failure), nil).
			WithContext("step", step.Name).
			WithContext("supported_kinds", "asset_collection, migration")
	}

	if err := process.ValidateExecutionConfig(step.Execution); err != nil {
		return errors.NewValidationError("invalid step execution", err).WithContext("step", step.Name)
	}

	return nil
}
