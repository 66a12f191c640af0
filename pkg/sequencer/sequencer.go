// Package sequencer runs the provisioning steps in order and, once all of
// them succeeded, replaces the current process with the application server.
//
// Any failure is fatal: later steps are skipped, the server is never started
// and Run returns an error whose type names the failed step's kind.
package sequencer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"
	"github.com/mwonya/entrypoint/pkg/process"
	"github.com/mwonya/entrypoint/pkg/provision"
	"github.com/mwonya/entrypoint/pkg/server"
)

// HandoffFunc runs after the last step succeeded and right before the server replaces us
type HandoffFunc func() error

type Options struct {
	// Diagnostics receives the human-readable failure banner. Defaults to os.Stderr.
	Diagnostics   io.Writer
	BeforeHandoff HandoffFunc
}

type Sequencer struct {
	steps    []provision.Step
	launch   server.LaunchConfig
	runner   process.Runner
	replacer process.Replacer
	logger   logging.Logger
	options  Options

	mutex       sync.Mutex
	state       State
	transitions []State
	started     bool
}

func New(steps []provision.Step, launch server.LaunchConfig, runner process.Runner, replacer process.Replacer, logger logging.Logger, options Options) *Sequencer {
	if options.Diagnostics == nil {
		options.Diagnostics = os.Stderr
	}
	initial := State{Phase: PhaseNotStarted}
	return &Sequencer{
		steps:       steps,
		launch:      launch,
		runner:      runner,
		replacer:    replacer,
		logger:      logger,
		options:     options,
		state:       initial,
		transitions: []State{initial},
	}
}

// Run executes every step, then hands off to the server.
// With a real exec-based Replacer a successful Run never returns.
func (s *Sequencer) Run(ctx context.Context) error {
	s.mutex.Lock()
	if s.started {
		s.mutex.Unlock()
		return errors.NewConflictError("startup sequence already ran", nil)
	}
	s.started = true
	s.mutex.Unlock()

	s.logger.Infof("Startup sequence starting, steps: %d, server: %s", len(s.steps), s.launch)

	for i, step := range s.steps {
		s.transition(State{Phase: PhaseRunning, Step: step.Name})
		s.logger.Infof("Running step %d/%d: %s (%s)", i+1, len(s.steps), step.DisplayName(), step.Execution.CommandLine())

		if err := s.runStep(ctx, step); err != nil {
			s.fail(step.Name, step.DisplayName(), err)
			return err
		}

		s.logger.Infof("Step completed: %s", step.DisplayName())
	}

	if s.options.BeforeHandoff != nil {
		if err := s.options.BeforeHandoff(); err != nil {
			wrapped := errors.NewInternalError("pre-launch hook failed", err)
			s.fail("", "server launch", wrapped)
			return wrapped
		}
	}

	s.logger.Infof("All steps completed, launching server: %s", s.launch)

	if err := s.replacer.Replace(s.launch.Execution()); err != nil {
		wrapped := errors.NewProcessError("server launch failed", err).WithContext("module", s.launch.Module)
		s.fail("", "server launch", wrapped)
		return wrapped
	}

	// Only reachable with a Replacer that returns after a successful handoff
	s.transition(State{Phase: PhaseServing})
	return nil
}

func (s *Sequencer) runStep(ctx context.Context, step provision.Step) error {
	for _, check := range step.Checks {
		s.logger.Debugf("Running preflight check %s for step %s", check.Name(), step.Name)
		if err := check.Check(ctx); err != nil {
			return step.FailureError(step.DisplayName()+" failed", err).WithContext("check", check.Name())
		}
	}

	exitCode, err := s.runner.Run(ctx, step.Execution)
	if err != nil {
		return step.FailureError(step.DisplayName()+" failed", err).WithContext("exit_code", exitCode)
	}
	if exitCode != 0 {
		return step.FailureError(step.DisplayName()+" failed", &provision.ExitStatusError{Code: exitCode}).
			WithContext("exit_code", exitCode)
	}
	return nil
}

func (s *Sequencer) fail(stepName, display string, err error) {
	s.transition(State{Phase: PhaseFailed, Step: stepName})

	reason := err.Error()
	if domainErr, ok := err.(*errors.DomainError); ok && domainErr.Cause != nil {
		reason = domainErr.Cause.Error()
	}

	fmt.Fprintf(s.options.Diagnostics, "*** STARTUP FAILED: %s failed (%s) ***\n", display, reason)
	s.logger.Errorf("Startup sequence aborted, step: %s, error: %v", display, err)
}

func (s *Sequencer) transition(to State) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !canTransition(s.state, to) {
		s.logger.Warnf("Ignoring invalid state transition %s -> %s", s.state, to)
		return
	}

	s.logger.Debugf("State transition %s -> %s", s.state, to)
	s.state = to
	s.transitions = append(s.transitions, to)
}

// State returns the current state
func (s *Sequencer) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Transitions returns every state the sequence went through, starting with not_started
func (s *Sequencer) Transitions() []State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result := make([]State, len(s.transitions))
	copy(result, s.transitions)
	return result
}
