// Package entrypoint assembles one deployment variant: it resolves the
// configuration, sets up logging, attaches the optional preflight check and
// PID file, and drives the startup sequence to the server handoff.
package entrypoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwonya/entrypoint/pkg/config"
	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"
	"github.com/mwonya/entrypoint/pkg/preflight"
	"github.com/mwonya/entrypoint/pkg/process"
	"github.com/mwonya/entrypoint/pkg/processfile"
	"github.com/mwonya/entrypoint/pkg/provision"
	"github.com/mwonya/entrypoint/pkg/sequencer"

	"github.com/google/uuid"
)

// Options are the command line settings shared by every entrypoint binary
type Options struct {
	ConfigFile string
	DryRun     bool
	LogLevel   string
	LogFormat  string
}

// Environment carries the process-level collaborators. Zero values mean
// the real ones: os.Stdout, os.Stderr, child processes and exec.
type Environment struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Runner   process.Runner
	Replacer process.Replacer
	PID      int
	RunID    string

	// PIDFiles places PID files when the configuration says "auto"
	PIDFiles *processfile.ProcessFileManager

	// ReleaseSignals is called right before handoff
	ReleaseSignals func()
}

func (e Environment) withDefaults() Environment {
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.PID == 0 {
		e.PID = os.Getpid()
	}
	if e.RunID == "" {
		e.RunID = uuid.NewString()
	}
	if e.ReleaseSignals == nil {
		e.ReleaseSignals = func() {}
	}
	return e
}

// Main is what a variant binary's main calls: it returns the process exit code.
// SIGINT and SIGTERM cancel the running step until the handoff.
func Main(variant string, options Options) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := Run(ctx, variant, options, Environment{ReleaseSignals: stop})
	return errors.ExitCode(err)
}

// Run resolves the deployment for variant and executes its startup sequence.
// With the real exec-based replacer it does not return on success.
func Run(ctx context.Context, variant string, options Options, env Environment) error {
	env = env.withDefaults()

	deployment, err := Resolve(variant, options)
	if err != nil {
		fmt.Fprintf(env.Stderr, "*** STARTUP FAILED: configuration failed (%v) ***\n", err)
		return err
	}

	deployment.Logging.Fields = map[string]string{
		"run_id":  env.RunID,
		"variant": deployment.Variant,
	}
	logger, syncLogs, err := logging.NewBackend(deployment.Logging, env.Stderr)
	if err != nil {
		fmt.Fprintf(env.Stderr, "*** STARTUP FAILED: configuration failed (%v) ***\n", err)
		return err
	}
	defer syncLogs()

	logger.Infof("Entrypoint starting, variant: %s, pid: %d", deployment.Variant, env.PID)
	if options.ConfigFile != "" {
		logger.Infof("Using CONFIGURATION FILE: %s", options.ConfigFile)
	}

	if options.DryRun {
		return printPlan(env.Stdout, deployment)
	}

	steps, err := stepsWithChecks(deployment, logger)
	if err != nil {
		logger.Errorf("Failed to set up preflight checks: %v", err)
		return err
	}

	pidFiles := env.PIDFiles
	if pidFiles == nil {
		pidFiles = processfile.NewProcessFileManager(processfile.ProcessFileConfig{UseSubdirectory: true}, logger)
	}
	pidFile := ""
	if deployment.PIDFile != "" {
		pidFile = pidFiles.ResolvePIDFilePath(deployment.PIDFile, deployment.Variant)
	}

	runner := env.Runner
	if runner == nil {
		runner = process.NewCommandRunner(env.Stdout, env.Stderr, logger)
	}
	replacer := env.Replacer
	if replacer == nil {
		replacer = process.NewExecReplacer(logger)
	}

	beforeHandoff := func() error {
		if pidFile != "" {
			if err := pidFiles.WritePIDFile(pidFile, env.PID); err != nil {
				return err
			}
		}
		env.ReleaseSignals()
		syncLogs()
		return nil
	}

	seq := sequencer.New(steps, deployment.Launch(), runner, replacer, logger, sequencer.Options{
		Diagnostics:   env.Stderr,
		BeforeHandoff: beforeHandoff,
	})

	err = seq.Run(ctx)
	if err != nil {
		logger.Errorf("Entrypoint finished with error, state: %s, exit code: %d", seq.State(), errors.ExitCode(err))
		return err
	}

	logger.Infof("Server exited cleanly, state: %s", seq.State())
	return nil
}

// Resolve builds the effective deployment: built-in variant, then the
// optional overlay file, then command line overrides. The result is validated.
func Resolve(variant string, options Options) (*config.Deployment, error) {
	deployment, err := config.Builtin(variant)
	if err != nil {
		return nil, err
	}

	if options.ConfigFile != "" {
		deployment, err = config.LoadOverlay(options.ConfigFile, deployment)
		if err != nil {
			return nil, err
		}
	}

	if options.LogLevel != "" {
		deployment.Logging.Level = options.LogLevel
	}
	if options.LogFormat != "" {
		deployment.Logging.Format = options.LogFormat
	}

	if err := config.Validate(deployment); err != nil {
		return nil, err
	}
	return deployment, nil
}

// stepsWithChecks attaches the database preflight to the migration step
func stepsWithChecks(deployment *config.Deployment, logger logging.Logger) ([]provision.Step, error) {
	steps := deployment.Steps()
	if deployment.Database == nil {
		return steps, nil
	}

	checker, err := preflight.NewDatabaseChecker(*deployment.Database, logger)
	if err != nil {
		return nil, err
	}

	for i := range steps {
		if steps[i].Failure == provision.FailureMigration {
			steps[i].Checks = append(steps[i].Checks, checker)
		}
	}
	return steps, nil
}

func printPlan(w io.Writer, deployment *config.Deployment) error {
	data, err := json.MarshalIndent(config.Summary(deployment), "", "  ")
	if err != nil {
		return errors.NewInternalError("failed to render startup plan", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return errors.NewIOError("failed to write startup plan", err)
	}
	return nil
}
