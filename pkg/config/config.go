package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"
	"github.com/mwonya/entrypoint/pkg/preflight"
	"github.com/mwonya/entrypoint/pkg/process"
	"github.com/mwonya/entrypoint/pkg/processfile"
	"github.com/mwonya/entrypoint/pkg/provision"
	"github.com/mwonya/entrypoint/pkg/server"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Deployment is the full, fixed description of one entrypoint variant
type Deployment struct {
	Variant      string                   `yaml:"variant"`
	Python       string                   `yaml:"python,omitempty"`
	ManageScript string                   `yaml:"manage_script,omitempty"`
	AppDirectory string                   `yaml:"app_directory,omitempty"`
	Environment  []string                 `yaml:"environment,omitempty"`
	EnvFile      string                   `yaml:"env_file,omitempty"`
	Server       server.LaunchConfig      `yaml:"server"`
	Logging      logging.BackendOptions   `yaml:"logging,omitempty"`
	PIDFile      string                   `yaml:"pid_file,omitempty"`
	Database     *preflight.DatabaseCheck `yaml:"database_check,omitempty"`
}

// Steps returns the provisioning steps in execution order
func (d *Deployment) Steps() []provision.Step {
	return []provision.Step{
		{
			Name:      "collectstatic",
			Label:     "static asset collection",
			Execution: d.manageCommand("collectstatic", "--noinput"),
			Failure:   provision.FailureAssetCollection,
		},
		{
			Name:      "migrate",
			Label:     "database migration",
			Execution: d.manageCommand("migrate", "--noinput"),
			Failure:   provision.FailureMigration,
		},
	}
}

// Launch returns the server launch configuration with the deployment-wide settings applied
func (d *Deployment) Launch() server.LaunchConfig {
	launch := d.Server.WithDefaults()
	if launch.WorkingDirectory == "" {
		launch.WorkingDirectory = d.AppDirectory
	}
	launch.Environment = process.MergeEnvironment(append([]string{}, d.Environment...), launch.Environment)
	return launch
}

func (d *Deployment) manageCommand(args ...string) process.ExecutionConfig {
	return process.ExecutionConfig{
		ExecutablePath:   d.Python,
		Args:             append([]string{d.ManageScript}, args...),
		Environment:      d.Environment,
		WorkingDirectory: d.AppDirectory,
	}
}

// LoadOverlay reads a YAML file and applies it on top of base.
// Keys missing from the file keep the base value.
func LoadOverlay(filename string, base *Deployment) (*Deployment, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	return ApplyOverlay(data, base)
}

// ApplyOverlay decodes YAML data on top of a copy of base
func ApplyOverlay(data []byte, base *Deployment) (*Deployment, error) {
	if base == nil {
		return nil, errors.NewValidationError("base deployment cannot be nil", nil)
	}

	deployment := *base
	deployment.Environment = append([]string{}, base.Environment...)
	if base.Database != nil {
		database := *base.Database
		deployment.Database = &database
	}

	if err := yaml.Unmarshal(data, &deployment); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	if deployment.Variant != base.Variant {
		return nil, errors.NewValidationError(
			fmt.Sprintf("configuration is for variant %q, this entrypoint runs %q", deployment.Variant, base.Variant),
			nil,
		)
	}

	if deployment.EnvFile != "" && deployment.EnvFile != base.EnvFile {
		if err := loadEnvFile(&deployment); err != nil {
			return nil, err
		}
	}

	setDeploymentDefaults(&deployment)
	return &deployment, nil
}

// loadEnvFile merges a dotenv file under the explicit environment entries
func loadEnvFile(d *Deployment) error {
	values, err := godotenv.Read(d.EnvFile)
	if err != nil {
		return errors.NewIOError("failed to read environment file", err).WithContext("env_file", d.EnvFile)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fromFile := make([]string, 0, len(keys))
	for _, key := range keys {
		fromFile = append(fromFile, key+"="+values[key])
	}
	d.Environment = process.MergeEnvironment(fromFile, d.Environment)
	return nil
}

func setDeploymentDefaults(d *Deployment) {
	if d.Python == "" {
		d.Python = DefaultPython
	}
	if d.ManageScript == "" {
		d.ManageScript = DefaultManageScript
	}
	d.Server = d.Server.WithDefaults()
	if d.Database != nil {
		database := d.Database.WithDefaults()
		d.Database = &database
	}
}

// Validate validates the entire deployment and reports every problem found
func Validate(d *Deployment) error {
	if d == nil {
		return errors.NewValidationError("deployment cannot be nil", nil)
	}

	problems := errors.NewErrorCollection()

	if d.Variant == "" {
		problems.Add(errors.NewValidationError("variant is required", nil))
	}

	if d.AppDirectory != "" && !filepath.IsAbs(d.AppDirectory) {
		problems.Add(errors.NewValidationError("app directory must be absolute path", nil))
	}

	names := make(map[string]bool)
	for _, step := range d.Steps() {
		if names[step.Name] {
			problems.Add(errors.NewValidationError("duplicate step name: "+step.Name, nil))
		}
		names[step.Name] = true
		problems.Add(provision.ValidateStep(step))
	}

	problems.Add(server.ValidateLaunchConfig(d.Launch()))

	if _, err := logging.ParseLevel(d.Logging.Level); err != nil {
		problems.Add(err)
	}
	switch d.Logging.Format {
	case "", logging.FormatConsole, logging.FormatJSON, logging.FormatPlain:
	default:
		problems.Add(errors.NewValidationError("unsupported log format: "+d.Logging.Format, nil))
	}

	if d.PIDFile != "" && d.PIDFile != processfile.AutoPath && !filepath.IsAbs(d.PIDFile) {
		problems.Add(errors.NewValidationError("PID file path must be absolute or \"auto\"", nil))
	}

	if d.Database != nil {
		problems.Add(preflight.ValidateDatabaseCheck(d.Database.WithDefaults()))
	}

	if problems.HasErrors() {
		return errors.NewValidationError("invalid deployment configuration", problems.ToError()).
			WithContext("variant", d.Variant)
	}
	return nil
}

// DeploymentSummary provides a high-level overview of a deployment
type DeploymentSummary struct {
	Variant       string        `json:"variant"`
	Steps         []StepSummary `json:"steps"`
	Server        []string      `json:"server"`
	BindAddress   string        `json:"bind_address"`
	Workers       int           `json:"workers"`
	PIDFile       string        `json:"pid_file,omitempty"`
	DatabaseCheck string        `json:"database_check,omitempty"`
}

// StepSummary describes one step of the sequence
type StepSummary struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Command string `json:"command"`
}

// Summary returns a human-readable summary of the deployment
func Summary(d *Deployment) DeploymentSummary {
	launch := d.Launch()
	summary := DeploymentSummary{
		Variant:     d.Variant,
		Server:      append([]string{launch.Executable}, launch.Args()...),
		BindAddress: launch.BindAddress(),
		Workers:     launch.Workers,
		PIDFile:     d.PIDFile,
	}
	for _, step := range d.Steps() {
		summary.Steps = append(summary.Steps, StepSummary{
			Name:    step.Name,
			Label:   step.DisplayName(),
			Command: step.Execution.CommandLine(),
		})
	}
	if d.Database != nil {
		summary.DatabaseCheck = d.Database.WithDefaults().Driver
	}
	return summary
}
