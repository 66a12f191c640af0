package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/process"
)

const (
	DefaultExecutable = "gunicorn"
	DefaultHost       = "0.0.0.0"
	DefaultWorkers    = 3

	// StreamLog tells gunicorn to write a log channel to stdout (access) or stderr (error)
	StreamLog = "-"
)

// LaunchConfig is everything needed to start the application server
type LaunchConfig struct {
	Executable       string   `yaml:"executable,omitempty"`
	Module           string   `yaml:"module"`
	Host             string   `yaml:"host,omitempty"`
	Port             int      `yaml:"port"`
	Workers          int      `yaml:"workers,omitempty"`
	AccessLog        string   `yaml:"access_log,omitempty"`
	ErrorLog         string   `yaml:"error_log,omitempty"`
	ExtraArgs        []string `yaml:"extra_args,omitempty"`
	Environment      []string `yaml:"environment,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`
}

// WithDefaults fills unset fields
func (c LaunchConfig) WithDefaults() LaunchConfig {
	if c.Executable == "" {
		c.Executable = DefaultExecutable
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.AccessLog == "" {
		c.AccessLog = StreamLog
	}
	if c.ErrorLog == "" {
		c.ErrorLog = StreamLog
	}
	return c
}

// BindAddress returns host:port as passed to --bind
func (c LaunchConfig) BindAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Args returns the server arguments, without the executable
func (c LaunchConfig) Args() []string {
	args := []string{
		c.Module,
		"--bind", c.BindAddress(),
		"--workers", strconv.Itoa(c.Workers),
		"--access-logfile", c.AccessLog,
		"--error-logfile", c.ErrorLog,
	}
	return append(args, c.ExtraArgs...)
}

// Execution converts the launch configuration into a process execution
func (c LaunchConfig) Execution() process.ExecutionConfig {
	return process.ExecutionConfig{
		ExecutablePath:   c.Executable,
		Args:             c.Args(),
		Environment:      c.Environment,
		WorkingDirectory: c.WorkingDirectory,
	}
}

func (c LaunchConfig) String() string {
	return fmt.Sprintf("%s on %s with %d workers", c.Module, c.BindAddress(), c.Workers)
}

// ValidateLaunchConfig validates a launch configuration after defaults were applied
func ValidateLaunchConfig(c LaunchConfig) error {
	if c.Module == "" {
		return errors.NewValidationError("server module is required", nil)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil).WithContext("port", c.Port)
	}
	if net.ParseIP(c.Host) == nil && c.Host != "localhost" {
		return errors.NewValidationError("host must be an IP address or localhost: "+c.Host, nil)
	}
	if c.Workers < 1 {
		return errors.NewValidationError("workers must be at least 1", nil).WithContext("workers", c.Workers)
	}
	if c.AccessLog == "" || c.ErrorLog == "" {
		return errors.NewValidationError("access and error log destinations are required", nil)
	}
	if err := process.ValidateExecutionConfig(c.Execution()); err != nil {
		return errors.NewValidationError("invalid server execution", err)
	}
	return nil
}
