package main

import (
	"context"
	"fmt"
	"os"
	"time"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	"github.com/mwonya/entrypoint/pkg/config"
	"github.com/mwonya/entrypoint/pkg/logging"
	"github.com/mwonya/entrypoint/pkg/monitoring"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Variant  string        `long:"variant" default:"core" description:"deployment variant whose port is probed"`
	Config   string        `long:"config" description:"YAML overlay used by the entrypoint, for a non-default port"`
	Host     string        `long:"host" default:"127.0.0.1" description:"host to probe"`
	Timeout  time.Duration `long:"timeout" default:"3s" description:"probe timeout"`
	HTTPPath string        `long:"http-path" description:"probe with an HTTP GET of this path instead of a TCP connect"`
	PIDFile  string        `long:"pid-file" description:"probe that the process named in this PID file is alive"`
	Verbose  bool          `long:"verbose" short:"v" description:"log probe details"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-probe , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	std := sprintfLogging.NewStdSprintfLogger()
	minLevel := logging.LogLevelWarn
	if opts.Verbose {
		minLevel = logging.LogLevelDebug
	}
	logger := logging.NewLogger(logPrefix(opts.Variant), logging.LevelFilter(minLevel, logging.LogFuncs{
		Debugf: std.Debugf,
		Infof:  std.Infof,
		Warnf:  std.Warnf,
		Errorf: std.Errorf,
	}))

	probeConfig, err := buildProbeConfig(opts)
	if err != nil {
		logger.Errorf("Invalid probe: %v", err)
		os.Exit(1)
	}

	result := monitoring.Probe(context.Background(), probeConfig, logger)
	if !result.Ready() {
		logger.Errorf("Not ready: %s", result.Message)
		os.Exit(1)
	}

	logger.Infof("Ready: %s", result.Message)
}

func buildProbeConfig(opts flagOptions) (monitoring.ProbeConfig, error) {
	deployment, err := config.Builtin(opts.Variant)
	if err != nil {
		return monitoring.ProbeConfig{}, err
	}
	if opts.Config != "" {
		deployment, err = config.LoadOverlay(opts.Config, deployment)
		if err != nil {
			return monitoring.ProbeConfig{}, err
		}
	}

	probeConfig := monitoring.ProbeConfig{
		Type:    monitoring.ProbeTypeTCP,
		Host:    opts.Host,
		Port:    deployment.Launch().Port,
		Timeout: opts.Timeout,
	}
	switch {
	case opts.PIDFile != "":
		probeConfig.Type = monitoring.ProbeTypeProcess
		probeConfig.PIDFile = opts.PIDFile
	case opts.HTTPPath != "":
		probeConfig.Type = monitoring.ProbeTypeHTTP
		probeConfig.HTTP.Path = opts.HTTPPath
	}

	if err := monitoring.ValidateProbeConfig(probeConfig); err != nil {
		return monitoring.ProbeConfig{}, err
	}
	return probeConfig, nil
}
