package main

import (
	"fmt"
	"os"

	"github.com/mwonya/entrypoint/pkg/config"
	"github.com/mwonya/entrypoint/pkg/entrypoint"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config    string `long:"config" description:"YAML file overlaying the built-in studio deployment"`
	DryRun    bool   `long:"dry-run" description:"print the startup plan as JSON and exit"`
	LogLevel  string `long:"log-level" description:"debug, info, warn or error"`
	LogFormat string `long:"log-format" description:"console, json or plain"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(entrypoint.Main(config.VariantStudio, entrypoint.Options{
		ConfigFile: opts.Config,
		DryRun:     opts.DryRun,
		LogLevel:   opts.LogLevel,
		LogFormat:  opts.LogFormat,
	}))
}
