// fakeapp stands in for both "python manage.py <command>" and gunicorn so the
// entrypoints can be smoke-tested without a Django installation. Point an
// overlay's python and server.executable at it, see testdata/smoke.yaml.
//
// FAKEAPP_FAIL="migrate=2,collectstatic=1" makes the named commands exit
// with the given status.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Bind     string `long:"bind" description:"address to serve on, as gunicorn does"`
	Workers  int    `long:"workers" description:"ignored"`
	NoInput  bool   `long:"noinput" description:"ignored"`
	Duration int    `long:"run-duration" description:"seconds to serve before exiting, 0 serves until signalled"`
}

func main() {
	var opts flagOptions
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.IgnoreUnknown)
	args, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Bind != "" {
		os.Exit(serve(opts))
	}

	command := manageCommand(args)
	fmt.Printf("fakeapp: running %q, pid: %d\n", command, os.Getpid())

	failures, err := parseFailures(os.Getenv("FAKEAPP_FAIL"))
	if err != nil {
		fmt.Printf("fakeapp: %v\n", err)
		os.Exit(1)
	}
	if code, ok := failures[command]; ok {
		fmt.Fprintf(os.Stderr, "fakeapp: %s failing with status %d\n", command, code)
		os.Exit(code)
	}
}

// manageCommand picks the management command out of "manage.py <command> ..."
func manageCommand(args []string) string {
	for i, arg := range args {
		if strings.HasSuffix(arg, ".py") && i+1 < len(args) {
			return args[i+1]
		}
	}
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func parseFailures(value string) (map[string]int, error) {
	failures := make(map[string]int)
	if strings.TrimSpace(value) == "" {
		return failures, nil
	}
	for _, entry := range strings.Split(value, ",") {
		name, codeStr, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid FAKEAPP_FAIL entry %q, want command=status", entry)
		}
		code, err := strconv.Atoi(codeStr)
		if err != nil || code < 0 || code > 255 {
			return nil, fmt.Errorf("invalid exit status in FAKEAPP_FAIL entry %q", entry)
		}
		failures[name] = code
	}
	return failures, nil
}

func serve(opts flagOptions) int {
	ctx := context.Background()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Duration)*time.Second)
		defer cancel()
	}

	server := &http.Server{
		Addr: opts.Bind,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "fakeapp pid %d\n", os.Getpid())
		}),
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	fmt.Printf("fakeapp: serving on %s, pid: %d\n", opts.Bind, os.Getpid())

	select {
	case receivedSignal := <-sig:
		fmt.Printf("fakeapp: received signal: %v\n", receivedSignal)
	case <-ctx.Done():
		fmt.Printf("fakeapp: run duration elapsed\n")
	case err := <-errs:
		fmt.Fprintf(os.Stderr, "fakeapp: serve failed: %v\n", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "fakeapp: shutdown failed: %v\n", err)
		return 1
	}
	return 0
}
