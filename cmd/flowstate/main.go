// Package main is the flowstate command: it runs workflow files and
// inspects stored runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/flowstate-dev/flowstate/internal/config"
	"github.com/flowstate-dev/flowstate/pkg/api"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitRunFailed = 2
	exitNotFound  = 3
	exitFinished  = 4
	exitUsage     = 64
	exitCancelled = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newParser(cli *CLI, stdout, stderr io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("flowstate"),
		kong.Description("Run declarative state-machine workflows."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kongVars(),
	)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := newParser(&cli, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "flowstate: %v\n", err)
		return exitUsage
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(stdout, (*io.Writer)(nil))

	switch kctx.Selected().Name {
	case "validate", "version":
		return report(stderr, kctx.Run())
	}

	if err := godotenv.Load(cli.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "flowstate: load %s: %v\n", cli.EnvFile, err)
		return exitError
	}
	path := cli.Config
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "flowstate: %v\n", err)
		return exitError
	}

	app, err := newApp(ctx, cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "flowstate: %v\n", err)
		return exitError
	}
	code := report(stderr, kctx.Run(app))
	if err := app.Close(); err != nil {
		fmt.Fprintf(stderr, "flowstate: %v\n", err)
		if code == exitOK {
			code = exitError
		}
	}
	return code
}

func report(stderr io.Writer, err error) int {
	code := exitCode(err)
	if code != exitOK {
		fmt.Fprintf(stderr, "flowstate: %v\n", err)
	}
	return code
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, api.ErrRunNotFound), errors.Is(err, api.ErrWorkflowNotFound):
		return exitNotFound
	case errors.Is(err, api.ErrWorkflowCompleted):
		return exitFinished
	case errors.Is(err, api.ErrExecutionFailed),
		errors.Is(err, api.ErrTransitionLimitExceeded),
		errors.Is(err, api.ErrExpression),
		errors.Is(err, api.ErrStateNotFound):
		return exitRunFailed
	default:
		return exitError
	}
}
