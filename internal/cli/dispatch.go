// Package cli parses the command line and runs the selected command.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tasksync/internal/commands"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/logging"
	"tasksync/internal/service"
	"tasksync/internal/worker"
)

// WorkerFactory builds the offline subsystem for a command.
// Used to inject the backend during dispatch.
type WorkerFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*worker.Worker, error)

// DefaultWorkerFactory builds a worker on the configured backend.
func DefaultWorkerFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*worker.Worker, error) {
	return worker.New(ctx, cfg, worker.WithLogger(logger))
}

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  WorkerFactory
}

// NewDispatcher creates a new dispatcher with the given registry and worker
// factory. A nil factory uses DefaultWorkerFactory.
func NewDispatcher(registry *commands.Registry, factory WorkerFactory) *Dispatcher {
	if factory == nil {
		factory = DefaultWorkerFactory
	}
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args -> dispatch to "list" command with no args
	if len(args) == 0 {
		args = []string{"list"}
	}

	cmdName := args[0]

	// Flags require a command
	if strings.HasPrefix(cmdName, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	return d.dispatchCommand(ctx, cmd, args[1:], out, errOut)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // We handle errors ourselves

	// Common flags
	var (
		configDir string
		quiet     bool
		debug     bool
		offline   bool
	)
	fs.StringVar(&configDir, "config", "", "")
	fs.BoolVar(&quiet, "quiet", false, "")
	fs.BoolVar(&debug, "debug", false, "")
	fs.BoolVar(&offline, "offline", false, "")

	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", flagError(err))
		return exitcode.UserError
	}

	// A leftover leading dash means a flag after the first positional arg.
	positionalArgs := fs.Args()
	if len(positionalArgs) > 0 && strings.HasPrefix(positionalArgs[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positionalArgs[0])
		return exitcode.UserError
	}

	cfg, err := config.New(configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = quiet
	cfg.Debug = debug
	cfg.Offline = offline

	if !cmd.NeedsWorker() {
		return cmd.Run(ctx, cfg, nil, positionalArgs, out, errOut)
	}

	if err := cfg.Load(); err != nil {
		fmt.Fprintf(errOut, "error: config error: %s\n", err)
		return exitcode.AuthError
	}

	level := cfg.Settings.Log.Level
	if debug {
		level = "debug"
	}
	logger := logging.Setup(level, cfg.Settings.Log.Format, errOut)

	if cfg.Settings.Backend == config.BackendGoogleTasks {
		if !cfg.HasOAuthClient() {
			fmt.Fprintf(errOut, "error: %s not found in %s\n", config.OAuthClientFile, cfg.Dir)
			return exitcode.AuthError
		}
		if !cfg.HasToken() {
			fmt.Fprintln(errOut, "error: not logged in (run: tasksync login)")
			return exitcode.AuthError
		}
	}

	w, err := d.factory(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, service.ErrAuth) {
			fmt.Fprintf(errOut, "error: auth error: %s\n", err)
			return exitcode.AuthError
		}
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.BackendError
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("failed to close stores", "error", err)
		}
	}()

	return cmd.Run(ctx, cfg, w, positionalArgs, out, errOut)
}

// flagError rewrites an undefined-flag error as "unknown flag: -x". Other
// flag package errors are already worded for users.
func flagError(err error) string {
	const undefined = "flag provided but not defined: "
	errStr := err.Error()
	if strings.HasPrefix(errStr, undefined) {
		return "unknown flag: " + strings.TrimPrefix(errStr, undefined)
	}
	return errStr
}
