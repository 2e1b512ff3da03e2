// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"

	"tasksync/internal/config"
	"tasksync/internal/worker"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsWorker returns true if the command needs the offline subsystem
	// (settings loaded, caches and queue open). help, version, init, login
	// and logout return false.
	NeedsWorker() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths).
	// w is nil if NeedsWorker() returns false.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int
}
