package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/worker"
)

func init() {
	Register(&AddCmd{})
	Register(&CreateCmd{})
}

// AddCmd implements the add command.
type AddCmd struct{}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return nil }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string     { return "tasksync add <name...>" }
func (c *AddCmd) NeedsWorker() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	return runAdd(ctx, cfg, w, args, out, errOut)
}

// CreateCmd is an alias for AddCmd.
type CreateCmd struct{}

func (c *CreateCmd) Name() string      { return "create" }
func (c *CreateCmd) Aliases() []string { return nil }
func (c *CreateCmd) Synopsis() string  { return "Create a task (alias for add)" }
func (c *CreateCmd) Usage() string     { return "tasksync create <name...>" }
func (c *CreateCmd) NeedsWorker() bool { return true }

func (c *CreateCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *CreateCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	return runAdd(ctx, cfg, w, args, out, errOut)
}

// runAdd is the shared implementation for add and create commands.
// The task is written directly when online and queued for the next sync
// otherwise.
func runAdd(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	name := strings.Join(args, " ")
	if strings.TrimSpace(name) == "" {
		fmt.Fprintln(errOut, "error: task name required")
		return exitcode.UserError
	}

	res, err := w.Controller().Add(ctx, name)
	if err != nil {
		return reportBackendError(errOut, err)
	}

	if !cfg.Quiet {
		if res.Queued {
			fmt.Fprintln(out, "queued")
		} else {
			fmt.Fprintln(out, "ok")
		}
	}
	return exitcode.Success
}
