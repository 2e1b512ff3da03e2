package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/worker"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command.
// Handles both `tasksync` (no args) and `tasksync list`.
type ListCmd struct {
	pendingOnly bool
}

// SetPendingOnly restricts output to queued tasks (for testing).
func (c *ListCmd) SetPendingOnly(v bool) {
	c.pendingOnly = v
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string     { return "tasksync list [--pending]" }
func (c *ListCmd) NeedsWorker() bool { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.pendingOnly, "pending", false, "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	if c.pendingOnly {
		pending, err := w.Controller().Pending(ctx)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.BackendError
		}
		for i, e := range pending {
			output.FormatPending(out, i+1, e)
		}
		if len(pending) == 0 && !cfg.Quiet {
			fmt.Fprintln(out, "nothing to sync")
		}
		return exitcode.Success
	}

	listing, err := w.Controller().List(ctx)
	if err != nil {
		return reportBackendError(errOut, err)
	}

	if listing.Fallback && !cfg.Quiet {
		fmt.Fprintf(errOut, "warning: showing local tasks only: %v\n", listing.FallbackErr)
	}

	for i, task := range listing.Tasks {
		output.FormatTask(out, i+1, task)
	}

	if len(listing.Pending) > 0 {
		output.FormatSection(out, output.PendingTitle)
		for i, e := range listing.Pending {
			output.FormatPending(out, i+1, e)
		}
	}

	if len(listing.Tasks) == 0 && len(listing.Pending) == 0 && !cfg.Quiet {
		fmt.Fprintln(out, "no tasks found")
	}

	return exitcode.Success
}
