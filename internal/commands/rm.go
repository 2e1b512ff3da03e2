package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/worker"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
// A plain number deletes a backend task; qN drops a queued task before it
// is synced.
type RmCmd struct{}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return nil }
func (c *RmCmd) Synopsis() string  { return "Delete a task" }
func (c *RmCmd) Usage() string     { return "tasksync rm <n|qN>" }
func (c *RmCmd) NeedsWorker() bool { return true }

func (c *RmCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	ctl := w.Controller()

	if ref.Pending {
		pending, err := ctl.Pending(ctx)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.BackendError
		}
		entry, err := findPending(pending, ref.Num)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		if err := ctl.RemovePending(ctx, entry.ID); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.BackendError
		}
	} else {
		listing, err := ctl.List(ctx)
		if err != nil {
			return reportBackendError(errOut, err)
		}
		if listing.Fallback {
			fmt.Fprintf(errOut, "error: task list unavailable: %v\n", listing.FallbackErr)
			return exitcode.BackendError
		}
		task, err := findTask(listing, ref.Num)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		if err := ctl.Delete(ctx, task.ID); err != nil {
			return reportBackendError(errOut, err)
		}
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// reportBackendError prints a failed task operation and maps it to an
// exit code.
func reportBackendError(errOut io.Writer, err error) int {
	code := exitcode.FromError(err)
	if code == exitcode.BackendError {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
	} else {
		fmt.Fprintf(errOut, "error: %v\n", err)
	}
	return code
}
