package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/syncer"
	"tasksync/internal/worker"
)

func init() {
	Register(&SyncCmd{})
}

// SyncCmd replays queued tasks to the backend now.
type SyncCmd struct{}

func (c *SyncCmd) Name() string      { return "sync" }
func (c *SyncCmd) Aliases() []string { return nil }
func (c *SyncCmd) Synopsis() string  { return "Send queued tasks to the backend" }
func (c *SyncCmd) Usage() string     { return "tasksync sync" }
func (c *SyncCmd) NeedsWorker() bool { return true }

func (c *SyncCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *SyncCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	res, err := w.Sync(ctx)
	if err != nil && !errors.Is(err, syncer.ErrIncomplete) {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}

	for _, o := range res.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(errOut, "error: %s: %v\n", o.Entry.Name, o.Err)
		}
	}

	if !cfg.Quiet {
		if len(res.Outcomes) == 0 {
			fmt.Fprintln(out, "nothing to sync")
		} else {
			fmt.Fprintf(out, "synced %d, failed %d\n", res.Synced(), res.Failed())
		}
	}

	if res.Failed() > 0 {
		return exitcode.BackendError
	}
	return exitcode.Success
}
