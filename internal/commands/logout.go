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
	Register(&LogoutCmd{})
}

// LogoutCmd removes the stored Google token. The OAuth client file, the
// settings, the caches and the queue are left alone.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "tasksync logout [common flags]" }
func (c *LogoutCmd) NeedsWorker() bool { return false }

func (c *LogoutCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	if !cfg.HasToken() {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not logged in")
		}
		return exitcode.Success
	}

	if err := cfg.RemoveToken(); err != nil {
		fmt.Fprintf(errOut, "error: failed to remove token: %v\n", err)
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
