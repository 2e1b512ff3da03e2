package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasksync/internal/cache"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/worker"
)

func init() {
	Register(&CacheCmd{})
}

// CacheCmd manages the response caches.
//
//	warm   fetch the asset manifest into the current cache (install)
//	sweep  delete every cache but the current one (activate)
//	ls     list cache names, or the entries of one cache
type CacheCmd struct{}

func (c *CacheCmd) Name() string      { return "cache" }
func (c *CacheCmd) Aliases() []string { return nil }
func (c *CacheCmd) Synopsis() string  { return "Manage the response cache" }
func (c *CacheCmd) Usage() string     { return "tasksync cache warm|sweep|ls [name]" }
func (c *CacheCmd) NeedsWorker() bool { return true }

func (c *CacheCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *CacheCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "error: cache subcommand required (warm, sweep, ls)")
		return exitcode.UserError
	}
	if w.Caches().Temporary() {
		fmt.Fprintf(errOut, "error: %v (is tasksync serve running?)\n", cache.ErrLocked)
		return exitcode.BackendError
	}

	switch args[0] {
	case "warm":
		n, err := w.Install(ctx)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.BackendError
		}
		total := len(w.Settings().Cache.Assets)
		if !cfg.Quiet {
			fmt.Fprintf(out, "cached %d of %d assets\n", n, total)
		}
		if n < total {
			return exitcode.BackendError
		}
	case "sweep":
		deleted, err := w.Activate()
		for _, name := range deleted {
			if !cfg.Quiet {
				fmt.Fprintf(out, "deleted %s\n", name)
			}
		}
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.BackendError
		}
	case "ls":
		return c.list(w, args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "error: unknown cache subcommand: %s\n", args[0])
		return exitcode.UserError
	}
	return exitcode.Success
}

func (c *CacheCmd) list(w *worker.Worker, args []string, out, errOut io.Writer) int {
	store := w.Caches()
	if len(args) == 0 {
		names, err := store.Keys()
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.BackendError
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return exitcode.Success
	}

	name := args[0]
	if !store.Has(name) {
		fmt.Fprintf(errOut, "error: cache not found: %s\n", name)
		return exitcode.UserError
	}
	named, err := store.Named(name)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	entries, err := named.Entries()
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	for _, snap := range entries {
		output.FormatCacheEntry(out, snap)
	}
	return exitcode.Success
}
