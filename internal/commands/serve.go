package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/proxy"
	"tasksync/internal/worker"
)

func init() {
	Register(&ServeCmd{})
}

// ServeCmd runs the local offline proxy together with the background
// sync loop until interrupted.
type ServeCmd struct {
	addr string
}

// SetAddr overrides the listen address (for testing).
func (c *ServeCmd) SetAddr(addr string) {
	c.addr = addr
}

func (c *ServeCmd) Name() string      { return "serve" }
func (c *ServeCmd) Aliases() []string { return nil }
func (c *ServeCmd) Synopsis() string  { return "Run the offline proxy" }
func (c *ServeCmd) Usage() string     { return "tasksync serve [--addr <host:port>]" }
func (c *ServeCmd) NeedsWorker() bool { return true }

func (c *ServeCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.addr, "addr", "", "")
}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	addr := c.addr
	if addr == "" {
		addr = w.Settings().Serve.Addr
	}

	srv, err := proxy.New(w)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	if _, err := w.Install(ctx); err != nil {
		w.Logger().Warn("cache warm failed", "error", err)
	}
	if _, err := w.Activate(); err != nil {
		w.Logger().Warn("cache sweep failed", "error", err)
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "serving %s on http://%s\n", w.Settings().Server.URL, addr)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
	g.Go(func() error { return w.Run(ctx) })
	if err := g.Wait(); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
