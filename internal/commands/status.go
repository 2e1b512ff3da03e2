package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/output"
	"tasksync/internal/worker"
)

func init() {
	Register(&StatusCmd{})
}

// StatusCmd prints connectivity, queue and cache state.
type StatusCmd struct{}

func (c *StatusCmd) Name() string      { return "status" }
func (c *StatusCmd) Aliases() []string { return nil }
func (c *StatusCmd) Synopsis() string  { return "Show offline state" }
func (c *StatusCmd) Usage() string     { return "tasksync status" }
func (c *StatusCmd) NeedsWorker() bool { return true }

func (c *StatusCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *StatusCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	st := w.Status(ctx)
	s := w.Settings()

	pending := strconv.Itoa(st.Pending)
	if st.PendingErr != nil {
		pending = fmt.Sprintf("unavailable (%v)", st.PendingErr)
	}

	output.FormatField(out, "backend", s.Backend)
	output.FormatField(out, "server", s.Server.URL)
	output.FormatField(out, "online", output.YesNo(st.Online))
	output.FormatField(out, "pending", pending)
	output.FormatField(out, "registered", output.List(st.Registered))
	current := s.Cache.Name + " (" + s.Cache.Strategy + ")"
	if st.CacheTemporary {
		current += " [temporary, store in use]"
	}
	output.FormatField(out, "cache", current)
	output.FormatField(out, "caches", output.List(st.Caches))
	output.FormatField(out, "schema", strconv.FormatInt(st.SchemaVersion, 10))
	return exitcode.Success
}
