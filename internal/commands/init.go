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
	Register(&InitCmd{})
}

// InitCmd writes a default config.yaml.
type InitCmd struct {
	force bool
}

// SetForce overwrites an existing file (for testing).
func (c *InitCmd) SetForce(v bool) {
	c.force = v
}

func (c *InitCmd) Name() string      { return "init" }
func (c *InitCmd) Aliases() []string { return nil }
func (c *InitCmd) Synopsis() string  { return "Write a default config.yaml" }
func (c *InitCmd) Usage() string     { return "tasksync init [--force]" }
func (c *InitCmd) NeedsWorker() bool { return false }

func (c *InitCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "")
}

func (c *InitCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	if err := cfg.WriteDefault(c.force); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "wrote %s\n", cfg.SettingsPath())
	}
	return exitcode.Success
}
