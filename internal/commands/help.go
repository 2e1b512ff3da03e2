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
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "tasksync help" }
func (c *HelpCmd) NeedsWorker() bool { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  tasksync                                 List tasks and queued tasks
  tasksync list [common flags] [--pending]
  tasksync add [common flags] <name...>    Create a task (queued when offline)
  tasksync create [common flags] <name...>
  tasksync rm [common flags] <n|qN>        Delete a task or a queued task
  tasksync sync [common flags]             Send queued tasks to the backend
  tasksync status [common flags]
  tasksync cache [common flags] warm|sweep|ls [name]
  tasksync serve [common flags] [--addr <host:port>]
  tasksync init [--force]                  Write a default config.yaml
  tasksync login [common flags]
  tasksync logout [common flags]
  tasksync help
  tasksync version

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
  --offline        Treat the backend as unreachable
`
