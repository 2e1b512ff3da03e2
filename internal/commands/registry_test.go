package commands

import (
	"context"
	"flag"
	"io"
	"testing"

	"tasksync/internal/config"
	"tasksync/internal/worker"
)

type stubCmd struct {
	name    string
	aliases []string
}

func (c *stubCmd) Name() string                   { return c.name }
func (c *stubCmd) Aliases() []string              { return c.aliases }
func (c *stubCmd) Synopsis() string               { return "" }
func (c *stubCmd) Usage() string                  { return "" }
func (c *stubCmd) NeedsWorker() bool              { return false }
func (c *stubCmd) RegisterFlags(fs *flag.FlagSet) {}
func (c *stubCmd) Run(context.Context, *config.Config, *worker.Worker, []string, io.Writer, io.Writer) int {
	return 0
}

func TestRegistry_FindByNameAndAlias(t *testing.T) {
	r := NewRegistry()
	list := &stubCmd{name: "list", aliases: []string{"ls"}}
	if err := r.Register(list); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, name := range []string{"list", "ls"} {
		got, ok := r.Find(name)
		if !ok || got != list {
			t.Errorf("Find(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := r.Find("rm"); ok {
		t.Error("Find(rm) should miss")
	}
}

func TestRegistry_Duplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubCmd{name: "list", aliases: []string{"ls"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := r.Register(&stubCmd{name: "list"})
	if err == nil || err.Error() != "command already registered: list" {
		t.Errorf("duplicate name error = %v", err)
	}

	err = r.Register(&stubCmd{name: "cache", aliases: []string{"ls"}})
	if err == nil || err.Error() != "command alias already registered: ls" {
		t.Errorf("duplicate alias error = %v", err)
	}
	// A rejected command leaves nothing behind.
	if _, ok := r.Find("cache"); ok {
		t.Error("rejected command must not be registered")
	}
}

func TestRegistry_AllSortedUnique(t *testing.T) {
	r := NewRegistry()
	for _, c := range []*stubCmd{{name: "sync"}, {name: "add", aliases: []string{"a"}}, {name: "list", aliases: []string{"ls"}}} {
		if err := r.Register(c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	var names []string
	for _, c := range r.All() {
		names = append(names, c.Name())
	}
	if got, want := len(names), 3; got != want {
		t.Fatalf("All() returned %d commands, want %d", got, want)
	}
	for i, want := range []string{"add", "list", "sync"} {
		if names[i] != want {
			t.Errorf("All()[%d] = %s, want %s", i, names[i], want)
		}
	}
}

func TestDefaultRegistry_WorkerCommands(t *testing.T) {
	noWorker := map[string]bool{"help": true, "version": true, "init": true, "login": true, "logout": true}
	for _, c := range DefaultRegistry.All() {
		if c.NeedsWorker() == noWorker[c.Name()] {
			t.Errorf("%s: NeedsWorker() = %v", c.Name(), c.NeedsWorker())
		}
	}
}
