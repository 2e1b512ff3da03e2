package cli_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tasksync/internal/cli"
	"tasksync/internal/commands"
	"tasksync/internal/config"
	"tasksync/internal/connectivity"
	"tasksync/internal/exitcode"
	"tasksync/internal/service"
	"tasksync/internal/testutil"
	"tasksync/internal/worker"
)

// testFactory builds workers over the given FakeService. Unless --offline
// is set the backend counts as reachable.
func testFactory(svc *testutil.FakeService) cli.WorkerFactory {
	return func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*worker.Worker, error) {
		opts := []worker.Option{worker.WithService(svc), worker.WithLogger(logger)}
		if !cfg.Offline {
			opts = append(opts, worker.WithChecker(connectivity.Static(true)))
		}
		return worker.New(ctx, cfg, opts...)
	}
}

func run(t *testing.T, d *cli.Dispatcher, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	code = d.Run(context.Background(), args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

	_, stderr, code := run(t, d, "unknowncmd")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: unknowncmd\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

	_, stderr, code := run(t, d, "--quiet")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: --quiet\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_HelpCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

	stdout, stderr, code := run(t, d, "help")

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Error("expected help output to contain 'Usage:'")
	}
}

func TestDispatcher_VersionCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

	stdout, stderr, code := run(t, d, "version")

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "tasksync 0.1.0\n" {
		t.Errorf("expected 'tasksync 0.1.0\\n', got %q", stdout)
	}
}

func TestDispatcher_FlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"help", "--unknown"}, "error: unknown flag: -unknown\n"},
		{"missing value", []string{"serve", "--addr"}, "error: flag needs an argument: -addr\n"},
		{"bad value", []string{"init", "--force=maybe"}, "error: invalid boolean value \"maybe\" for -force: parse error\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

			_, stderr, code := run(t, d, tt.args...)

			if code != exitcode.UserError {
				t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
			}
			if stderr != tt.want {
				t.Errorf("expected %q, got %q", tt.want, stderr)
			}
		})
	}
}

func TestDispatcher_DefaultsToList(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	svc := testutil.NewFakeService()
	svc.AddTask("Buy milk")
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(svc))

	stdout, stderr, code := run(t, d)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (stderr %q)", exitcode.Success, code, stderr)
	}
	if stdout != "   1  Buy milk\n" {
		t.Errorf("unexpected output %q", stdout)
	}
}

// The queue outlives a single invocation: a task added offline shows up as
// pending in the next run and is sent by sync.
func TestDispatcher_OfflineAddAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	svc := testutil.NewFakeService()
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(svc))

	stdout, stderr, code := run(t, d, "add", "--config", dir, "--offline", "Buy", "milk")
	if code != exitcode.Success || stdout != "queued\n" {
		t.Fatalf("add: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}

	stdout, _, _ = run(t, d, "list", "--config", dir, "--pending")
	if stdout != "  q1  Buy milk\n" {
		t.Errorf("expected pending task, got %q", stdout)
	}

	stdout, stderr, code = run(t, d, "sync", "--config", dir)
	if code != exitcode.Success || stdout != "synced 1, failed 0\n" {
		t.Fatalf("sync: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}
	if tasks := svc.Tasks(); len(tasks) != 1 || tasks[0].Name != "Buy milk" {
		t.Errorf("expected task on backend, got %+v", tasks)
	}
}

func TestDispatcher_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		want     string
	}{
		{
			name:     "invalid backend",
			settings: "backend: nope\n",
			want:     "error: config error: invalid setting backend: failed \"oneof\"\n",
		},
		{
			name:     "googletasks without client",
			settings: "backend: googletasks\n",
			want:     "error: oauth_client.json not found in $DIR\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, config.SettingsFile), []byte(tt.settings), 0600); err != nil {
				t.Fatal(err)
			}
			d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

			_, stderr, code := run(t, d, "list", "--config", dir)

			if code != exitcode.AuthError {
				t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
			}
			if want := strings.ReplaceAll(tt.want, "$DIR", dir); stderr != want {
				t.Errorf("expected %q, got %q", want, stderr)
			}
		})
	}
}

func TestDispatcher_GoogleTasksNotLoggedIn(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, config.SettingsFile), []byte("backend: googletasks\n"), 0600)
	os.WriteFile(filepath.Join(dir, config.OAuthClientFile), []byte(`{}`), 0600)
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

	_, stderr, code := run(t, d, "status", "--config", dir)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if stderr != "error: not logged in (run: tasksync login)\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestDispatcher_FactoryErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"auth", fmt.Errorf("invalid token.json: %w", service.ErrAuth), exitcode.AuthError},
		{"other", fmt.Errorf("failed to open cache store"), exitcode.BackendError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := cli.NewDispatcher(commands.DefaultRegistry,
				func(context.Context, *config.Config, *slog.Logger) (*worker.Worker, error) {
					return nil, tt.err
				})

			_, stderr, code := run(t, d, "status", "--config", t.TempDir())

			if code != tt.wantCode {
				t.Errorf("expected exit code %d, got %d (stderr %q)", tt.wantCode, code, stderr)
			}
		})
	}
}

func TestDispatcher_NoWorkerForInit(t *testing.T) {
	dir := t.TempDir()
	d := cli.NewDispatcher(commands.DefaultRegistry,
		func(context.Context, *config.Config, *slog.Logger) (*worker.Worker, error) {
			t.Fatal("init must not build a worker")
			return nil, nil
		})

	_, stderr, code := run(t, d, "init", "--config", dir)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (stderr %q)", exitcode.Success, code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, config.SettingsFile)); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}
}
