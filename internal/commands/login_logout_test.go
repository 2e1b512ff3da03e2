package commands_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tasksync/internal/commands"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoginCommand_NoOAuthClient(t *testing.T) {
	cmd := &commands.LoginCmd{}

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{Dir: t.TempDir()}

	code := cmd.Run(context.Background(), cfg, nil, nil, &outBuf, &errBuf)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if outBuf.String() != "" {
		t.Errorf("expected no stdout, got %q", outBuf.String())
	}
	if !strings.Contains(errBuf.String(), "oauth_client.json not found") {
		t.Errorf("expected setup instructions, got %q", errBuf.String())
	}
	if !strings.Contains(errBuf.String(), cfg.OAuthClientPath()) {
		t.Errorf("expected the client file path in instructions, got %q", errBuf.String())
	}
}

// A stored token that cannot be refreshed must not count as logged in.
func TestLoginCommand_UnusableToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"no refresh token", `{"access_token":"expired","token_type":"Bearer"}`},
		{"corrupt", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, config.OAuthClientFile,
				`{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"]}}`)
			writeFile(t, dir, config.TokenFile, tt.token)

			var outBuf, errBuf bytes.Buffer
			cfg := &config.Config{Dir: dir}

			// Cancelled up front so the flow stops before waiting for a callback.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			code := (&commands.LoginCmd{}).Run(ctx, cfg, nil, nil, &outBuf, &errBuf)

			if outBuf.String() == "already logged in\n" {
				t.Error("should not say 'already logged in' with an unusable token")
			}
			if code != exitcode.AuthError {
				t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
			}
		})
	}
}

func TestLogoutCommand_OnlyRemovesToken(t *testing.T) {
	cmd := &commands.LogoutCmd{}

	dir := t.TempDir()
	oauthPath := writeFile(t, dir, config.OAuthClientFile, `{"installed":{"client_id":"test","client_secret":"test"}}`)
	tokenPath := writeFile(t, dir, config.TokenFile, `{"access_token":"test","refresh_token":"test"}`)
	settingsPath := writeFile(t, dir, config.SettingsFile, "backend: googletasks\n")

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{Dir: dir}

	code := cmd.Run(context.Background(), cfg, nil, nil, &outBuf, &errBuf)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if errBuf.String() != "" {
		t.Errorf("expected no stderr, got %q", errBuf.String())
	}
	if outBuf.String() != "ok\n" {
		t.Errorf("expected 'ok\\n', got %q", outBuf.String())
	}

	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Error("token.json should have been deleted")
	}
	for _, keep := range []string{oauthPath, settingsPath} {
		if _, err := os.Stat(keep); err != nil {
			t.Errorf("%s should NOT have been deleted", filepath.Base(keep))
		}
	}
}

func TestLogoutCommand_NotLoggedIn(t *testing.T) {
	tests := []struct {
		name    string
		quiet   bool
		wantOut string
	}{
		{"normal", false, "not logged in\n"},
		{"quiet", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var outBuf, errBuf bytes.Buffer
			cfg := &config.Config{Dir: t.TempDir(), Quiet: tt.quiet}

			code := (&commands.LogoutCmd{}).Run(context.Background(), cfg, nil, nil, &outBuf, &errBuf)

			if code != exitcode.Success {
				t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
			}
			if errBuf.String() != "" {
				t.Errorf("expected no stderr, got %q", errBuf.String())
			}
			if outBuf.String() != tt.wantOut {
				t.Errorf("expected %q, got %q", tt.wantOut, outBuf.String())
			}
		})
	}
}
