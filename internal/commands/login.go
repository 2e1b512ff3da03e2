package commands

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"tasksync/internal/backend/googletasks"
	"tasksync/internal/config"
	"tasksync/internal/exitcode"
	"tasksync/internal/worker"
)

const (
	oauthCallbackTimeout = 5 * time.Minute
	tokenExchangeTimeout = 30 * time.Second

	// The callback server tries oauthStartPort and the next few ports.
	oauthStartPort       = 8085
	oauthMaxPortAttempts = 5
)

func init() {
	Register(&LoginCmd{})
}

// LoginCmd implements the login command for the googletasks backend.
type LoginCmd struct{}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Authenticate with Google Tasks" }
func (c *LoginCmd) Usage() string     { return "tasksync login [common flags]" }
func (c *LoginCmd) NeedsWorker() bool { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, w *worker.Worker, args []string, out, errOut io.Writer) int {
	if !cfg.HasOAuthClient() {
		printOAuthSetup(cfg, errOut)
		return exitcode.AuthError
	}

	if cfg.HasToken() && isTokenValid(cfg) {
		if !cfg.Quiet {
			fmt.Fprintln(out, "already logged in")
		}
		return exitcode.Success
	}

	oauthConfig, err := loadOAuthConfig(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	token, err := authorize(ctx, oauthConfig, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}
	if err := saveToken(cfg.TokenPath(), token); err != nil {
		fmt.Fprintf(errOut, "error: failed to save token: %v\n", err)
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

func printOAuthSetup(cfg *config.Config, errOut io.Writer) {
	fmt.Fprintf(errOut, "error: %s not found in %s\n\n", config.OAuthClientFile, cfg.Dir)
	fmt.Fprintln(errOut, "The googletasks backend needs OAuth credentials:")
	fmt.Fprintln(errOut, "")
	fmt.Fprintln(errOut, "1. Go to https://console.cloud.google.com/apis/credentials")
	fmt.Fprintln(errOut, "2. Create a project (or select an existing one)")
	fmt.Fprintln(errOut, "3. Enable the Google Tasks API:")
	fmt.Fprintln(errOut, "   https://console.cloud.google.com/apis/library/tasks.googleapis.com")
	fmt.Fprintln(errOut, "4. Create an OAuth client ID of type 'Desktop app' and download the JSON file")
	fmt.Fprintln(errOut, "5. Save it as:")
	fmt.Fprintf(errOut, "   %s\n", cfg.OAuthClientPath())
	fmt.Fprintln(errOut, "")
	fmt.Fprintln(errOut, "Then run 'tasksync login' again.")
}

func loadOAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", config.OAuthClientFile, err)
	}
	oauthConfig, err := google.ConfigFromJSON(clientJSON, googletasks.Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.OAuthClientFile, err)
	}
	return oauthConfig, nil
}

// authorize runs the PKCE authorization code flow against a local callback
// server and exchanges the code for a token.
func authorize(ctx context.Context, oauthConfig *oauth2.Config, errOut io.Writer) (*oauth2.Token, error) {
	port, listener, err := findAvailablePort()
	if err != nil {
		return nil, errors.New("could not bind to local port for OAuth callback")
	}
	defer listener.Close()

	oauthConfig.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	fmt.Fprintln(errOut, "Open this URL in your browser:")
	fmt.Fprintln(errOut, oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	))

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			select {
			case errCh <- errors.New("no code in callback"):
			default:
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You may close this window.</p></body></html>")
		select {
		case codeCh <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(oauthCallbackTimeout):
		return nil, errors.New("oauth callback timed out")
	case <-ctx.Done():
		return nil, errors.New("cancelled")
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()
	token, err := oauthConfig.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// findAvailablePort tries to find an available port starting from oauthStartPort.
func findAvailablePort() (int, net.Listener, error) {
	for i := 0; i < oauthMaxPortAttempts; i++ {
		port := oauthStartPort + i
		listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			return port, listener, nil
		}
	}
	return 0, nil, errors.New("no available port found")
}

// isTokenValid reports whether the stored token carries a refresh token
// that still yields an access token.
func isTokenValid(cfg *config.Config) bool {
	data, err := os.ReadFile(cfg.TokenPath())
	if err != nil {
		return false
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil || token.RefreshToken == "" {
		return false
	}

	oauthConfig, err := loadOAuthConfig(cfg)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = oauthConfig.TokenSource(ctx, &token).Token()
	return err == nil
}

// saveToken saves an OAuth token to a file with mode 0600.
func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
