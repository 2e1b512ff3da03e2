// Package googletasks implements the service.Service interface using Google Tasks API.
package googletasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"tasksync/internal/config"
	"tasksync/internal/service"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks per page.
	PageSize = 100

	// APITimeout is the timeout for API calls.
	APITimeout = 5 * time.Second

	// Scope is the OAuth scope requested by login.
	Scope = "https://www.googleapis.com/auth/tasks"

	// ListsPath prefixes every task list read.
	ListsPath = "/tasks/v1/lists/"

	statusCompleted = "completed"
)

// Client implements service.Service on the user's default Google Tasks list.
type Client struct {
	svc *tasks.Service
}

// New creates a new Google Tasks client.
// Requires oauth_client.json and token.json to exist. base carries the
// requests underneath the OAuth layer; nil uses http.DefaultTransport.
func New(ctx context.Context, cfg *config.Config, base http.RoundTripper) (*Client, error) {
	// Load OAuth client config
	clientJSON, err := os.ReadFile(cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(clientJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}

	tokenData, err := os.ReadFile(cfg.TokenPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read token.json: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	}

	// Token source refreshes on its own.
	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, &token))

	return NewWithHTTPClient(ctx, httpClient)
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func toTask(t *tasks.Task) service.Task {
	return service.Task{
		ID:        t.Id,
		Name:      t.Title,
		Completed: t.Status == statusCompleted,
	}
}

// ListTasks returns every task of the default list in API order.
func (c *Client) ListTasks(ctx context.Context) ([]service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var result []service.Task
	err := c.svc.Tasks.List(DefaultListID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, t := range resp.Items {
				result = append(result, toTask(t))
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

// CreateTask inserts a task into the default list.
func (c *Client) CreateTask(ctx context.Context, req service.CreateRequest) (service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	created, err := c.svc.Tasks.Insert(DefaultListID, &tasks.Task{Title: req.Name}).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}
	return toTask(created), nil
}

// DeleteTask deletes a task from the default list.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	if err := c.svc.Tasks.Delete(DefaultListID, id).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	return nil
}

// wrapError maps API errors onto the service sentinels with user-friendly messages.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("token expired or revoked (run: tasksync login): %w", service.ErrAuth)
		case apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("not found: %w", service.ErrRejected)
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return fmt.Errorf("%s: %w", apiErr.Message, service.ErrRejected)
		}
	}

	return err
}
