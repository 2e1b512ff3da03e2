// Package rest implements service.Service against the task REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"tasksync/internal/service"
)

const (
	// CSRFCookie is the cookie the backend stores its CSRF token in.
	CSRFCookie = "csrftoken"

	// HeaderCSRF carries the CSRF token on writes.
	HeaderCSRF = "X-CSRFToken"

	// HeaderIdempotency carries the client reference of a replayed write.
	HeaderIdempotency = "X-Idempotency-Key"

	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 5 * time.Second

	noCachedDataMessage = "No cached data available."
)

// ErrNoCachedData is returned when a read fails offline and nothing was cached.
var ErrNoCachedData = errors.New("no cached data available")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
}

// Unwrap classifies client errors so callers can test with errors.Is.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return service.ErrAuth
	case e.Status >= 400 && e.Status < 500:
		return service.ErrRejected
	}
	return nil
}

// Options configure a Client.
type Options struct {
	// ServerURL is the backend origin, e.g. http://localhost:8000.
	ServerURL string
	// APIPrefix is the path the task app is mounted under, e.g. /tasks/.
	APIPrefix string
	// CSRFToken seeds the csrftoken cookie when set.
	CSRFToken string
	// Transport carries every request; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
}

// Client implements service.Service over HTTP.
type Client struct {
	http   *http.Client
	origin *url.URL
	base   *url.URL
	logger *slog.Logger
}

// New creates a REST client.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	origin, err := url.Parse(strings.TrimSuffix(opts.ServerURL, "/") + "/")
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", opts.ServerURL)
	}
	prefix := strings.Trim(opts.APIPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	base := origin.ResolveReference(&url.URL{Path: prefix})

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if opts.CSRFToken != "" {
		jar.SetCookies(origin, []*http.Cookie{{Name: CSRFCookie, Value: opts.CSRFToken, Path: "/"}})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http: &http.Client{
			Transport: opts.Transport,
			Jar:       jar,
			Timeout:   timeout,
		},
		origin: origin,
		base:   base,
		logger: logger,
	}, nil
}

// Base returns the absolute URL the task API paths are resolved against.
func (c *Client) Base() string {
	return c.base.String()
}

// URL resolves an API path such as "api/tasks/" against the base.
func (c *Client) URL(path string) string {
	return c.base.ResolveReference(&url.URL{Path: path}).String()
}

// SetCSRFToken replaces the csrftoken cookie used by later writes.
// An empty token is ignored.
func (c *Client) SetCSRFToken(token string) {
	if token == "" {
		return
	}
	c.http.Jar.SetCookies(c.origin, []*http.Cookie{{Name: CSRFCookie, Value: token, Path: "/"}})
}

// CSRFToken returns the current csrftoken cookie, or "" when there is none.
func (c *Client) CSRFToken() string {
	for _, ck := range c.http.Jar.Cookies(c.origin) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

type wireTask struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Completed bool        `json:"completed"`
}

func (w wireTask) task() service.Task {
	return service.Task{ID: w.ID.String(), Name: w.Name, Completed: w.Completed}
}

// ListTasks fetches GET api/tasks/.
func (c *Client) ListTasks(ctx context.Context) ([]service.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL("api/tasks/"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "list tasks")
	if err != nil {
		return nil, err
	}

	var wire []wireTask
	if err := json.Unmarshal(body, &wire); err != nil {
		// An offline fallback may carry an error object instead of a list.
		if msg := errorMessage(body); msg == noCachedDataMessage {
			return nil, ErrNoCachedData
		}
		return nil, fmt.Errorf("list tasks: invalid response: %w", err)
	}

	tasks := make([]service.Task, 0, len(wire))
	for _, w := range wire {
		tasks = append(tasks, w.task())
	}
	return tasks, nil
}

// CreateTask sends POST api/tasks/create/ with body {"task": name}.
func (c *Client) CreateTask(ctx context.Context, r service.CreateRequest) (service.Task, error) {
	payload, err := json.Marshal(map[string]string{"task": r.Name})
	if err != nil {
		return service.Task{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("api/tasks/create/"), bytes.NewReader(payload))
	if err != nil {
		return service.Task{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.CSRFToken(); token != "" {
		req.Header.Set(HeaderCSRF, token)
	}
	if r.Ref != "" {
		req.Header.Set(HeaderIdempotency, r.Ref)
	}

	body, err := c.do(req, "create task")
	if err != nil {
		return service.Task{}, err
	}

	var resp struct {
		Task wireTask `json:"task"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return service.Task{}, fmt.Errorf("create task: invalid response: %w", err)
	}
	return resp.Task.task(), nil
}

// DeleteTask sends DELETE api/tasks/delete/{id}/.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.URL("api/tasks/delete/"+url.PathEscape(id)+"/"), nil)
	if err != nil {
		return err
	}
	if token := c.CSRFToken(); token != "" {
		req.Header.Set(HeaderCSRF, token)
	}
	_, err = c.do(req, "delete task")
	return err
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	c.logger.Debug("api call", "op", op, "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(body)
		if msg == noCachedDataMessage {
			return nil, ErrNoCachedData
		}
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} from a response body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error
}
