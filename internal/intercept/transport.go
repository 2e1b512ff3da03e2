// Package intercept routes outgoing HTTP reads through the cache store.
//
// Transport is the Go counterpart of a service worker's fetch handler: GET
// requests are answered from the cache when possible, whitelisted responses
// are captured on the way back, and network failures are turned into
// offline fallbacks instead of errors. Other methods pass straight through.
package intercept

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tasksync/internal/cache"
)

// Strategies accepted by Rules.Strategy.
const (
	CacheFirst   = "cache-first"
	NetworkFirst = "network-first"
)

// ErrOffline is returned by Offline for every request.
var ErrOffline = errors.New("network unavailable (offline mode)")

// Rules decide what the transport caches and how it falls back.
type Rules struct {
	Strategy string
	// Patterns are URL substrings whose successful GET responses are stored.
	Patterns []string
	// APIPath marks task-API reads, which fall back to the JSON error payload.
	APIPath string
	// Root is the absolute URL of the document served to offline navigations.
	Root string
	// Icon is the absolute URL of the fallback icon.
	Icon string
	// IconPatterns mark icon requests.
	IconPatterns []string
}

// Cacheable reports whether a successful response for rawURL should be stored.
func (r Rules) Cacheable(rawURL string) bool {
	for _, p := range r.Patterns {
		if p != "" && strings.Contains(rawURL, p) {
			return true
		}
	}
	return false
}

func (r Rules) isAPI(rawURL string) bool {
	return r.APIPath != "" && strings.Contains(rawURL, r.APIPath)
}

func (r Rules) isIcon(rawURL string) bool {
	for _, p := range r.IconPatterns {
		if p != "" && strings.Contains(rawURL, p) {
			return true
		}
	}
	return false
}

// Transport is an http.RoundTripper backed by a cache store.
type Transport struct {
	base    http.RoundTripper
	store   *cache.Storage
	current *cache.Cache
	rules   Rules
	logger  *slog.Logger
}

// New wraps base. Responses are written to current and looked up across
// every cache in store.
func New(base http.RoundTripper, store *cache.Storage, current *cache.Cache, rules Rules, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if rules.Strategy == "" {
		rules.Strategy = CacheFirst
	}
	return &Transport{
		base:    base,
		store:   store,
		current: current,
		rules:   rules,
		logger:  logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != "" && req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	if t.rules.Strategy != NetworkFirst {
		if resp, ok := t.store.Match(req); ok {
			t.logger.Debug("served from cache", "url", req.URL.String())
			return resp, nil
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		// A caller that gave up gets its error back. Deadlines, including
		// http.Client.Timeout, are network failures and fall back.
		if errors.Is(req.Context().Err(), context.Canceled) {
			return nil, err
		}
		t.logger.Debug("network request failed", "url", req.URL.String(), "error", err)
		return t.fallback(req), nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 && t.rules.Cacheable(req.URL.String()) {
		t.capture(req, resp)
	}
	return resp, nil
}

// capture stores resp in the current cache. The caller keeps an
// equivalent body.
func (t *Transport) capture(req *http.Request, resp *http.Response) {
	snap, err := cache.NewSnapshot(resp)
	if err != nil {
		t.logger.Warn("failed to read response for caching", "url", req.URL.String(), "error", err)
		return
	}
	if err := t.current.Put(req, snap); err != nil {
		t.logger.Warn("failed to cache response", "url", req.URL.String(), "error", err)
		return
	}
	t.logger.Debug("cached response", "url", req.URL.String())
}

func (t *Transport) fallback(req *http.Request) *http.Response {
	rawURL := req.URL.String()

	if t.rules.Strategy == NetworkFirst {
		if resp, ok := t.store.Match(req); ok {
			return resp
		}
	}

	if t.rules.isAPI(rawURL) {
		if resp, ok := t.store.Match(req); ok {
			return resp
		}
		return noCachedData(req)
	}

	if req.Header.Get("Sec-Fetch-Mode") == "navigate" && t.rules.Root != "" {
		if resp, ok := t.matchURL(req, t.rules.Root); ok {
			return resp
		}
	}

	if t.rules.isIcon(rawURL) && t.rules.Icon != "" {
		if resp, ok := t.matchURL(req, t.rules.Icon); ok {
			return resp
		}
	}

	return offlinePage(req)
}

func (t *Transport) matchURL(orig *http.Request, rawURL string) (*http.Response, bool) {
	req, err := http.NewRequestWithContext(orig.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false
	}
	resp, ok := t.store.Match(req)
	if ok {
		resp.Request = orig
	}
	return resp, ok
}

type offline struct{}

func (offline) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, ErrOffline
}

// Offline returns a RoundTripper that fails every request, simulating a
// disconnected device.
func Offline() http.RoundTripper {
	return offline{}
}
