// Package connectivity tells whether the task backend is reachable.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// Checker reports whether the backend can currently be reached.
type Checker interface {
	Online(ctx context.Context) bool
}

// Static is a Checker with a fixed answer.
type Static bool

// Online implements Checker.
func (s Static) Online(context.Context) bool { return bool(s) }

var errOffline = errors.New("backend unreachable")

// Options tune probing. Zero values take defaults.
type Options struct {
	// Interval is how long a probe result is trusted, and the watch period.
	Interval time.Duration
	// Timeout bounds a single probe.
	Timeout time.Duration
	// BaseBackoff is the first wait while offline; it doubles up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 15 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	return o
}

// Monitor probes a URL with HEAD requests. Any HTTP response counts as
// online; only transport failures count as offline.
type Monitor struct {
	client *http.Client
	url    string
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	checked time.Time
	online  bool
}

// New returns a Monitor probing url with client.
func New(client *http.Client, url string, opts Options, logger *slog.Logger) *Monitor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Monitor{client: client, url: url, opts: opts.withDefaults(), logger: logger}
}

// Online returns the last probe result while it is fresh, probing otherwise.
func (m *Monitor) Online(ctx context.Context) bool {
	m.mu.Lock()
	if !m.checked.IsZero() && time.Since(m.checked) < m.opts.Interval {
		online := m.online
		m.mu.Unlock()
		return online
	}
	m.mu.Unlock()
	return m.Probe(ctx)
}

// Probe checks the backend now and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	online := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err == nil {
		resp, err := m.client.Do(req)
		if err == nil {
			resp.Body.Close()
			online = true
		} else {
			m.logger.Debug("probe failed", "url", m.url, "error", err)
		}
	}

	m.mu.Lock()
	m.checked = time.Now()
	m.online = online
	m.mu.Unlock()
	return online
}

// Watch follows connectivity until ctx ends and calls fire while the
// backend is reachable: once at start, on every offline to online
// transition, after every periodic probe that finds it online, and whenever
// wake delivers. A nil wake is never ready. While offline, probes back off
// exponentially.
func (m *Monitor) Watch(ctx context.Context, wake <-chan struct{}, fire func(context.Context)) error {
	online := m.Probe(ctx)
	if online {
		fire(ctx)
	} else {
		m.logger.Info("backend unreachable, waiting for connectivity", "url", m.url)
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		if !online {
			if err := m.waitOnline(ctx); err != nil {
				return err
			}
			online = true
			m.logger.Info("connectivity restored", "url", m.url)
			fire(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
			online = m.Online(ctx)
		case <-ticker.C:
			online = m.Probe(ctx)
		}
		if !online {
			m.logger.Info("connectivity lost", "url", m.url)
			continue
		}
		fire(ctx)
	}
}

func (m *Monitor) waitOnline(ctx context.Context) error {
	b := retry.WithCappedDuration(m.opts.MaxBackoff, retry.NewExponential(m.opts.BaseBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if m.Probe(ctx) {
			return nil
		}
		return retry.RetryableError(errOffline)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
