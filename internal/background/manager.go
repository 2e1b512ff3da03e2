// Package background keeps deferred work registrations keyed by tag.
//
// A tag is registered when work is left to do (a write was queued offline)
// and fired when the device is back online. Registering an already pending
// tag is a no-op. A handler that fails leaves its tag registered so the next
// trigger retries it.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrNoHandler is returned when firing a tag nobody handles.
var ErrNoHandler = errors.New("no handler for tag")

// Handler runs the work behind a tag.
type Handler func(ctx context.Context) error

type entry struct {
	run     sync.Mutex // serializes handler runs
	handler Handler
	pending bool
}

// Manager holds tag registrations and their handlers.
type Manager struct {
	mu     sync.Mutex
	tags   map[string]*entry
	wake   chan struct{}
	logger *slog.Logger
}

// New returns an empty Manager.
func New(logger *slog.Logger) *Manager {
	return &Manager{
		tags:   make(map[string]*entry),
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Wake receives a value after a tag is newly registered. Signals coalesce:
// several registrations before a receive deliver one value. A failed run
// that leaves its tag pending does not signal.
func (m *Manager) Wake() <-chan struct{} {
	return m.wake
}

func (m *Manager) get(tag string) *entry {
	e, ok := m.tags[tag]
	if !ok {
		e = &entry{}
		m.tags[tag] = e
	}
	return e
}

// Handle sets the handler for tag, replacing any previous one.
func (m *Manager) Handle(tag string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(tag).handler = h
}

// Register marks tag as pending. It reports whether the tag was newly
// registered.
func (m *Manager) Register(tag string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(tag)
	if e.pending {
		return false
	}
	e.pending = true
	m.logger.Debug("sync registered", "tag", tag)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// Registered reports whether tag is pending.
func (m *Manager) Registered(tag string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tags[tag]
	return ok && e.pending
}

// Tags returns the pending tags, sorted.
func (m *Manager) Tags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tags []string
	for tag, e := range m.tags {
		if e.pending {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Fire runs tag's handler now, whether or not the tag is pending.
func (m *Manager) Fire(ctx context.Context, tag string) error {
	m.mu.Lock()
	h := m.get(tag).handler
	m.mu.Unlock()
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, tag)
	}
	return m.Run(ctx, tag, h)
}

// Run runs h as tag's work. Runs of the same tag never overlap. On success
// the registration is cleared unless it was renewed while h ran; on failure
// it stays pending.
func (m *Manager) Run(ctx context.Context, tag string, h Handler) error {
	m.mu.Lock()
	e := m.get(tag)
	m.mu.Unlock()

	e.run.Lock()
	defer e.run.Unlock()

	m.mu.Lock()
	e.pending = false
	m.mu.Unlock()

	m.logger.Debug("sync fired", "tag", tag)
	if err := h(ctx); err != nil {
		m.mu.Lock()
		e.pending = true
		m.mu.Unlock()
		m.logger.Warn("sync failed, will retry", "tag", tag, "error", err)
		return err
	}
	return nil
}

// FireAll fires every pending tag that has a handler and joins the errors.
func (m *Manager) FireAll(ctx context.Context) error {
	var errs []error
	for _, tag := range m.Tags() {
		m.mu.Lock()
		h := m.tags[tag].handler
		m.mu.Unlock()
		if h == nil {
			continue
		}
		if err := m.Fire(ctx, tag); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}
