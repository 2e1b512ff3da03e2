// Package worker builds the offline subsystem once and owns its lifecycle:
// install (warm the cache), activate (sweep old caches), run (watch
// connectivity and fire pending syncs) and close.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"tasksync/internal/backend/googletasks"
	"tasksync/internal/backend/rest"
	"tasksync/internal/background"
	"tasksync/internal/cache"
	"tasksync/internal/config"
	"tasksync/internal/connectivity"
	"tasksync/internal/controller"
	"tasksync/internal/intercept"
	"tasksync/internal/logging"
	"tasksync/internal/queue"
	"tasksync/internal/service"
	"tasksync/internal/syncer"
)

// Worker holds every component of the offline subsystem.
type Worker struct {
	cfg    *config.Config
	logger *slog.Logger

	net       http.RoundTripper
	transport *intercept.Transport
	caches    *cache.Storage
	current   *cache.Cache
	queue     *queue.Queue
	bg        *background.Manager
	checker   connectivity.Checker
	monitor   *connectivity.Monitor
	svc       service.Service
	syncer    *syncer.Coordinator
	ctl       *controller.Controller
}

type options struct {
	logger  *slog.Logger
	svc     service.Service
	checker connectivity.Checker
	net     http.RoundTripper
}

// Option customises New.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithService replaces the configured backend.
func WithService(svc service.Service) Option {
	return func(o *options) { o.svc = svc }
}

// WithChecker replaces the connectivity monitor.
func WithChecker(c connectivity.Checker) Option {
	return func(o *options) { o.checker = c }
}

// WithTransport sets the network transport underneath the interceptor.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.net = rt }
}

// New opens the stores and wires the components. The queue finishes
// initialising in the background; a queue left over from an earlier run
// re-arms the sync registration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Worker, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.net == nil {
		o.net = http.DefaultTransport
	}
	if cfg.Offline {
		o.net = intercept.Offline()
		if o.checker == nil {
			o.checker = connectivity.Static(false)
		}
	}

	s := cfg.Settings
	w := &Worker{cfg: cfg, logger: o.logger, net: o.net}

	caches, err := cache.Open(cfg.CachePath(), o.logger)
	if errors.Is(err, cache.ErrLocked) {
		o.logger.Warn("cache store in use, using a temporary cache for this run", "path", cfg.CachePath())
		caches, err = cache.OpenTemp(o.logger)
	}
	if err != nil {
		return nil, err
	}
	w.caches = caches
	if w.current, err = caches.Named(s.Cache.Name); err != nil {
		caches.Close()
		return nil, err
	}

	rules, err := Rules(s)
	if err != nil {
		caches.Close()
		return nil, err
	}
	w.transport = intercept.New(o.net, caches, w.current, rules, o.logger)

	w.queue = queue.New(cfg.QueuePath(), o.logger)
	w.queue.Open(ctx)

	w.svc = o.svc
	if w.svc == nil {
		if w.svc, err = w.backend(ctx); err != nil {
			w.Close()
			return nil, err
		}
	}

	w.checker = o.checker
	if w.checker == nil {
		w.monitor = connectivity.New(&http.Client{Transport: o.net}, s.Server.URL, connectivity.Options{
			Interval:   s.Sync.ProbeInterval,
			Timeout:    s.Sync.ProbeTimeout,
			MaxBackoff: s.Sync.MaxBackoff,
		}, o.logger)
		w.checker = w.monitor
	}

	w.bg = background.New(o.logger)
	w.syncer = syncer.New(w.queue, w.svc, s.Sync.Parallelism, o.logger)
	w.bg.Handle(s.Sync.Tag, w.syncer.Handle)
	w.ctl = controller.New(w.svc, w.queue, w.bg, w.checker, s.Sync.Tag, o.logger)

	w.rearm(ctx)
	return w, nil
}

func (w *Worker) backend(ctx context.Context) (service.Service, error) {
	s := w.cfg.Settings
	switch s.Backend {
	case config.BackendGoogleTasks:
		return googletasks.New(ctx, w.cfg, w.transport)
	default:
		return rest.New(rest.Options{
			ServerURL: s.Server.URL,
			APIPrefix: s.Server.APIPrefix,
			CSRFToken: s.Server.CSRFToken,
			Transport: w.transport,
			Timeout:   s.Server.Timeout,
		}, w.logger)
	}
}

// Rules derives the interceptor rules from the settings.
func Rules(s config.Settings) (intercept.Rules, error) {
	root, err := intercept.Resolve(s.Server.URL, "/")
	if err != nil {
		return intercept.Rules{}, err
	}
	var icon string
	if s.Cache.FallbackIcon != "" {
		if icon, err = intercept.Resolve(s.Server.URL, s.Cache.FallbackIcon); err != nil {
			return intercept.Rules{}, err
		}
	}
	var icons []string
	for _, p := range s.Cache.Patterns {
		if strings.Contains(p, "icon") {
			icons = append(icons, p)
		}
	}
	patterns, api := s.Cache.Patterns, "api/tasks/"
	if s.Backend == config.BackendGoogleTasks {
		patterns = append(slices.Clone(patterns), googletasks.ListsPath)
		api = googletasks.ListsPath
	}
	return intercept.Rules{
		Strategy:     s.Cache.Strategy,
		Patterns:     patterns,
		APIPath:      api,
		Root:         root,
		Icon:         icon,
		IconPatterns: icons,
	}, nil
}

func (w *Worker) rearm(ctx context.Context) {
	n, err := w.queue.Len(ctx)
	if err != nil {
		w.logger.Warn("task queue unavailable", "error", err)
		return
	}
	if n > 0 {
		w.bg.Register(w.cfg.Settings.Sync.Tag)
		w.logger.Debug("pending tasks found, sync registered", "count", n)
	}
}

// UseCSRFToken hands a CSRF token seen on an incoming write to the backend,
// when the backend uses one. Queued writes replay with the latest token.
func (w *Worker) UseCSRFToken(token string) {
	if c, ok := w.svc.(interface{ SetCSRFToken(string) }); ok {
		c.SetCSRFToken(token)
	}
}

// Controller returns the task operations.
func (w *Worker) Controller() *controller.Controller { return w.ctl }

// Transport returns the caching transport.
func (w *Worker) Transport() http.RoundTripper { return w.transport }

// Background returns the sync registrations.
func (w *Worker) Background() *background.Manager { return w.bg }

// Logger returns the worker's logger.
func (w *Worker) Logger() *slog.Logger { return w.logger }

// Settings returns the loaded settings.
func (w *Worker) Settings() config.Settings { return w.cfg.Settings }

// Online reports the connectivity state.
func (w *Worker) Online(ctx context.Context) bool { return w.checker.Online(ctx) }

// Install warms the current cache with the asset manifest, bypassing the
// interceptor. It returns how many assets were stored.
func (w *Worker) Install(ctx context.Context) (int, error) {
	s := w.cfg.Settings
	client := &http.Client{Transport: w.net, Timeout: s.Server.Timeout}
	return intercept.Warm(ctx, w.current, client, s.Server.URL, s.Cache.Assets, w.logger)
}

// Activate deletes every cache but the current one and returns their names.
func (w *Worker) Activate() ([]string, error) {
	return w.caches.Sweep(w.cfg.Settings.Cache.Name)
}

// Caches returns the cache store.
func (w *Worker) Caches() *cache.Storage { return w.caches }

// Sync fires the sync registration now and returns what the pass did.
func (w *Worker) Sync(ctx context.Context) (syncer.Result, error) {
	var res syncer.Result
	err := w.bg.Run(ctx, w.cfg.Settings.Sync.Tag, func(ctx context.Context) error {
		var err error
		if res, err = w.syncer.Sync(ctx); err != nil {
			return err
		}
		if n := res.Failed(); n > 0 {
			return fmt.Errorf("%w: %d failed", syncer.ErrIncomplete, n)
		}
		return nil
	})
	return res, err
}

// Run watches connectivity until ctx ends. Pending syncs fire when the
// backend becomes reachable, as soon as one is registered while online, and
// again on every probe interval until they succeed. Without a monitor,
// registrations fire whenever the checker reports online.
func (w *Worker) Run(ctx context.Context) error {
	fire := func(ctx context.Context) {
		if len(w.bg.Tags()) == 0 {
			return
		}
		if err := w.bg.FireAll(ctx); err != nil {
			w.logger.Warn("background sync incomplete", "error", err)
		}
	}
	if w.monitor == nil {
		return w.runChecker(ctx, fire)
	}
	err := w.monitor.Watch(ctx, w.bg.Wake(), fire)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) runChecker(ctx context.Context, fire func(context.Context)) error {
	interval := w.cfg.Settings.Sync.ProbeInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if w.checker.Online(ctx) {
			fire(ctx)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-w.bg.Wake():
		case <-ticker.C:
		}
	}
}

// Status describes the subsystem state.
type Status struct {
	Online        bool
	Pending       int
	PendingErr    error
	Registered    []string
	Caches        []string
	SchemaVersion int64
	// CacheTemporary is set when another process holds the cache store.
	CacheTemporary bool
}

// Status collects the current state.
func (w *Worker) Status(ctx context.Context) Status {
	st := Status{
		Online:         w.checker.Online(ctx),
		Registered:     w.bg.Tags(),
		CacheTemporary: w.caches.Temporary(),
	}
	st.Pending, st.PendingErr = w.queue.Len(ctx)
	st.SchemaVersion = w.queue.Version()
	if names, err := w.caches.Keys(); err == nil {
		st.Caches = names
	} else {
		w.logger.Warn("failed to list caches", "error", err)
	}
	return st
}

// Close releases the stores.
func (w *Worker) Close() error {
	var errs []error
	if w.queue != nil {
		errs = append(errs, w.queue.Close())
	}
	if w.caches != nil {
		errs = append(errs, w.caches.Close())
	}
	return errors.Join(errs...)
}
