// Package proxy serves the offline subsystem over HTTP. Any client pointed
// at it gets the cache-backed reads and queued writes the browser would get
// from a service worker.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tasksync/internal/backend/rest"
	"tasksync/internal/queue"
	"tasksync/internal/service"
	"tasksync/internal/syncer"
	"tasksync/internal/worker"
)

// Server is the offline proxy.
type Server struct {
	w      *worker.Worker
	target *url.URL
	logger *slog.Logger
	proxy  *httputil.ReverseProxy
}

// New returns a proxy for the worker's backend.
func New(w *worker.Worker) (*Server, error) {
	s := w.Settings()
	target, err := url.Parse(s.Server.URL)
	if err != nil {
		return nil, err
	}
	srv := &Server{w: w, target: target, logger: w.Logger()}
	srv.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = target.Host
		},
		Transport:    w.Transport(),
		ErrorHandler: srv.proxyError,
	}
	return srv, nil
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	prefix := "/" + strings.Trim(s.w.Settings().Server.APIPrefix, "/")
	if prefix != "/" {
		prefix += "/"
	}
	r.Post(prefix+"api/tasks/create/", s.create)
	r.Post("/_sync", s.sync)
	r.Get("/_status", s.status)
	r.Handle("/*", s.proxy)
	return r
}

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	s.logger.Info("offline proxy listening", "addr", addr, "target", s.target.String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

type wireTask struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

func fromTask(t service.Task) wireTask {
	return wireTask{ID: t.ID, Name: t.Name, Completed: t.Completed}
}

func fromEntry(e queue.Entry) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"name":      e.Name,
		"ref":       e.Ref.String(),
		"queued_at": e.QueuedAt,
	}
}

// create runs the write path: 201 when the backend took the task, 202 when
// it was queued.
func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task string `json:"task"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Task content not provided.")
		return
	}

	s.w.UseCSRFToken(callerCSRF(r))
	res, err := s.w.Controller().Add(r.Context(), body.Task)
	switch {
	case err == nil && res.Queued:
		respondJSON(w, http.StatusAccepted, map[string]any{
			"message": "Task queued for sync",
			"queued":  fromEntry(res.Entry),
		})
	case err == nil:
		respondJSON(w, http.StatusCreated, map[string]any{
			"message": "Task added successfully",
			"task":    fromTask(res.Task),
		})
	case errors.Is(err, queue.ErrUnavailable):
		s.logger.Error("task could not be queued", "error", err)
		respondError(w, http.StatusServiceUnavailable, "Task storage unavailable.")
	case errors.Is(err, service.ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

// callerCSRF returns the CSRF token the caller sent, header first.
func callerCSRF(r *http.Request) string {
	if token := r.Header.Get(rest.HeaderCSRF); token != "" {
		return token
	}
	if ck, err := r.Cookie(rest.CSRFCookie); err == nil {
		return ck.Value
	}
	return ""
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	res, err := s.w.Sync(r.Context())
	if err != nil && !errors.Is(err, syncer.ErrIncomplete) {
		s.logger.Error("sync failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"synced": res.Synced(),
		"failed": res.Failed(),
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st := s.w.Status(r.Context())
	pending, err := s.w.Controller().Pending(r.Context())
	if err != nil {
		s.logger.Debug("pending tasks unavailable", "error", err)
	}
	queued := make([]map[string]any, 0, len(pending))
	for _, e := range pending {
		queued = append(queued, fromEntry(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"online":         st.Online,
		"pending":        queued,
		"registered":     st.Registered,
		"caches":         st.Caches,
		"schema_version": st.SchemaVersion,
	})
}

func (s *Server) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Debug("proxy request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	respondError(w, http.StatusServiceUnavailable, "Backend unavailable.")
}
