// Package controller implements the user-facing task operations on top of
// the backend, the local queue and the sync registration.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tasksync/internal/background"
	"tasksync/internal/connectivity"
	"tasksync/internal/queue"
	"tasksync/internal/service"
)

// AddResult reports where a new task went.
type AddResult struct {
	// Task is the backend's copy; set when the write went through directly.
	Task service.Task
	// Queued is true when the task was stored for a later sync.
	Queued bool
	Entry  queue.Entry
}

// Listing is what the task list shows.
type Listing struct {
	Tasks []service.Task
	// Pending holds queued entries not yet synced.
	Pending []queue.Entry
	// Fallback is set when the backend (and its cache) could not answer;
	// Tasks is then empty and only the queue is shown.
	Fallback    bool
	FallbackErr error
}

// Controller is the write path and read path used by the CLI and the proxy.
type Controller struct {
	svc     service.Service
	queue   *queue.Queue
	bg      *background.Manager
	checker connectivity.Checker
	tag     string
	logger  *slog.Logger
}

// New returns a Controller. tag is the sync registration queued writes arm.
func New(svc service.Service, q *queue.Queue, bg *background.Manager, checker connectivity.Checker, tag string, logger *slog.Logger) *Controller {
	return &Controller{svc: svc, queue: q, bg: bg, checker: checker, tag: tag, logger: logger}
}

// Add creates a task. Online it is sent straight to the backend; offline,
// or when the direct attempt fails for a reason other than a rejection, it
// is queued and the sync tag registered.
func (c *Controller) Add(ctx context.Context, name string) (AddResult, error) {
	req := service.CreateRequest{Name: name}
	if err := req.Validate(); err != nil {
		return AddResult{}, err
	}

	if c.checker.Online(ctx) {
		task, err := c.svc.CreateTask(ctx, req)
		if err == nil {
			c.logger.Debug("task created", "id", task.ID, "name", task.Name)
			return AddResult{Task: task}, nil
		}
		if !Queueable(err) || ctx.Err() != nil {
			return AddResult{}, err
		}
		c.logger.Warn("direct write failed, queueing task", "name", req.Name, "error", err)
	}

	entry, err := c.queue.Enqueue(ctx, req.Name)
	if err != nil {
		return AddResult{}, fmt.Errorf("task not saved: %w", err)
	}
	c.bg.Register(c.tag)
	return AddResult{Queued: true, Entry: entry}, nil
}

// Queueable reports whether a failed write should be retried later.
// Rejections and credential problems are final.
func Queueable(err error) bool {
	return !errors.Is(err, service.ErrRejected) &&
		!errors.Is(err, service.ErrAuth) &&
		!errors.Is(err, context.Canceled)
}

// List returns the backend tasks and the pending queue. When the backend
// read fails the listing falls back to the queue alone.
func (c *Controller) List(ctx context.Context) (Listing, error) {
	var l Listing

	pending, err := c.queue.Drain(ctx)
	if err != nil {
		c.logger.Debug("pending tasks unavailable", "error", err)
	}
	l.Pending = pending

	tasks, err := c.svc.ListTasks(ctx)
	if err != nil {
		if errors.Is(err, service.ErrAuth) {
			return Listing{}, err
		}
		c.logger.Warn("failed to load task list, showing queued tasks", "error", err)
		l.Fallback = true
		l.FallbackErr = err
		return l, nil
	}
	l.Tasks = tasks
	return l, nil
}

// Delete removes a task from the backend.
func (c *Controller) Delete(ctx context.Context, id string) error {
	return c.svc.DeleteTask(ctx, id)
}

// Pending returns the queued entries.
func (c *Controller) Pending(ctx context.Context) ([]queue.Entry, error) {
	return c.queue.Drain(ctx)
}

// RemovePending drops a queued entry before it is synced.
func (c *Controller) RemovePending(ctx context.Context, id int64) error {
	return c.queue.Remove(ctx, id)
}
