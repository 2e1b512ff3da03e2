// Package syncer replays queued task creations to the backend.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"tasksync/internal/queue"
	"tasksync/internal/service"
)

// ErrIncomplete is returned by Handle when at least one entry failed to
// replay and is still queued.
var ErrIncomplete = errors.New("some queued tasks were not synced")

// Outcome is the result of replaying one queue entry.
type Outcome struct {
	Entry queue.Entry
	Task  service.Task // set when the backend accepted the entry
	Err   error
}

// Result summarises one sync pass.
type Result struct {
	Outcomes []Outcome // in queue order
}

// Synced counts accepted entries.
func (r Result) Synced() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts entries left in the queue.
func (r Result) Failed() int {
	return len(r.Outcomes) - r.Synced()
}

// Coordinator drains the queue and sends every entry to the backend.
type Coordinator struct {
	queue       *queue.Queue
	svc         service.Service
	parallelism int
	logger      *slog.Logger

	mu sync.Mutex // one pass at a time
}

// New returns a Coordinator. parallelism bounds concurrent replays; values
// below 1 mean unbounded.
func New(q *queue.Queue, svc service.Service, parallelism int, logger *slog.Logger) *Coordinator {
	return &Coordinator{queue: q, svc: svc, parallelism: parallelism, logger: logger}
}

// Sync replays every queued entry concurrently and waits for all of them.
// Accepted entries are removed from the queue; failed ones stay. A failed
// replay never affects its siblings. The error is only non-nil when the
// queue cannot be read.
func (c *Coordinator) Sync(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.queue.Drain(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(entries) == 0 {
		c.logger.Debug("nothing to sync")
		return Result{}, nil
	}
	c.logger.Info("syncing queued tasks", "count", len(entries))

	outcomes := make([]Outcome, len(entries))
	var g errgroup.Group
	if c.parallelism > 0 {
		g.SetLimit(c.parallelism)
	}
	for i, e := range entries {
		g.Go(func() error {
			outcomes[i] = c.replay(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Outcomes: outcomes}
	c.logger.Info("sync finished", "synced", res.Synced(), "failed", res.Failed())
	return res, nil
}

func (c *Coordinator) replay(ctx context.Context, e queue.Entry) Outcome {
	task, err := c.svc.CreateTask(ctx, service.CreateRequest{Name: e.Name, Ref: e.Ref.String()})
	if err != nil {
		c.logger.Error("failed to sync task", "id", e.ID, "name", e.Name, "error", err)
		return Outcome{Entry: e, Err: err}
	}
	if err := c.queue.Remove(ctx, e.ID); err != nil {
		// The backend has the task; a later pass would send it again, which
		// the idempotency key lets the backend recognise.
		c.logger.Error("synced task could not be removed from queue", "id", e.ID, "error", err)
		return Outcome{Entry: e, Task: task, Err: err}
	}
	c.logger.Debug("task synced", "id", e.ID, "name", e.Name, "server_id", task.ID)
	return Outcome{Entry: e, Task: task}
}

// Handle is the background handler for the sync tag. It fails when any
// entry is still queued so the registration stays armed.
func (c *Coordinator) Handle(ctx context.Context) error {
	res, err := c.Sync(ctx)
	if err != nil {
		return err
	}
	if n := res.Failed(); n > 0 {
		return fmt.Errorf("%w: %d failed", ErrIncomplete, n)
	}
	return nil
}
