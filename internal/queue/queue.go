// Package queue is the local durable queue of tasks created while offline.
//
// Entries live in a SQLite database (one table, auto-incrementing ids) and
// stay there until the sync coordinator removes them after the backend has
// acknowledged the replay. Initialisation runs once in the background; every
// operation waits for the ready signal instead of touching a half-open store.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tasksync/internal/service"
)

// ErrUnavailable is returned when the store was never opened or failed to
// initialise. Callers treat it as "no data" rather than a hard failure.
var ErrUnavailable = errors.New("task queue unavailable")

// Entry is a task waiting to be replayed to the backend.
type Entry struct {
	ID        int64
	Name      string
	Completed bool
	Ref       uuid.UUID
	QueuedAt  time.Time
}

// Task converts the entry to a service task carrying the local queue id.
func (e Entry) Task() service.Task {
	return service.Task{
		ID:        strconv.FormatInt(e.ID, 10),
		Name:      e.Name,
		Completed: e.Completed,
	}
}

// Queue is the handle on the local task database.
type Queue struct {
	path   string
	logger *slog.Logger

	started atomic.Bool
	once    sync.Once
	ready   chan struct{}

	// set before ready is closed
	db      *sql.DB
	version int64
	err     error
}

// New creates a queue for the database at path. Nothing is opened until Open.
func New(path string, logger *slog.Logger) *Queue {
	return &Queue{
		path:   path,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Open starts initialisation in the background and returns immediately.
// Calling it more than once has no effect.
func (q *Queue) Open(ctx context.Context) {
	q.once.Do(func() {
		q.started.Store(true)
		go func() {
			defer close(q.ready)
			q.db, q.version, q.err = q.init(ctx)
			if q.err != nil {
				q.logger.Error("task queue initialisation failed", "path", q.path, "error", q.err)
				return
			}
			q.logger.Debug("task queue ready", "path", q.path, "schema_version", q.version)
		}()
	})
}

// Open creates a queue and waits for it to become ready.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Queue, error) {
	q := New(path, logger)
	q.Open(ctx)
	if err := q.Wait(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) init(ctx context.Context) (*sql.DB, int64, error) {
	if err := os.MkdirAll(filepath.Dir(q.path), 0700); err != nil {
		return nil, 0, fmt.Errorf("failed to create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+q.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open queue database: %w", err)
	}
	// One connection serialises every transaction against the store.
	db.SetMaxOpenConns(1)

	version, err := migrate(ctx, db, q.logger)
	if err != nil {
		db.Close()
		return nil, 0, err
	}
	return db, version, nil
}

// Ready is closed once initialisation has finished, successfully or not.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Err reports the initialisation error. Only meaningful after Ready is closed.
func (q *Queue) Err() error {
	select {
	case <-q.ready:
		return q.err
	default:
		return nil
	}
}

// Version returns the schema version, or 0 before the queue is ready.
func (q *Queue) Version() int64 {
	select {
	case <-q.ready:
		return q.version
	default:
		return 0
	}
}

// Wait blocks until the queue is ready or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	if !q.started.Load() {
		return fmt.Errorf("%w: not opened", ErrUnavailable)
	}
	select {
	case <-q.ready:
		return q.readyErr()
	default:
	}
	select {
	case <-q.ready:
		return q.readyErr()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

func (q *Queue) readyErr() error {
	if q.err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, q.err)
	}
	return nil
}

// Enqueue stores a new task and returns it with its assigned id.
func (q *Queue) Enqueue(ctx context.Context, name string) (Entry, error) {
	if err := q.Wait(ctx); err != nil {
		q.logger.Error("cannot queue task", "name", name, "error", err)
		return Entry{}, err
	}

	e := Entry{
		Name:     name,
		Ref:      uuid.New(),
		QueuedAt: time.Now().UTC(),
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO tasks (name, completed, ref, queued_at) VALUES (?, ?, ?, ?)`,
		e.Name, e.Completed, e.Ref.String(), e.QueuedAt.UnixMilli())
	if err != nil {
		q.logger.Error("failed to queue task", "name", name, "error", err)
		return Entry{}, fmt.Errorf("failed to queue task: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return Entry{}, fmt.Errorf("failed to read queue id: %w", err)
	}
	e.QueuedAt = time.UnixMilli(e.QueuedAt.UnixMilli()).UTC()

	q.logger.Info("task queued for sync", "id", e.ID, "name", e.Name)
	return e, nil
}

// Drain returns every queued entry in insertion order. Entries are not removed.
func (q *Queue) Drain(ctx context.Context) ([]Entry, error) {
	if err := q.Wait(ctx); err != nil {
		q.logger.Warn("cannot read task queue", "error", err)
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, completed, ref, queued_at FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read task queue: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			ref      string
			queuedAt int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Completed, &ref, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		if e.Ref, err = uuid.Parse(ref); err != nil {
			q.logger.Warn("queue entry has malformed ref", "id", e.ID, "ref", ref)
		}
		e.QueuedAt = time.UnixMilli(queuedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task queue: %w", err)
	}
	return entries, nil
}

// Remove deletes one entry. Removing an id that is not queued is not an error.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	if err := q.Wait(ctx); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queue entry %d: %w", id, err)
	}
	q.logger.Debug("removed queue entry", "id", id)
	return nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	if err := q.Wait(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

// Close releases the database once initialisation has finished.
func (q *Queue) Close() error {
	if !q.started.Load() {
		return nil
	}
	<-q.ready
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}
