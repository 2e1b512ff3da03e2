// Package cache is the on-device store of captured HTTP responses.
//
// Responses are grouped into named caches (one nutsdb bucket each) and keyed
// by request identity, "METHOD URL". Only GET pairs are ever stored. Old
// generations are removed wholesale by Sweep; single entries never expire.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sort"

	"github.com/nutsdb/nutsdb"
)

var (
	// ErrNotGET is returned when storing a response for a non-GET request.
	ErrNotGET = errors.New("only GET requests can be cached")
	// ErrLocked is returned by Open when another process holds the store.
	ErrLocked = errors.New("cache store in use by another process")
)

const ds = nutsdb.DataStructureBTree

// Storage holds every named cache.
type Storage struct {
	db     *nutsdb.DB
	temp   string
	logger *slog.Logger
}

// Open opens (or creates) the cache store in dir.
func Open(dir string, logger *slog.Logger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	opts := nutsdb.DefaultOptions
	opts.Dir = dir
	db, err := nutsdb.Open(opts)
	if errors.Is(err, nutsdb.ErrDirLocked) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open nutsdb: %w", err)
	}
	return &Storage{db: db, logger: logger}, nil
}

// OpenTemp opens a private store in a new temporary directory. Close
// removes the directory.
func OpenTemp(logger *slog.Logger) (*Storage, error) {
	dir, err := os.MkdirTemp("", "tasksync-cache-")
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	s, err := Open(dir, logger)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	s.temp = dir
	return s, nil
}

// Temporary reports whether the store was opened by OpenTemp.
func (s *Storage) Temporary() bool {
	return s.temp != ""
}

// Key returns the identity a request is stored under.
func Key(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + u.String()
}

// Named opens the cache called name, creating it when missing.
func (s *Storage) Named(name string) (*Cache, error) {
	err := s.db.Update(func(tx *nutsdb.Tx) error {
		if tx.ExistBucket(ds, name) {
			return nil
		}
		return tx.NewBucket(ds, name)
	})
	if err != nil && !errors.Is(err, nutsdb.ErrBucketAlreadyExist) {
		return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
	}
	return &Cache{s: s, name: name}, nil
}

// Has reports whether a cache called name exists.
func (s *Storage) Has(name string) bool {
	var ok bool
	_ = s.db.View(func(tx *nutsdb.Tx) error {
		ok = tx.ExistBucket(ds, name)
		return nil
	})
	return ok
}

// Keys returns the names of all caches, sorted.
func (s *Storage) Keys() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *nutsdb.Tx) error {
		return tx.IterateBuckets(ds, "*", func(bucket string) bool {
			names = append(names, bucket)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the cache called name and every entry in it.
// It reports whether a cache was removed.
func (s *Storage) Delete(name string) (bool, error) {
	if !s.Has(name) {
		return false, nil
	}
	if err := s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.DeleteBucket(ds, name)
	}); err != nil {
		return false, fmt.Errorf("failed to delete cache %s: %w", name, err)
	}
	return true, nil
}

// Match looks req up in every cache and returns the first stored response.
func (s *Storage) Match(req *http.Request) (*http.Response, bool) {
	names, err := s.Keys()
	if err != nil {
		s.logger.Warn("cache lookup failed", "error", err)
		return nil, false
	}
	for _, name := range names {
		c := &Cache{s: s, name: name}
		if snap, ok := c.Match(req); ok {
			return snap.Response(req), true
		}
	}
	return nil, false
}

// Sweep deletes every cache whose name is not in keep and returns the
// removed names. A failure on one cache does not stop the others.
func (s *Storage) Sweep(keep ...string) ([]string, error) {
	names, err := s.Keys()
	if err != nil {
		return nil, err
	}
	var (
		removed []string
		errs    []error
	)
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		if _, err := s.Delete(name); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info("deleted old cache", "cache", name)
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	err := s.db.Close()
	if s.temp != "" {
		err = errors.Join(err, os.RemoveAll(s.temp))
	}
	return err
}

// Cache is one named cache generation.
type Cache struct {
	s    *Storage
	name string
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Put stores snap under req's identity, replacing any previous entry.
func (c *Cache) Put(req *http.Request, snap Snapshot) error {
	if req.Method != "" && req.Method != http.MethodGet {
		return ErrNotGET
	}
	key := Key(req)
	snap.Key = key
	data, err := snap.encode()
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := c.s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(c.name, []byte(key), data, nutsdb.Persistent)
	}); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	c.s.logger.Debug("cached response", "cache", c.name, "key", key, "status", snap.Status)
	return nil
}

// Match returns the snapshot stored for req.
func (c *Cache) Match(req *http.Request) (Snapshot, bool) {
	key := Key(req)
	var data []byte
	err := c.s.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(c.name, []byte(key))
		if err != nil {
			return err
		}
		data = v
		return nil
	})
	if err != nil {
		// Missing keys and missing buckets are both plain misses.
		return Snapshot{}, false
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		c.s.logger.Warn("dropping unreadable cache entry", "cache", c.name, "key", key, "error", err)
		return Snapshot{}, false
	}
	return snap, true
}

// Remove deletes the entry stored for req, if any.
func (c *Cache) Remove(req *http.Request) error {
	key := Key(req)
	if _, ok := c.Match(req); !ok {
		return nil
	}
	if err := c.s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(c.name, []byte(key))
	}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Entries returns the stored snapshots, sorted by key.
func (c *Cache) Entries() ([]Snapshot, error) {
	var snaps []Snapshot
	err := c.s.db.View(func(tx *nutsdb.Tx) error {
		_, values, err := tx.GetAll(c.name)
		if errors.Is(err, nutsdb.ErrBucketEmpty) || errors.Is(err, nutsdb.ErrBucketNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, v := range values {
			snap, err := decodeSnapshot(v)
			if err != nil {
				c.s.logger.Warn("skipping unreadable cache entry", "cache", c.name, "error", err)
				continue
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache %s: %w", c.name, err)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Key < snaps[j].Key })
	return snaps, nil
}

// Add fetches rawURL with client and stores the response.
// Responses outside the 2xx range are not stored and reported as errors.
func (c *Cache) Add(ctx context.Context, client *http.Client, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	snap, err := NewSnapshot(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bad response status %d", resp.StatusCode)
	}
	return c.Put(req, snap)
}
