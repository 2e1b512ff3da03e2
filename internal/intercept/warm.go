package intercept

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tasksync/internal/cache"
)

// Resolve turns ref into an absolute URL relative to base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// Warm fetches every asset with client and stores it in c. A failure on one
// asset is logged and does not stop the others. It returns how many assets
// were stored; the error is only non-nil when ctx ends.
func Warm(ctx context.Context, c *cache.Cache, client *http.Client, base string, assets []string, logger *slog.Logger) (int, error) {
	logger.Info("caching assets", "cache", c.Name(), "count", len(assets))

	var stored atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, asset := range assets {
		g.Go(func() error {
			target, err := Resolve(base, asset)
			if err != nil {
				logger.Error("failed to cache asset", "url", asset, "error", err)
				return nil
			}
			if err := c.Add(gctx, client, target); err != nil {
				logger.Error("failed to cache asset", "url", target, "error", err)
				return nil
			}
			stored.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return int(stored.Load()), err
	}
	logger.Info("asset caching finished", "stored", stored.Load(), "failed", len(assets)-int(stored.Load()))
	return int(stored.Load()), nil
}
