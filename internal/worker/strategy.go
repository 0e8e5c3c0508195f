package worker

import (
	"context"

	"github.com/pkg/errors"

	"github.com/skyline93/offline/internal/offline"
)

// NetworkFirst fetches req bypassing intermediate caches and keeps the cache
// in sync. When the network fails, the cached copy is served instead.
func (w *Worker) NetworkFirst(ctx context.Context, req *offline.Request) (*offline.Response, error) {
	cache, err := w.scope.Caches.Open(ctx, w.scope.Tag)
	if err != nil {
		return nil, errors.Wrap(err, "open cache")
	}

	fresh, fetchErr := w.scope.Network.Fetch(ctx, req, offline.FetchOptions{NoStore: true})
	if fetchErr == nil {
		w.store(ctx, cache, req, fresh)
		return fresh, nil
	}

	cached, found, err := cache.Match(ctx, req)
	if err != nil {
		w.log.WithError(err).Warnf("cache lookup for %v failed", req)
	}
	if found {
		w.log.WithError(fetchErr).Debugf("network failed, serving %v from cache", req)
		return cached, nil
	}
	return nil, fetchErr
}

// CacheFirst serves req from the cache and only goes to the network on a
// miss, storing what it fetched. Network errors are returned as is.
func (w *Worker) CacheFirst(ctx context.Context, req *offline.Request) (*offline.Response, error) {
	cache, err := w.scope.Caches.Open(ctx, w.scope.Tag)
	if err != nil {
		return nil, errors.Wrap(err, "open cache")
	}

	cached, found, err := cache.Match(ctx, req)
	if err != nil {
		w.log.WithError(err).Warnf("cache lookup for %v failed", req)
	}
	if found {
		return cached, nil
	}

	fresh, err := w.scope.Network.Fetch(ctx, req, offline.FetchOptions{})
	if err != nil {
		return nil, err
	}
	w.store(ctx, cache, req, fresh)
	return fresh, nil
}

// store puts a copy of resp into cache if it may be cached. A failed write
// does not fail the request.
func (w *Worker) store(ctx context.Context, cache offline.Cache, req *offline.Request, resp *offline.Response) {
	if !req.IsGet() || !resp.OK() {
		return
	}
	if err := cache.Put(ctx, req, resp.Clone()); err != nil {
		w.log.WithError(err).Warnf("caching %v failed", req)
	}
}
