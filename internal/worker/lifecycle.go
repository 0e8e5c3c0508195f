package worker

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/skyline93/offline/internal/offline"
)

// Seed fetches every asset and stores them in the current cache. Nothing is
// written unless all fetches succeed with a 2xx status.
func (w *Worker) Seed(ctx context.Context) error {
	cache, err := w.scope.Caches.Open(ctx, w.scope.Tag)
	if err != nil {
		return errors.Wrap(err, "open cache")
	}

	responses := make([]*offline.Response, len(w.assets))
	wg, wgCtx := errgroup.WithContext(ctx)
	for i, req := range w.assets {
		wg.Go(func() error {
			resp, err := w.scope.Network.Fetch(wgCtx, req, offline.FetchOptions{})
			if err != nil {
				return errors.Wrapf(err, "seed %v", req)
			}
			if !resp.OK() {
				return errors.Errorf("seed %v: unexpected status %d", req, resp.Status)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return err
	}

	for i, req := range w.assets {
		if err := cache.Put(ctx, req, responses[i]); err != nil {
			return errors.Wrapf(err, "seed %v", req)
		}
	}

	w.log.Infof("seeded %d assets", len(w.assets))
	return nil
}

// Purge deletes every cache whose tag is not the current one and returns the
// deleted tags.
func (w *Worker) Purge(ctx context.Context) ([]string, error) {
	tags, err := w.scope.Caches.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list caches")
	}

	var stale []string
	for _, tag := range tags {
		if tag != w.scope.Tag {
			stale = append(stale, tag)
		}
	}

	wg, wgCtx := errgroup.WithContext(ctx)
	for _, tag := range stale {
		wg.Go(func() error {
			if _, err := w.scope.Caches.Delete(wgCtx, tag); err != nil {
				return errors.Wrapf(err, "delete cache %q", tag)
			}
			w.log.WithField("stale", tag).Info("deleted stale cache")
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, err
	}

	return stale, nil
}
