package main

import (
	"context"

	"github.com/skyline93/offline/internal/config"
	"github.com/skyline93/offline/internal/network"
	"github.com/skyline93/offline/internal/offline"
	"github.com/skyline93/offline/internal/route"
	"github.com/skyline93/offline/internal/storage"
	"github.com/skyline93/offline/internal/worker"
)

// newWorker builds a worker for cfg on top of caches.
func newWorker(cfg config.Config, caches offline.Storage) (*worker.Worker, error) {
	origin, err := cfg.OriginURL()
	if err != nil {
		return nil, err
	}

	html := route.DefaultMatcher(origin)
	html.Suffixes = append([]string(nil), cfg.HTMLSuffixes...)
	if p := origin.Path; p != "/" {
		html.Suffixes = append(html.Suffixes, p)
	}

	return worker.New(worker.Scope{
		Tag:     cfg.Tag,
		Base:    origin,
		Assets:  cfg.Assets,
		Router:  route.Router{Origin: origin, HTML: html},
		Caches:  caches,
		Network: network.New(network.WithTimeout(cfg.FetchTimeout)),
	})
}

// openStorage opens the cache storage named by cfg.
func openStorage(ctx context.Context, cfg config.Config) (offline.Storage, error) {
	return storage.Open(ctx, cfg.Cache)
}
