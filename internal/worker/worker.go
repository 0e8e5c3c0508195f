// Package worker implements the offline worker: it seeds the current cache
// generation on install, drops stale generations on activate, and answers
// fetches network-first for documents and cache-first for static assets.
package worker

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/offline/internal/host"
	"github.com/skyline93/offline/internal/offline"
	"github.com/skyline93/offline/internal/route"
)

// DefaultTag is the cache generation used when none is configured.
const DefaultTag = "sound-wave-lab-v2"

// DefaultAssets are seeded on install when no asset list is configured.
var DefaultAssets = []string{
	"./",
	"./index.html",
	"./manifest.json",
	"./icons/icon-192.png",
	"./icons/icon-512.png",
}

// Scope is the state shared by all events of one worker version.
type Scope struct {
	// Tag names the current cache generation.
	Tag string
	// Base is the scope URL; assets resolve against it.
	Base   *url.URL
	Assets []string

	// Router classifies fetches. A zero Origin defaults to Base and a zero
	// matcher to route.DefaultMatcher.
	Router route.Router

	Caches  offline.Storage
	Network offline.Fetcher
}

// Worker handles the events of one version.
type Worker struct {
	scope  Scope
	assets []*offline.Request
	log    *log.Entry
}

var _ host.Handler = &Worker{}

// New validates scope and returns a Worker.
func New(scope Scope) (*Worker, error) {
	if scope.Tag == "" {
		return nil, errors.New("cache tag is empty")
	}
	if scope.Base == nil || !scope.Base.IsAbs() {
		return nil, errors.New("scope base url must be absolute")
	}
	if scope.Caches == nil {
		return nil, errors.New("cache storage is nil")
	}
	if scope.Network == nil {
		return nil, errors.New("network fetcher is nil")
	}

	if scope.Router.Origin == nil {
		scope.Router.Origin = scope.Base
	}
	if len(scope.Router.HTML.Exact) == 0 && len(scope.Router.HTML.Suffixes) == 0 {
		scope.Router.HTML = route.DefaultMatcher(scope.Base)
	}

	assets := make([]*offline.Request, 0, len(scope.Assets))
	for _, a := range scope.Assets {
		ref, err := url.Parse(a)
		if err != nil {
			return nil, errors.Wrapf(err, "asset %q", a)
		}
		req, err := offline.NewRequest(scope.Base.ResolveReference(ref).String())
		if err != nil {
			return nil, err
		}
		assets = append(assets, req)
	}

	return &Worker{
		scope:  scope,
		assets: assets,
		log:    log.WithField("tag", scope.Tag),
	}, nil
}

// Tag returns the current cache generation.
func (w *Worker) Tag() string {
	return w.scope.Tag
}

// Assets returns the resolved asset requests.
func (w *Worker) Assets() []*offline.Request {
	return w.assets
}

// OnInstall activates the new version without waiting for old pages and
// seeds the cache.
func (w *Worker) OnInstall(e *host.InstallEvent) {
	e.SkipWaiting()
	e.WaitUntil(w.Seed)
}

// OnActivate drops stale caches, then takes control of all open pages.
func (w *Worker) OnActivate(e *host.ActivateEvent) {
	e.WaitUntil(func(ctx context.Context) error {
		if _, err := w.Purge(ctx); err != nil {
			return err
		}
		return e.Clients().Claim(ctx)
	})
}

// OnFetch routes same-origin GET requests to a strategy. Anything else is
// left to the network.
func (w *Worker) OnFetch(e *host.FetchEvent) {
	req := e.Request
	strategy := w.scope.Router.Classify(req)

	w.log.WithFields(log.Fields{
		"request":  req.String(),
		"strategy": strategy.String(),
	}).Debug("fetch")

	switch strategy {
	case route.NetworkFirst:
		e.RespondWith(func(ctx context.Context) (*offline.Response, error) {
			return w.NetworkFirst(ctx, req)
		})
	case route.CacheFirst:
		e.RespondWith(func(ctx context.Context) (*offline.Response, error) {
			return w.CacheFirst(ctx, req)
		})
	}
}
