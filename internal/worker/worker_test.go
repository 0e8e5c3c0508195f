package worker

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/offline/internal/host"
	"github.com/skyline93/offline/internal/offline"
	"github.com/skyline93/offline/internal/storage/memory"
)

var errOffline = errors.New("network unreachable")

// fakeNetwork serves bodies by URL and counts calls.
type fakeNetwork struct {
	mu      sync.Mutex
	bodies  map[string]string
	status  map[string]int
	offline bool
	calls   map[string]int
	noStore map[string]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		bodies:  make(map[string]string),
		status:  make(map[string]int),
		calls:   make(map[string]int),
		noStore: make(map[string]bool),
	}
}

func (n *fakeNetwork) set(rawURL, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies[rawURL] = body
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = v
}

func (n *fakeNetwork) count(rawURL string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[rawURL]
}

func (n *fakeNetwork) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

func (n *fakeNetwork) Fetch(_ context.Context, req *offline.Request, opts offline.FetchOptions) (*offline.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	u := req.CacheURL()
	n.calls[u]++
	n.noStore[u] = opts.NoStore
	if n.offline {
		return nil, errOffline
	}
	body, ok := n.bodies[u]
	if !ok {
		return &offline.Response{Status: http.StatusNotFound, Header: http.Header{}}, nil
	}
	status := http.StatusOK
	if s, ok := n.status[u]; ok {
		status = s
	}
	return &offline.Response{
		Status: status,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
	}, nil
}

const base = "https://example.github.io/sound-wave-lab/"

type fixture struct {
	net    *fakeNetwork
	caches *memory.Storage
	worker *Worker
}

func newFixture(t *testing.T, tag string, assets ...string) *fixture {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)

	f := &fixture{net: newFakeNetwork(), caches: memory.New()}
	f.worker, err = New(Scope{
		Tag:     tag,
		Base:    u,
		Assets:  assets,
		Caches:  f.caches,
		Network: f.net,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) withTag(t *testing.T, tag string, assets ...string) *Worker {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	w, err := New(Scope{Tag: tag, Base: u, Assets: assets, Caches: f.caches, Network: f.net})
	require.NoError(t, err)
	return w
}

func request(t *testing.T, rawURL string) *offline.Request {
	t.Helper()
	req, err := offline.NewRequest(rawURL)
	require.NoError(t, err)
	return req
}

func cacheURLs(t *testing.T, s offline.Storage, tag string) []string {
	t.Helper()
	c, err := s.Open(context.Background(), tag)
	require.NoError(t, err)
	keys, err := c.Keys(context.Background())
	require.NoError(t, err)
	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		urls = append(urls, k.CacheURL())
	}
	return urls
}

func TestNewValidates(t *testing.T) {
	u, _ := url.Parse(base)
	rel, _ := url.Parse("/relative/")

	cases := map[string]Scope{
		"no tag":     {Base: u, Caches: memory.New(), Network: newFakeNetwork()},
		"no base":    {Tag: "v1", Caches: memory.New(), Network: newFakeNetwork()},
		"rel base":   {Tag: "v1", Base: rel, Caches: memory.New(), Network: newFakeNetwork()},
		"no caches":  {Tag: "v1", Base: u, Network: newFakeNetwork()},
		"no network": {Tag: "v1", Base: u, Caches: memory.New()},
	}
	for name, scope := range cases {
		_, err := New(scope)
		assert.Error(t, err, name)
	}
}

func TestAssetsResolveAgainstBase(t *testing.T) {
	f := newFixture(t, DefaultTag, DefaultAssets...)

	var urls []string
	for _, req := range f.worker.Assets() {
		urls = append(urls, req.CacheURL())
	}
	assert.Equal(t, []string{
		base,
		base + "index.html",
		base + "manifest.json",
		base + "icons/icon-192.png",
		base + "icons/icon-512.png",
	}, urls)
}

func TestInstallSeedsAllAssets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v2", "./", "./index.html", "./manifest.json")
	f.net.set(base, "root")
	f.net.set(base+"index.html", "index")
	f.net.set(base+"manifest.json", "{}")

	c := host.NewContainer()
	v, err := c.Register(ctx, f.worker.Tag(), f.worker)
	require.NoError(t, err)
	assert.Equal(t, host.StateActivated, v.State())

	assert.ElementsMatch(t,
		[]string{base, base + "index.html", base + "manifest.json"},
		cacheURLs(t, f.caches, "v2"))
}

func TestInstallFailsWhenOneAssetFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v2", "./", "./index.html", "./manifest.json")
	f.net.set(base, "root")
	f.net.set(base+"index.html", "index")
	// manifest.json answers 404

	c := host.NewContainer()
	v, err := c.Register(ctx, f.worker.Tag(), f.worker)
	require.Error(t, err)
	assert.True(t, errors.Is(err, host.ErrInstallFailed))
	assert.Equal(t, host.StateRedundant, v.State())
	assert.Nil(t, c.Active())

	assert.Empty(t, cacheURLs(t, f.caches, "v2"))
}

func TestInstallFailsWhenNetworkDown(t *testing.T) {
	f := newFixture(t, "v2", "./")
	f.net.setOffline(true)

	err := f.worker.Seed(context.Background())
	assert.True(t, errors.Is(err, errOffline))
}

func TestActivatePurgesStaleCaches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1", "./")
	f.net.set(base, "root")

	c := host.NewContainer()
	_, err := c.Register(ctx, "v1", f.worker)
	require.NoError(t, err)

	// leftovers from other generations
	for _, tag := range []string{"sound-wave-lab-v0", "unrelated"} {
		_, err := f.caches.Open(ctx, tag)
		require.NoError(t, err)
	}

	_, err = c.Register(ctx, "v2", f.withTag(t, "v2", "./"))
	require.NoError(t, err)

	tags, err := f.caches.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, tags)
}

func TestActivateClaimsClients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")

	c := host.NewContainer()
	nav := request(t, base)
	nav.Mode = offline.ModeNavigate
	_, handled, err := c.Fetch(ctx, "tab", nav)
	require.NoError(t, err)
	assert.False(t, handled)

	v, err := c.Register(ctx, "v1", f.worker)
	require.NoError(t, err)
	assert.Equal(t, v, c.Clients().Controller("tab"))
}

func TestCacheFirstHitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	icon := base + "icons/icon-192.png"
	f.net.set(icon, "png")

	resp, err := f.worker.CacheFirst(ctx, request(t, icon))
	require.NoError(t, err)
	assert.Equal(t, "png", string(resp.Body))
	assert.Equal(t, offline.SourceNetwork, resp.Source)
	assert.Equal(t, 1, f.net.count(icon))
	assert.Equal(t, []string{icon}, cacheURLs(t, f.caches, "v1"))

	resp, err = f.worker.CacheFirst(ctx, request(t, icon))
	require.NoError(t, err)
	assert.Equal(t, "png", string(resp.Body))
	assert.Equal(t, offline.SourceCache, resp.Source)
	assert.Equal(t, 1, f.net.count(icon))
	assert.False(t, f.net.noStore[icon])
}

func TestCacheFirstMissAndNetworkDown(t *testing.T) {
	f := newFixture(t, "v1")
	f.net.setOffline(true)

	_, err := f.worker.CacheFirst(context.Background(), request(t, base+"manifest.json"))
	assert.True(t, errors.Is(err, errOffline))
}

func TestCacheFirstDoesNotStoreErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	missing := base + "icons/missing.png"

	resp, err := f.worker.CacheFirst(ctx, request(t, missing))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Empty(t, cacheURLs(t, f.caches, "v1"))

	_, err = f.worker.CacheFirst(ctx, request(t, missing))
	require.NoError(t, err)
	assert.Equal(t, 2, f.net.count(missing))
}

func TestNetworkFirstPrefersNetwork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	index := base + "index.html"

	f.net.set(index, "A")
	resp, err := f.worker.NetworkFirst(ctx, request(t, index))
	require.NoError(t, err)
	assert.Equal(t, "A", string(resp.Body))
	assert.True(t, f.net.noStore[index])

	f.net.set(index, "B")
	resp, err = f.worker.NetworkFirst(ctx, request(t, index))
	require.NoError(t, err)
	assert.Equal(t, "B", string(resp.Body))
	assert.Equal(t, offline.SourceNetwork, resp.Source)

	cache, err := f.caches.Open(ctx, "v1")
	require.NoError(t, err)
	cached, found, err := cache.Match(ctx, request(t, index))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "B", string(cached.Body))
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	index := base + "index.html"

	f.net.set(index, "A")
	_, err := f.worker.NetworkFirst(ctx, request(t, index))
	require.NoError(t, err)

	f.net.setOffline(true)
	resp, err := f.worker.NetworkFirst(ctx, request(t, index))
	require.NoError(t, err)
	assert.Equal(t, "A", string(resp.Body))
	assert.Equal(t, offline.SourceCache, resp.Source)
}

func TestNetworkFirstFailsWithoutCache(t *testing.T) {
	f := newFixture(t, "v1")
	f.net.setOffline(true)

	_, err := f.worker.NetworkFirst(context.Background(), request(t, base+"index.html"))
	assert.True(t, errors.Is(err, errOffline))
}

func TestNetworkFirstServesErrorsLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	index := base + "index.html"

	f.net.set(index, "A")
	_, err := f.worker.NetworkFirst(ctx, request(t, index))
	require.NoError(t, err)

	f.net.mu.Lock()
	f.net.status[index] = http.StatusInternalServerError
	f.net.bodies[index] = "oops"
	f.net.mu.Unlock()

	resp, err := f.worker.NetworkFirst(ctx, request(t, index))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	cache, err := f.caches.Open(ctx, "v1")
	require.NoError(t, err)
	cached, found, err := cache.Match(ctx, request(t, index))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "A", string(cached.Body))
}

func dispatch(t *testing.T, c *host.Container, clientID string, req *offline.Request) (*offline.Response, bool) {
	t.Helper()
	resp, handled, err := c.Fetch(context.Background(), clientID, req)
	require.NoError(t, err)
	return resp, handled
}

func TestFetchRouting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	index := base + "index.html"
	icon := base + "icons/icon-512.png"
	f.net.set(index, "A")
	f.net.set(icon, "png")

	c := host.NewContainer()
	_, err := c.Register(ctx, "v1", f.worker)
	require.NoError(t, err)

	nav := request(t, index)
	nav.Mode = offline.ModeNavigate
	resp, handled := dispatch(t, c, "tab", nav)
	require.True(t, handled)
	assert.Equal(t, "A", string(resp.Body))

	// scenario: index.html stays reachable offline after one online visit
	f.net.setOffline(true)
	resp, handled = dispatch(t, c, "tab", nav)
	require.True(t, handled)
	assert.Equal(t, "A", string(resp.Body))
	f.net.setOffline(false)

	// scenario: an icon is fetched once, then always served from cache
	for i := 0; i < 3; i++ {
		resp, handled = dispatch(t, c, "tab", request(t, icon))
		require.True(t, handled)
		assert.Equal(t, "png", string(resp.Body))
	}
	assert.Equal(t, 1, f.net.count(icon))
}

func TestFetchIgnoresPostAndCrossOrigin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")

	c := host.NewContainer()
	_, err := c.Register(ctx, "v1", f.worker)
	require.NoError(t, err)

	nav := request(t, base)
	nav.Mode = offline.ModeNavigate
	f.net.set(base, "root")
	_, handled := dispatch(t, c, "tab", nav)
	require.True(t, handled)
	before := f.net.total()

	post := request(t, base+"index.html")
	post.Method = http.MethodPost
	_, handled = dispatch(t, c, "tab", post)
	assert.False(t, handled)

	cdn := request(t, "https://cdn.example.com/lib.js")
	_, handled = dispatch(t, c, "tab", cdn)
	assert.False(t, handled)

	assert.Equal(t, before, f.net.total())

	cache, err := f.caches.Open(ctx, "v1")
	require.NoError(t, err)
	_, found, err := cache.Match(ctx, post)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{base}, cacheURLs(t, f.caches, "v1"))
}
