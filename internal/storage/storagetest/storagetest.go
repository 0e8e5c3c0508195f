// Package storagetest holds tests shared by all offline.Storage backends.
package storagetest

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/offline/internal/offline"
)

// NewFunc returns a fresh, empty storage.
type NewFunc func(t *testing.T) offline.Storage

// Run runs the backend test suite against storages returned by newFn.
func Run(t *testing.T, newFn NewFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s offline.Storage)
	}{
		{"PutMatch", testPutMatch},
		{"Overwrite", testOverwrite},
		{"NonGET", testNonGET},
		{"NotOK", testNotOK},
		{"DeleteEntry", testDeleteEntry},
		{"Tags", testTags},
		{"Vary", testVary},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newFn(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func request(t *testing.T, raw string) *offline.Request {
	t.Helper()
	req, err := offline.NewRequest(raw)
	require.NoError(t, err)
	return req
}

func ok(body string) *offline.Response {
	return &offline.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
	}
}

func testPutMatch(t *testing.T, s offline.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	req := request(t, "http://example.com/app/index.html")
	_, found, err := c.Match(ctx, req)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, req, ok("A")))

	resp, found, err := c.Match(ctx, request(t, "http://example.com/app/index.html#frag"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("A"), resp.Body)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, offline.SourceCache, resp.Source)

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "http://example.com/app/index.html", keys[0].CacheURL())
}

func testOverwrite(t *testing.T, s offline.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	req := request(t, "http://example.com/")
	require.NoError(t, c.Put(ctx, req, ok("A")))
	require.NoError(t, c.Put(ctx, req, ok("B")))

	resp, found, err := c.Match(ctx, req)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("B"), resp.Body)

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func testNonGET(t *testing.T, s offline.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	req := request(t, "http://example.com/api")
	req.Method = http.MethodPost
	err = c.Put(ctx, req, ok("A"))
	assert.True(t, errors.Is(err, offline.ErrMethodNotCacheable))

	_, found, err := c.Match(ctx, req)
	require.NoError(t, err)
	assert.False(t, found)

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testNotOK(t *testing.T, s offline.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	req := request(t, "http://example.com/missing")
	err = c.Put(ctx, req, &offline.Response{Status: http.StatusNotFound})
	assert.True(t, errors.Is(err, offline.ErrResponseNotCacheable))

	_, found, err := c.Match(ctx, req)
	require.NoError(t, err)
	assert.False(t, found)
}

func testDeleteEntry(t *testing.T, s offline.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	req := request(t, "http://example.com/manifest.json")
	require.NoError(t, c.Put(ctx, req, ok("{}")))

	removed, err := c.Delete(ctx, req)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Delete(ctx, req)
	require.NoError(t, err)
	assert.False(t, removed)

	_, found, err := c.Match(ctx, req)
	require.NoError(t, err)
	assert.False(t, found)
}

func testTags(t *testing.T, s offline.Storage) {
	ctx := context.Background()

	tags, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	for _, tag := range []string{"sound-wave-lab-v1", "sound-wave-lab-v2", "other/tag"} {
		c, err := s.Open(ctx, tag)
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, request(t, "http://example.com/"+tag), ok(tag)))
	}

	tags, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sound-wave-lab-v1", "sound-wave-lab-v2", "other/tag"}, tags)

	has, err := s.Has(ctx, "other/tag")
	require.NoError(t, err)
	assert.True(t, has)

	removed, err := s.Delete(ctx, "sound-wave-lab-v1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, "sound-wave-lab-v1")
	require.NoError(t, err)
	assert.False(t, removed)

	has, err = s.Has(ctx, "sound-wave-lab-v1")
	require.NoError(t, err)
	assert.False(t, has)

	tags, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sound-wave-lab-v2", "other/tag"}, tags)

	// reopening a deleted tag yields an empty cache
	c, err := s.Open(ctx, "sound-wave-lab-v1")
	require.NoError(t, err)
	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testVary(t *testing.T, s offline.Storage) {
	ctx := context.Background()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	req := request(t, "http://example.com/")
	req.Header.Set("Accept-Encoding", "gzip")
	resp := ok("A")
	resp.Header.Set("Vary", "Accept-Encoding")
	require.NoError(t, c.Put(ctx, req, resp))

	_, found, err := c.Match(ctx, req)
	require.NoError(t, err)
	assert.True(t, found)

	other := request(t, "http://example.com/")
	_, found, err = c.Match(ctx, other)
	require.NoError(t, err)
	assert.False(t, found)
}
