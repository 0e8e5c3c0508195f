package offline

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrMethodNotCacheable is returned when a non-GET request is put into a cache.
	ErrMethodNotCacheable = errors.New("only GET requests can be cached")

	// ErrResponseNotCacheable is returned when a response without a 2xx
	// status is put into a cache.
	ErrResponseNotCacheable = errors.New("only successful responses can be cached")
)

// Cache is one named generation of stored responses.
type Cache interface {
	// Match returns the stored response for req. A miss returns false and no
	// error. Non-GET requests always miss.
	Match(ctx context.Context, req *Request) (*Response, bool, error)

	// Put stores resp for req, replacing any earlier entry.
	Put(ctx context.Context, req *Request, resp *Response) error

	// Delete removes the entry for req and reports whether one existed.
	Delete(ctx context.Context, req *Request) (bool, error)

	// Keys lists the stored request identities.
	Keys(ctx context.Context) ([]*Request, error)
}

// Storage holds caches by tag.
type Storage interface {
	// Open returns the cache for tag, creating it when needed.
	Open(ctx context.Context, tag string) (Cache, error)
	Has(ctx context.Context, tag string) (bool, error)
	// Keys lists all tags.
	Keys(ctx context.Context) ([]string, error)
	// Delete drops the cache for tag and reports whether it existed.
	Delete(ctx context.Context, tag string) (bool, error)
	Close() error
}

// CheckPut validates that req and resp may be stored.
func CheckPut(req *Request, resp *Response) error {
	if !req.IsGet() {
		return errors.Wrapf(ErrMethodNotCacheable, "put %v", req)
	}
	if !resp.OK() {
		return errors.Wrapf(ErrResponseNotCacheable, "put %v", req)
	}
	return nil
}

// FetchOptions modify a network fetch.
type FetchOptions struct {
	// NoStore bypasses any intermediate HTTP cache so that a full round trip
	// to the origin happens.
	NoStore bool
}

// Fetcher performs network requests. A response with any status is returned
// without error; errors mean the origin could not be reached.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request, opts FetchOptions) (*Response, error)
}
