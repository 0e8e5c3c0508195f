// Package storage opens the cache storage named by a URI.
package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/skyline93/offline/internal/offline"
	"github.com/skyline93/offline/internal/storage/local"
	"github.com/skyline93/offline/internal/storage/memory"
	"github.com/skyline93/offline/internal/storage/sqlite"
)

// Open returns the storage for uri. Supported forms are "mem:",
// "local:/path/to/dir" and "sqlite:/path/to/file.db".
func Open(ctx context.Context, uri string) (offline.Storage, error) {
	scheme, _, found := strings.Cut(uri, ":")
	if !found {
		return nil, errors.Errorf("invalid cache uri %q, scheme not found", uri)
	}

	switch scheme {
	case "mem":
		return memory.New(), nil
	case "local":
		cfg, err := local.ParseConfig(uri)
		if err != nil {
			return nil, err
		}
		return local.Open(ctx, *cfg)
	case "sqlite":
		path, err := sqlite.ParseConfig(uri)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(path)
	}
	return nil, errors.Errorf("unknown cache storage %q", scheme)
}
