package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyline93/offline/internal/storage/local"
	"github.com/skyline93/offline/internal/storage/memory"
	"github.com/skyline93/offline/internal/storage/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, "mem:")
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, s)

	s, err = Open(ctx, "local:"+filepath.Join(dir, "cache"))
	require.NoError(t, err)
	assert.IsType(t, &local.Storage{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, "sqlite:"+filepath.Join(dir, "offline.db"))
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())
}

func TestOpenInvalid(t *testing.T) {
	ctx := context.Background()
	for _, uri := range []string{"", "/tmp/cache", "redis://localhost", "local:"} {
		_, err := Open(ctx, uri)
		assert.Error(t, err, uri)
	}
}
