// Package local stores caches as compressed files in a directory.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/offline/internal/fs"
	"github.com/skyline93/offline/internal/offline"
)

// Modes are the permissions used for new directories and files.
type Modes struct {
	Dir  os.FileMode
	File os.FileMode
}

var defaultModes = Modes{Dir: 0700, File: 0600}

func deriveModesFromFileInfo(fi os.FileInfo, err error) Modes {
	m := defaultModes
	if err != nil {
		return m
	}

	if fi.Mode()&0040 != 0 { // Group has read access
		m.Dir |= 0070
		m.File |= 0060
	}

	return m
}

// Storage is a directory of caches.
type Storage struct {
	layout Layout
	modes  Modes
	codec  *codec
}

var _ offline.Storage = &Storage{}

// Open opens the cache directory at cfg.Path, creating it if needed.
func Open(_ context.Context, cfg Config) (*Storage, error) {
	if cfg.Compression == CompressionInvalid {
		return nil, errors.New("invalid compression mode")
	}

	fi, err := fs.Stat(cfg.Path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "Stat")
	}
	m := deriveModesFromFileInfo(fi, err)

	l := Layout{Path: cfg.Path}
	if err := fs.MkdirAll(l.Basedir(), m.Dir); err != nil {
		return nil, errors.Wrap(err, "MkdirAll")
	}

	log.WithField("path", cfg.Path).Debug("opened local cache storage")
	return &Storage{
		layout: l,
		modes:  m,
		codec:  &codec{mode: cfg.Compression},
	}, nil
}

// Open returns the cache for tag, creating its directory when needed.
func (s *Storage) Open(_ context.Context, tag string) (offline.Cache, error) {
	dir := s.layout.Dirname(tag)
	if err := fs.MkdirAll(dir, s.modes.Dir); err != nil {
		return nil, errors.Wrap(err, "MkdirAll")
	}
	return &Cache{s: s, tag: tag}, nil
}

func (s *Storage) Has(_ context.Context, tag string) (bool, error) {
	_, err := fs.Stat(s.layout.Dirname(tag))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "Stat")
	}
	return true, nil
}

// Keys lists tags sorted by name; the directory does not record creation
// order.
func (s *Storage) Keys(_ context.Context) ([]string, error) {
	tags, err := s.layout.Tags()
	if err != nil {
		return nil, err
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *Storage) Delete(ctx context.Context, tag string) (bool, error) {
	ok, err := s.Has(ctx, tag)
	if err != nil || !ok {
		return false, err
	}

	if err := fs.RemoveAll(s.layout.Dirname(tag)); err != nil {
		return false, errors.Wrapf(err, "remove cache %q", tag)
	}
	log.WithField("tag", tag).Debug("removed cache directory")
	return true, nil
}

func (s *Storage) Close() error {
	s.codec.close()
	return nil
}

// Cache is the directory of one tag.
type Cache struct {
	s   *Storage
	tag string
}

func (c *Cache) load(filename string) (*offline.Entry, error) {
	f, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return nil, errors.Wrap(err, "ReadAll")
	}
	return c.s.codec.decode(buf)
}

func (c *Cache) Match(ctx context.Context, req *offline.Request) (*offline.Response, bool, error) {
	if !req.IsGet() {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	e, err := c.load(c.s.layout.Filename(c.tag, offline.KeyFor(req)))
	if os.IsNotExist(errors.Cause(err)) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "load %v", req)
	}
	if !e.Matches(req) {
		return nil, false, nil
	}
	return e.Response(), true, nil
}

// Put writes the entry to a temporary file and renames it into place, so
// readers never observe a partial entry.
func (c *Cache) Put(ctx context.Context, req *offline.Request, resp *offline.Response) error {
	if err := offline.CheckPut(req, resp); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf, err := c.s.codec.encode(offline.NewEntry(req, resp))
	if err != nil {
		return err
	}

	filename := c.s.layout.Filename(c.tag, offline.KeyFor(req))
	dir := filepath.Dir(filename)
	if err := fs.MkdirAll(dir, c.s.modes.Dir); err != nil {
		return errors.Wrap(err, "MkdirAll")
	}

	f, err := fs.CreateTemp(dir, "tmp-")
	if err != nil {
		return errors.Wrap(err, "CreateTemp")
	}
	tmp := f.Name()

	_, err = f.Write(buf)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = fs.RemoveIfExists(tmp)
		return errors.Wrap(err, "write entry")
	}

	return publishEntry(tmp, filename, c.s.modes.File)
}

// Delete removes the entry file. When the entry is not cached, no error is
// returned.
func (c *Cache) Delete(_ context.Context, req *offline.Request) (bool, error) {
	filename := c.s.layout.Filename(c.tag, offline.KeyFor(req))
	_, err := fs.Stat(filename)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "Stat")
	}
	if err := fs.RemoveIfExists(filename); err != nil {
		return false, errors.Wrap(err, "Remove")
	}
	return true, nil
}

// Keys lists the stored requests ordered by store time.
func (c *Cache) Keys(ctx context.Context) ([]*offline.Request, error) {
	list, err := c.s.layout.List(c.tag)
	if err != nil {
		return nil, err
	}

	entries := make([]*offline.Entry, 0, len(list))
	for k := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := c.load(c.s.layout.Filename(c.tag, k))
		if os.IsNotExist(errors.Cause(err)) {
			continue
		}
		if err != nil {
			log.WithError(err).Warnf("skipping unreadable cache entry %v", k.Str())
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StoredAt.Before(entries[j].StoredAt)
	})

	reqs := make([]*offline.Request, 0, len(entries))
	for _, e := range entries {
		req, err := e.Request()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
