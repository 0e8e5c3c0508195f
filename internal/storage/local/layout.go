package local

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/skyline93/offline/internal/fs"
	"github.com/skyline93/offline/internal/offline"
)

// Layout maps tags and keys to paths:
//
//	<root>/caches/<hex tag>/<first two key chars>/<key>
type Layout struct {
	Path string
}

const cachesDir = "caches"

// Basedir returns the directory holding all caches.
func (l Layout) Basedir() string {
	return filepath.Join(l.Path, cachesDir)
}

// Dirname returns the directory of the cache for tag.
func (l Layout) Dirname(tag string) string {
	return filepath.Join(l.Basedir(), hex.EncodeToString([]byte(tag)))
}

// Filename returns the entry file for k in the cache for tag.
func (l Layout) Filename(tag string, k offline.Key) string {
	name := k.String()
	return filepath.Join(l.Dirname(tag), name[:2], name)
}

// Tags lists all cache directories.
func (l Layout) Tags() ([]string, error) {
	entries, err := fs.ReadDir(l.Basedir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "ReadDir")
	}

	var tags []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tag, err := hex.DecodeString(e.Name())
		if err != nil {
			continue
		}
		tags = append(tags, string(tag))
	}
	return tags, nil
}

func isFile(fi os.FileInfo) bool {
	return fi.Mode()&(os.ModeType|os.ModeCharDevice) == 0
}

// List returns the keys of all entry files in the cache for tag.
func (l Layout) List(tag string) (offline.KeySet, error) {
	list := offline.NewKeySet()
	dir := l.Dirname(tag)
	err := filepath.Walk(dir, func(name string, fi os.FileInfo, err error) error {
		if err != nil {
			if name == dir && os.IsNotExist(err) {
				return nil
			}
			return errors.Wrap(err, "Walk")
		}

		if !isFile(fi) {
			return nil
		}

		k, err := offline.ParseKey(filepath.Base(name))
		if err != nil {
			// temporary files and other debris
			return nil
		}

		list.Insert(k)
		return nil
	})

	return list, err
}
