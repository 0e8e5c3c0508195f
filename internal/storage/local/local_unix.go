//go:build !windows

package local

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/skyline93/offline/internal/fs"
)

// publishEntry moves the fully written temp file onto filename, makes the
// rename durable and drops the write bits from the entry. Replacing an
// existing read-only entry works since rename only needs a writable
// directory.
func publishEntry(tmp, filename string, mode os.FileMode) error {
	if err := fs.Rename(tmp, filename); err != nil {
		_ = fs.RemoveIfExists(tmp)
		return errors.Wrap(err, "Rename")
	}

	if err := syncDir(filepath.Dir(filename)); err != nil {
		return errors.Wrap(err, "sync cache dir")
	}

	return fs.Chmod(filename, mode&^0222)
}

// syncDir flushes the directory entry of a renamed cache file. File systems
// that cannot sync directories are accepted as they are.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}

	err = d.Sync()
	if syncUnsupported(err) {
		err = nil
	}

	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

func syncUnsupported(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, unix.ENOTSUP), errors.Is(err, unix.ENOENT), errors.Is(err, unix.EINVAL):
		return true
	}
	// macOS reports ENOTTY for directories on some network file systems
	return runtime.GOOS == "darwin" && errors.Is(err, unix.ENOTTY)
}
