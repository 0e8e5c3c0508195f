package local

import (
	"os"

	"github.com/pkg/errors"

	"github.com/skyline93/offline/internal/fs"
)

// publishEntry moves the fully written temp file onto filename. Entries stay
// writable on Windows, where a read-only destination makes the next rename
// fail, and directories cannot be synced.
func publishEntry(tmp, filename string, _ os.FileMode) error {
	if err := fs.Rename(tmp, filename); err != nil {
		_ = fs.RemoveIfExists(tmp)
		return errors.Wrap(err, "Rename")
	}
	return nil
}
