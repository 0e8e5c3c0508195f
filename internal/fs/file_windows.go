package fs

import (
	"os"
	"path/filepath"
	"strings"
)

// fixpath returns an absolute path on windows, so long file
// names.
func fixpath(name string) string {
	abspath, err := filepath.Abs(name)
	if err == nil && !strings.HasPrefix(abspath, `\\`) {
		return `\\?\` + abspath
	}
	return name
}

// Chmod changes the mode of the named file to mode.
func Chmod(name string, mode os.FileMode) error {
	return os.Chmod(fixpath(name), mode)
}
