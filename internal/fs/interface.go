package fs

import (
	"io"
	"os"
)

// File is an open file for reading.
type File interface {
	io.Reader
	io.Closer

	Stat() (os.FileInfo, error)
	Name() string
}
