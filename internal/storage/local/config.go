package local

import (
	"strings"

	"github.com/pkg/errors"
)

// Config holds all information needed to open a local cache directory.
type Config struct {
	Path string

	// Compression selects the zstd level used for entry files.
	Compression CompressionMode
}

// CompressionMode configures how entries are compressed.
type CompressionMode uint

// Constants for the different compression levels.
const (
	CompressionAuto    CompressionMode = 0
	CompressionOff     CompressionMode = 1
	CompressionMax     CompressionMode = 2
	CompressionInvalid CompressionMode = 3
)

// NewConfig returns a new config with default options applied.
func NewConfig() Config {
	return Config{
		Compression: CompressionAuto,
	}
}

// ParseConfig parses a local storage config.
func ParseConfig(s string) (*Config, error) {
	if !strings.HasPrefix(s, "local:") {
		return nil, errors.New(`invalid format, prefix "local" not found`)
	}

	cfg := NewConfig()
	cfg.Path = s[6:]
	if cfg.Path == "" {
		return nil, errors.New("local: path is empty")
	}
	return &cfg, nil
}
