// Package config loads the runtime configuration of the proxy.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config holds all settings. Every field can be set from the environment
// and overridden by a command line flag.
type Config struct {
	Origin       string        `env:"OFFLINE_ORIGIN" envDefault:"http://127.0.0.1:8000/"`
	Listen       string        `env:"OFFLINE_LISTEN" envDefault:"127.0.0.1:8080"`
	Cache        string        `env:"OFFLINE_CACHE" envDefault:"mem:"`
	Tag          string        `env:"OFFLINE_TAG" envDefault:"sound-wave-lab-v2"`
	Assets       []string      `env:"OFFLINE_ASSETS" envSeparator:"," envDefault:"./,./index.html,./manifest.json,./icons/icon-192.png,./icons/icon-512.png"`
	HTMLSuffixes []string      `env:"OFFLINE_HTML_SUFFIXES" envSeparator:"," envDefault:"/index.html"`
	FetchTimeout time.Duration `env:"OFFLINE_FETCH_TIMEOUT" envDefault:"30s"`
	LogLevel     string        `env:"OFFLINE_LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if _, err := c.OriginURL(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Tag) == "" {
		return errors.New("cache tag is empty")
	}
	if c.FetchTimeout < 0 {
		return errors.Errorf("fetch timeout %v is negative", c.FetchTimeout)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// OriginURL parses Origin. A path without a trailing slash is treated as a
// directory so that relative assets resolve below it.
func (c Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, errors.Wrap(err, "origin")
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.Errorf("origin %q must be an absolute http(s) url", c.Origin)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("origin %q: unsupported scheme %q", c.Origin, u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// SetupLogging applies LogLevel to the standard logrus logger.
func (c Config) SetupLogging() error {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}
