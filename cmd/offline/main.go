package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skyline93/offline/internal/config"
)

var version = "0.1.0"

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "offline",
	Short: "Offline-caching proxy for a single-page app",
	Long: `
offline sits in front of the server that hosts a single-page app and keeps the
app usable when that server cannot be reached. Pages are always fetched fresh
when possible and fall back to the last good copy; static assets such as icons
and the manifest are served from the cache once stored.

Caches are grouped by a tag. Changing the tag and restarting (or sending SIGHUP
to "offline serve") installs a new generation and deletes all others.
`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
		os.Exit(0)
	},
}

// GlobalOptions hold the flags shared by all commands. Flags that are set
// override the environment, see config.Config.
type GlobalOptions struct {
	Origin       string
	Listen       string
	Cache        string
	Tag          string
	Assets       []string
	HTMLSuffixes []string
	FetchTimeout time.Duration
	LogLevel     string
}

var globalOptions GlobalOptions

func init() {
	f := cmdRoot.PersistentFlags()
	f.StringVar(&globalOptions.Origin, "origin", "", "`url` of the app on the origin server (default: $OFFLINE_ORIGIN or http://127.0.0.1:8000/)")
	f.StringVar(&globalOptions.Listen, "listen", "", "listen `address` (default: $OFFLINE_LISTEN or 127.0.0.1:8080)")
	f.StringVar(&globalOptions.Cache, "cache", "", "cache storage `uri`: mem:, local:/dir or sqlite:/file.db (default: $OFFLINE_CACHE or mem:)")
	f.StringVar(&globalOptions.Tag, "tag", "", "cache generation `tag` (default: $OFFLINE_TAG or sound-wave-lab-v2)")
	f.StringArrayVar(&globalOptions.Assets, "asset", nil, "`path` relative to the origin url to seed on install, can be repeated (default: $OFFLINE_ASSETS)")
	f.StringArrayVar(&globalOptions.HTMLSuffixes, "html-suffix", nil, "path `suffix` of the app's HTML shell, can be repeated (default: $OFFLINE_HTML_SUFFIXES or /index.html)")
	f.DurationVar(&globalOptions.FetchTimeout, "fetch-timeout", 0, "timeout for a single network fetch (default: $OFFLINE_FETCH_TIMEOUT or 30s)")
	f.StringVar(&globalOptions.LogLevel, "log-level", "", "log `level` (default: $OFFLINE_LOG_LEVEL or info)")
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("origin") {
		cfg.Origin = globalOptions.Origin
	}
	if f.Changed("listen") {
		cfg.Listen = globalOptions.Listen
	}
	if f.Changed("cache") {
		cfg.Cache = globalOptions.Cache
	}
	if f.Changed("tag") {
		cfg.Tag = globalOptions.Tag
	}
	if f.Changed("asset") {
		cfg.Assets = globalOptions.Assets
	}
	if f.Changed("html-suffix") {
		cfg.HTMLSuffixes = globalOptions.HTMLSuffixes
	}
	if f.Changed("fetch-timeout") {
		cfg.FetchTimeout = globalOptions.FetchTimeout
	}
	if f.Changed("log-level") {
		cfg.LogLevel = globalOptions.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.SetupLogging(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
