package main

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skyline93/offline/internal/config"
	"github.com/skyline93/offline/internal/host"
)

var cmdInstall = &cobra.Command{
	Use:   "install",
	Short: "Seed the current cache generation and drop stale ones",
	Long: `
The "install" command fetches all assets into the cache for the current tag and
deletes the caches of all other tags, then exits. Use it to pre-warm a
persistent cache (local: or sqlite:) before going offline.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if any asset could
not be fetched or a stale cache could not be deleted.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runInstall(cmd.Context(), cfg)
	},
}

func init() {
	cmdRoot.AddCommand(cmdInstall)
}

func runInstall(ctx context.Context, cfg config.Config) error {
	if strings.HasPrefix(cfg.Cache, "mem:") {
		log.Warn("installing into an in-memory cache, nothing will be kept")
	}

	caches, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer caches.Close()

	w, err := newWorker(cfg, caches)
	if err != nil {
		return err
	}

	c := host.NewContainer()
	if _, err := c.Register(ctx, w.Tag(), w); err != nil {
		return err
	}

	for _, req := range w.Assets() {
		fmt.Println(req.CacheURL())
	}
	return nil
}
