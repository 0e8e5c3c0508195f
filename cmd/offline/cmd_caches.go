package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyline93/offline/internal/config"
)

var cmdCaches = &cobra.Command{
	Use:   "caches",
	Short: "List cache generations",
	Long: `
The "caches" command lists all cache tags in the storage with the number of
entries each holds. The current tag is marked with "*".

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runCaches(cmd.Context(), cfg, cachesOptions)
	},
}

// CachesOptions bundles all options for the caches command.
type CachesOptions struct {
	Prune bool
}

var cachesOptions CachesOptions

func init() {
	cmdRoot.AddCommand(cmdCaches)

	f := cmdCaches.Flags()
	f.BoolVar(&cachesOptions.Prune, "prune", false, "delete all caches except the current tag")
}

func runCaches(ctx context.Context, cfg config.Config, opts CachesOptions) error {
	caches, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer caches.Close()

	if opts.Prune {
		w, err := newWorker(cfg, caches)
		if err != nil {
			return err
		}
		deleted, err := w.Purge(ctx)
		if err != nil {
			return err
		}
		for _, tag := range deleted {
			fmt.Printf("deleted %s\n", tag)
		}
	}

	tags, err := caches.Keys(ctx)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		c, err := caches.Open(ctx, tag)
		if err != nil {
			return err
		}
		keys, err := c.Keys(ctx)
		if err != nil {
			return err
		}

		mark := " "
		if tag == cfg.Tag {
			mark = "*"
		}
		fmt.Printf("%s %-30s %d entries\n", mark, tag, len(keys))
	}
	return nil
}
