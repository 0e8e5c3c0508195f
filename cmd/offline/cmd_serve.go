package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skyline93/offline/internal/config"
	"github.com/skyline93/offline/internal/host"
	"github.com/skyline93/offline/internal/offline"
	"github.com/skyline93/offline/internal/proxy"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run the caching proxy",
	Long: `
The "serve" command installs the current cache generation and runs the proxy.
If the install fails, requests are passed to the origin untouched until a
later install succeeds.

Sending SIGHUP re-reads the environment and installs a new version. The
running version keeps serving if that install fails.

EXIT STATUS
===========

Exit status is 0 after a clean shutdown, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, cfg, func() (config.Config, error) { return loadConfig(cmd) })
	},
}

func init() {
	cmdRoot.AddCommand(cmdServe)
}

// register installs a worker for cfg into c.
func register(ctx context.Context, c *host.Container, cfg config.Config, caches offline.Storage) error {
	w, err := newWorker(cfg, caches)
	if err != nil {
		return err
	}
	_, err = c.Register(ctx, w.Tag(), w)
	return err
}

func runServe(ctx context.Context, cfg config.Config, reload func() (config.Config, error)) error {
	caches, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := caches.Close(); err != nil {
			log.WithError(err).Warn("closing cache storage failed")
		}
	}()

	origin, err := cfg.OriginURL()
	if err != nil {
		return err
	}

	c := host.NewContainer()
	if err := register(ctx, c, cfg, caches); err != nil {
		log.WithError(err).Error("initial install failed, passing requests through")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           proxy.New(origin, c, caches),
		ReadHeaderTimeout: 10 * time.Second,
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next, err := reload()
				if err != nil {
					log.WithError(err).Error("reloading config failed")
					continue
				}
				if next.Origin != cfg.Origin || next.Cache != cfg.Cache {
					log.Warn("origin and cache changes need a restart, ignoring them")
					next.Origin, next.Cache = cfg.Origin, cfg.Cache
				}
				if err := register(ctx, c, next, caches); err != nil {
					log.WithError(err).Error("install of new version failed, keeping the active one")
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"listen": cfg.Listen, "origin": origin.String(), "tag": cfg.Tag}).Info("serving")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "ListenAndServe")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
