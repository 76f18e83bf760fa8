package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/desertthunder/bcx/internal/server"
	"github.com/desertthunder/bcx/internal/site"
	"github.com/desertthunder/bcx/internal/store"
	"github.com/urfave/cli/v3"
)

// SiteGenerate renders the collection into the static site directory.
func (r *Runner) SiteGenerate(ctx context.Context, cmd *cli.Command) error {
	input := cmd.String("input")
	if input == "" {
		input = r.config.Collection.Path
	}
	cfg := r.config.Site
	if out := cmd.String("output"); out != "" {
		cfg.OutputDir = out
	}

	c, err := store.LoadCollection(input)
	if err != nil {
		return err
	}

	generator := site.NewGenerator(cfg, r.config.Collection.ListenedPrefix, r.config.Collection.SnapshotPath, r.logger)
	report, err := generator.Generate(c)
	if err != nil {
		return err
	}

	r.writePlainHeader("Site Generated")
	for _, p := range report.Pages {
		r.writePlain("  %-24s %4d  %s\n", p.Genre, p.Count, p.File)
		if p.Duplicates > 0 {
			r.writePlain("  %-24s %4d duplicates dropped\n", "", p.Duplicates)
		}
	}
	for _, g := range report.Skipped {
		r.logger.Warn("genre has no records, page not written", "genre", g)
	}

	if cmd.Bool("clean") {
		removed, err := site.Clean(report)
		if err != nil {
			return err
		}
		for _, f := range removed {
			r.logger.Info("removed stale page", "file", f)
		}
	}

	index := filepath.Join(report.OutputDir, site.IndexFile)
	r.writePlain("\n✓ %d releases on %d pages in %s\n", report.Total(), len(report.Pages), report.OutputDir)

	if cmd.Bool("open") {
		abs, err := filepath.Abs(index)
		if err != nil {
			abs = index
		}
		if err := r.browser("file://" + abs); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
		}
	}
	return nil
}

// SiteServe serves the generated site until interrupted.
func (r *Runner) SiteServe(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")
	if dir == "" {
		dir = r.config.Site.OutputDir
	}
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Address()
	}

	handler, err := server.NewSiteHandler(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: run bcx site generate first", err)
		}
		return err
	}

	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(r.logger), server.LoggingMiddleware(r.logger))
	router.Handler(handler)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := make(chan string, 1)
	go func() {
		if bound, ok := <-ready; ok {
			r.logger.Info("serving site", "dir", dir, "url", "http://"+bound)
			r.writePlain("→ Serving %s at http://%s (Ctrl+C to stop)\n", dir, bound)
		}
	}()
	return server.Serve(ctx, server.NewHTTPServer(addr, router), ready)
}
