// Command sandbox serves the catalog viewsets over the configured default
// database. Without a configured database it runs on a seeded in-memory
// sqlite database.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gnemet/viewsets"
	"github.com/gnemet/viewsets/database/pool"
	"github.com/gnemet/viewsets/internal/config"
	"github.com/gnemet/viewsets/internal/logging"
	"github.com/gnemet/viewsets/internal/sandbox"
	"github.com/gnemet/viewsets/query"
	"github.com/gnemet/viewsets/store/sqlstore"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "configuration file")
	migrate := flag.Bool("migrate", false, "apply sandbox migrations on start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *migrate, logger); err != nil {
		logger.Error("sandbox stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) error {
	dbs := cfg.Database
	memory := len(dbs) == 0
	if memory {
		dbs = []pool.Config{{Name: "sandbox", Driver: "sqlite", Default: true}}
	}
	p, err := pool.New(ctx, dbs, logger)
	if err != nil {
		return err
	}
	defer p.Close()
	db := p.Default()

	if migrate || memory {
		if err := sandbox.Migrate(db, logger); err != nil {
			return err
		}
	}
	if memory {
		if _, err := sandbox.Seed(ctx, db, sandbox.DefaultOptions, logger); err != nil {
			return err
		}
	}

	cat, err := sandbox.Catalog()
	if cfg.Catalog.Path != "" {
		cat, err = viewsets.LoadCatalog(cfg.Catalog.Path)
	}
	if err != nil {
		return err
	}
	lang := cfg.Application.Lang
	sets, err := cat.Viewsets(func(o viewsets.ObjectDef) (query.Store, error) {
		return db.Store(o.SQLTable(lang), sqlstore.WithLogger(logger))
	}, lang, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           viewsets.NewRouter(logger, sets...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server started", "app", cfg.Application.Name, "version", cfg.Application.Version, "addr", srv.Addr, "viewsets", len(sets))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
