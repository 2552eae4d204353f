// Command chanlightd keeps channel highlights applied on the host page.
//
// Usage:
//
//	chanlightd -config chanlight.yaml       # drive the page, serve the Bridge
//	chanlightd -render saved.html           # apply the stored set to a saved page, print it
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chanlight/bridge"
	"github.com/hazyhaar/chanlight/config"
	"github.com/hazyhaar/chanlight/hostpage"
	"github.com/hazyhaar/chanlight/htmldoc"
	"github.com/hazyhaar/chanlight/reconciler"
	"github.com/hazyhaar/chanlight/settings"
	"github.com/hazyhaar/chanlight/watch"
)

func main() {
	configPath := flag.String("config", "", "path to chanlight.yaml config file")
	renderPath := flag.String("render", "", "restyle a saved HTML page and write it to stdout")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *renderPath); err != nil {
		logger.Error("chanlightd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, renderPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := settings.Open(cfg.Store.Path,
		settings.WithLogger(logger),
		settings.WithBusyTimeout(cfg.Store.BusyTimeout),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	if renderPath != "" {
		return runRender(ctx, logger, cfg, store, renderPath)
	}
	return runDaemon(ctx, logger, cfg, store)
}

func runRender(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *settings.SQLite, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := htmldoc.Parse(f, cfg.Selectors, cfg.Style)
	if err != nil {
		return err
	}
	rec := reconciler.New(reconciler.Config{Document: doc, Store: store, Logger: logger})
	if err := rec.Reload(ctx); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return doc.Render(os.Stdout)
}

func runDaemon(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *settings.SQLite) error {
	page, err := hostpage.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	rec := reconciler.New(reconciler.Config{
		Document:   page,
		Store:      store,
		RetryDelay: cfg.Reconciler.RetryDelay,
		RetryMax:   cfg.Reconciler.RetryMax,
		Logger:     logger,
	})
	defer rec.Stop()

	router := bridge.NewRouter(bridge.WithLogger(logger))
	rec.Register(router)

	var w *watch.Watcher
	if cfg.Store.Watch {
		w = store.Watcher(cfg.Store.WatchInterval)
	}
	health := func(context.Context) map[string]any {
		h := map[string]any{"highlights": len(rec.Cached())}
		if w != nil {
			h["watch"] = w.Stats()
		}
		return h
	}

	srv := &http.Server{
		Addr:              cfg.Bridge.Addr,
		Handler:           bridge.NewHandler(router, page.Tab, health, logger),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("chanlightd: bridge listening", "addr", cfg.Bridge.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	page.OnReset(func() {
		if err := rec.StartObserving(ctx); err != nil {
			logger.Error("chanlightd: restart observing", "error", err)
		}
	})
	if err := rec.StartObserving(ctx); err != nil {
		logger.Error("chanlightd: start observing", "error", err)
	}

	if w != nil {
		go w.OnChange(ctx, func() error { return rec.Reload(ctx) })
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("bridge: %w", err)
	}
	logger.Info("chanlightd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("chanlightd: shutdown", "error", err)
	}
	return nil
}
