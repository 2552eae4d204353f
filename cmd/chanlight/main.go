// Command chanlight edits the channel highlights in a terminal UI and tells
// a running chanlightd to apply them.
//
// Usage:
//
//	chanlight -config chanlight.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chanlight/bridge"
	"github.com/hazyhaar/chanlight/config"
	"github.com/hazyhaar/chanlight/editor"
	"github.com/hazyhaar/chanlight/editor/tui"
	"github.com/hazyhaar/chanlight/settings"
)

func main() {
	configPath := flag.String("config", "", "path to chanlight.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if err := run(*configPath, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "chanlight:", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The terminal belongs to the UI, so logs go to a file.
	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir(), "chanlight.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))

	store, err := settings.Open(cfg.Store.Path,
		settings.WithLogger(logger),
		settings.WithBusyTimeout(cfg.Store.BusyTimeout),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	client := bridge.NewClient(cfg.Bridge.Addr, cfg.Bridge.Timeout)
	ed := editor.New(store, client, cfg.Page.TargetHost, editor.WithLogger(logger))
	if err := ed.Load(ctx); err != nil {
		return err
	}

	_, err = tea.NewProgram(tui.New(ctx, ed), tea.WithAltScreen()).Run()
	return err
}
