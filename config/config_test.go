package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Selectors.Channel != "li[data-dnd-name]" {
		t.Errorf("Channel = %q", cfg.Selectors.Channel)
	}
	if cfg.Reconciler.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.Reconciler.RetryDelay)
	}
	if cfg.Reconciler.RetryMax != 0 {
		t.Errorf("RetryMax = %d, want 0 (unlimited)", cfg.Reconciler.RetryMax)
	}
	if cfg.Style.LabelColor != "#1E293B" || cfg.Style.BorderRadius != "4px" {
		t.Errorf("Style = %+v", cfg.Style)
	}
	if cfg.Page.TargetHost != "discord.com" {
		t.Errorf("TargetHost = %q", cfg.Page.TargetHost)
	}
	if cfg.Store.BusyTimeout != 10*time.Second {
		t.Errorf("BusyTimeout = %v, want 10s", cfg.Store.BusyTimeout)
	}
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bridge.Addr != "127.0.0.1:7463" {
		t.Errorf("Bridge.Addr = %q", cfg.Bridge.Addr)
	}
}

func TestLoadFile_OverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chanlight.yaml")
	yml := `
browser:
  remote: ws://127.0.0.1:9222/devtools/browser/abc
page:
  url: https://discord.com/channels/123
reconciler:
  retry_delay: 500ms
  retry_max: 10
store:
  path: ` + filepath.Join(dir, "s.db") + `
  watch: true
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Remote == "" {
		t.Error("remote not parsed")
	}
	if cfg.Reconciler.RetryDelay != 500*time.Millisecond || cfg.Reconciler.RetryMax != 10 {
		t.Errorf("Reconciler = %+v", cfg.Reconciler)
	}
	if !cfg.Store.Watch || cfg.Store.WatchInterval != time.Second {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.DataDir() != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir(), dir)
	}
	if cfg.Selectors.NameAttr != "data-dnd-name" {
		t.Errorf("NameAttr default not applied: %q", cfg.Selectors.NameAttr)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("page: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
