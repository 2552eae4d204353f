// Package config loads the chanlight YAML configuration shared by the page
// daemon and the editor.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level chanlight configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Page       PageConfig       `yaml:"page"`
	Selectors  SelectorConfig   `yaml:"selectors"`
	Style      StyleConfig      `yaml:"style"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Store      StoreConfig      `yaml:"store"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// BrowserConfig controls the Chrome instance the daemon drives.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`        // DevTools ws:// URL; empty launches Chrome
	Headless         bool     `yaml:"headless"`      // default false: the user logs in interactively
	UserDataDir      string   `yaml:"user_data_dir"` // persistent profile keeps the session
	Bin              string   `yaml:"bin"`
	Stealth          bool     `yaml:"stealth"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// PageConfig identifies the host application.
type PageConfig struct {
	URL        string        `yaml:"url"`
	TargetHost string        `yaml:"target_host"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SelectorConfig is the versioned assumption about the host page's markup.
type SelectorConfig struct {
	Channel   string `yaml:"channel"`
	NameAttr  string `yaml:"name_attr"`
	Label     string `yaml:"label"`
	Container string `yaml:"container"`
}

// StyleConfig is what a highlighted channel looks like.
type StyleConfig struct {
	MarkerClass  string `yaml:"marker_class"`
	BorderRadius string `yaml:"border_radius"`
	LabelColor   string `yaml:"label_color"`
}

// ReconcilerConfig tunes the page-side loop.
type ReconcilerConfig struct {
	RetryDelay time.Duration `yaml:"retry_delay"`
	RetryMax   int           `yaml:"retry_max"` // 0 = unlimited
	Debounce   time.Duration `yaml:"debounce"`
	MaxBatch   int           `yaml:"max_batch"`
}

// StoreConfig locates the settings database.
type StoreConfig struct {
	Path          string        `yaml:"path"`
	BusyTimeout   time.Duration `yaml:"busy_timeout"`
	Watch         bool          `yaml:"watch"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// BridgeConfig is the loopback address the daemon serves the Bridge on.
type BridgeConfig struct {
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file. An empty path or a file that
// does not exist yields the defaults.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// DataDir is the directory holding the settings database and editor log.
func (c *Config) DataDir() string {
	return filepath.Dir(c.Store.Path)
}

func (c *Config) applyDefaults() {
	if c.Page.URL == "" {
		c.Page.URL = "https://discord.com/channels/@me"
	}
	if c.Page.TargetHost == "" {
		c.Page.TargetHost = "discord.com"
	}
	if c.Page.Timeout <= 0 {
		c.Page.Timeout = 30 * time.Second
	}

	if c.Selectors.Channel == "" {
		c.Selectors.Channel = "li[data-dnd-name]"
	}
	if c.Selectors.NameAttr == "" {
		c.Selectors.NameAttr = "data-dnd-name"
	}
	if c.Selectors.Label == "" {
		c.Selectors.Label = `div[class^="name__"]`
	}
	if c.Selectors.Container == "" {
		c.Selectors.Container = `nav[role="navigation"]`
	}

	if c.Style.MarkerClass == "" {
		c.Style.MarkerClass = "channel-highlighted-by-extension"
	}
	if c.Style.BorderRadius == "" {
		c.Style.BorderRadius = "4px"
	}
	if c.Style.LabelColor == "" {
		c.Style.LabelColor = "#1E293B"
	}

	if c.Reconciler.RetryDelay <= 0 {
		c.Reconciler.RetryDelay = 2 * time.Second
	}
	if c.Reconciler.Debounce <= 0 {
		c.Reconciler.Debounce = 100 * time.Millisecond
	}
	if c.Reconciler.MaxBatch <= 0 {
		c.Reconciler.MaxBatch = 500
	}

	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath()
	}
	if c.Store.BusyTimeout <= 0 {
		c.Store.BusyTimeout = 10 * time.Second
	}
	if c.Store.WatchInterval <= 0 {
		c.Store.WatchInterval = time.Second
	}

	if c.Bridge.Addr == "" {
		c.Bridge.Addr = "127.0.0.1:7463"
	}
	if c.Bridge.Timeout <= 0 {
		c.Bridge.Timeout = 5 * time.Second
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "chanlight", "settings.db")
}
