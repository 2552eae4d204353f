// Package hostpage drives the live host page through Chrome DevTools. Page
// is the reconciler.Document the daemon runs against.
package hostpage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/chanlight/bridge"
	"github.com/hazyhaar/chanlight/config"
	"github.com/hazyhaar/chanlight/hostpage/internal/browser"
	"github.com/hazyhaar/chanlight/hostpage/internal/observer"
	"github.com/hazyhaar/chanlight/reconciler"
)

//go:embed scan.js
var scanJS string

//go:embed apply.js
var applyJS string

const hasContainerJS = `(sel) => document.querySelector(sel) !== null`

// Page is one tab on the host application.
type Page struct {
	mgr    *browser.Manager
	page   *rod.Page
	cfg    *config.Config
	logger *slog.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	onReset []func()
}

// Open starts (or connects to) Chrome and opens cfg.Page.URL in a new tab.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Page, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headless:         cfg.Browser.Headless,
		UserDataDir:      cfg.Browser.UserDataDir,
		Bin:              cfg.Browser.Bin,
		Stealth:          cfg.Browser.Stealth,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return nil, err
	}

	page, err := browser.OpenTab(ctx, mgr, cfg.Page.URL, cfg.Page.Timeout)
	if err != nil {
		mgr.Close()
		return nil, err
	}

	lctx, cancel := context.WithCancel(ctx)
	p := &Page{
		mgr:    mgr,
		page:   page,
		cfg:    cfg,
		logger: logger,
		cancel: cancel,
	}
	go p.watchLoads(lctx)

	logger.Info("hostpage: opened", "url", cfg.Page.URL)
	return p, nil
}

// OnReset registers fn to run after every main-frame load. A full
// navigation discards the injected observer, so the daemon restarts
// observation from here.
func (p *Page) OnReset(fn func()) {
	p.mu.Lock()
	p.onReset = append(p.onReset, fn)
	p.mu.Unlock()
}

func (p *Page) watchLoads(ctx context.Context) {
	p.page.Context(ctx).EachEvent(func(e *proto.PageLoadEventFired) {
		p.mu.Lock()
		fns := append([]func(){}, p.onReset...)
		p.mu.Unlock()

		p.logger.Info("hostpage: page loaded", "handlers", len(fns))
		for _, fn := range fns {
			go fn()
		}
	})()
}

// HasContainer reports whether the channel-list container is mounted.
func (p *Page) HasContainer(ctx context.Context) (bool, error) {
	res, err := p.page.Context(ctx).Eval(hasContainerJS, p.cfg.Selectors.Container)
	if err != nil {
		return false, fmt.Errorf("hostpage: container check: %w", err)
	}
	return res.Value.Bool(), nil
}

type wireChannel struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Marked bool   `json:"marked"`
	Color  string `json:"color"`
}

type wirePatch struct {
	Key   string `json:"key"`
	Color string `json:"color,omitempty"`
	Clear bool   `json:"clear,omitempty"`
}

// Scan lists channel rows in DOM order, tagging untagged nodes with a key.
func (p *Page) Scan(ctx context.Context) ([]reconciler.Channel, error) {
	res, err := p.page.Context(ctx).Eval(scanJS,
		p.cfg.Selectors.Channel, p.cfg.Selectors.NameAttr, p.cfg.Style.MarkerClass,
		reconciler.KeyAttr, reconciler.ColorAttr)
	if err != nil {
		return nil, fmt.Errorf("hostpage: scan: %w", err)
	}
	return decodeChannels(res.Value.Str())
}

func decodeChannels(raw string) ([]reconciler.Channel, error) {
	var wire []wireChannel
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("hostpage: decode scan: %w", err)
	}
	out := make([]reconciler.Channel, len(wire))
	for i, w := range wire {
		out[i] = reconciler.Channel{Key: w.Key, Name: w.Name, Marked: w.Marked, Color: w.Color}
	}
	return out, nil
}

// Apply performs patches in one round trip. Keys of nodes that were
// unmounted since the scan are skipped by the page script.
func (p *Page) Apply(ctx context.Context, patches []reconciler.Patch) error {
	if len(patches) == 0 {
		return nil
	}
	res, err := p.page.Context(ctx).Eval(applyJS, encodePatches(patches),
		p.cfg.Selectors.Label, p.cfg.Style.MarkerClass, p.cfg.Style.BorderRadius, p.cfg.Style.LabelColor,
		reconciler.KeyAttr, reconciler.ColorAttr)
	if err != nil {
		return fmt.Errorf("hostpage: apply: %w", err)
	}
	if done := res.Value.Int(); done < len(patches) {
		p.logger.Debug("hostpage: patches skipped", "skipped", len(patches)-done)
	}
	return nil
}

func encodePatches(patches []reconciler.Patch) []wirePatch {
	out := make([]wirePatch, len(patches))
	for i, pt := range patches {
		out[i] = wirePatch{Key: pt.Key, Color: pt.Color, Clear: pt.Clear}
	}
	return out
}

// Observe injects a MutationObserver on the container and calls fn with
// debounced batches until stop is called or ctx ends.
func (p *Page) Observe(ctx context.Context, fn func(reconciler.Batch)) (func(), error) {
	o := observer.New(ctx, observer.Config{
		Page:           p.page,
		Container:      p.cfg.Selectors.Container,
		DebounceWindow: p.cfg.Reconciler.Debounce,
		DebounceMax:    p.cfg.Reconciler.MaxBatch,
		Logger:         p.logger,
	}, func(b observer.Batch) {
		fn(reconciler.Batch{Added: b.Added, Removed: b.Removed})
	})
	if err := o.Start(); err != nil {
		return nil, err
	}
	return o.Stop, nil
}

// Tab reports the tab's current URL. It serves GET /api/tab.
func (p *Page) Tab(ctx context.Context) (bridge.Tab, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return bridge.Tab{}, fmt.Errorf("hostpage: tab info: %w", err)
	}
	return bridge.Tab{URL: info.URL}, nil
}

// Close closes the tab and releases Chrome.
func (p *Page) Close() error {
	p.cancel()
	if err := p.page.Close(); err != nil {
		p.logger.Debug("hostpage: close tab", "error", err)
	}
	return p.mgr.Close()
}
