// Package observer watches the channel-list container of a live page. It
// injects a MutationObserver (child lists, whole subtree) that reports to
// Go through a Runtime binding, and coalesces the reports before handing
// them on.
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// BindingName is the window function the injected script calls.
const BindingName = "__chanlight_batch"

//go:embed observer.js
var observerJS string

//go:embed disconnect.js
var disconnectJS string

// Batch summarises child-list mutations.
type Batch struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	// Records is the number of MutationRecords folded in.
	Records int `json:"records"`
}

func (b Batch) merge(o Batch) Batch {
	return Batch{
		Added:   b.Added + o.Added,
		Removed: b.Removed + o.Removed,
		Records: b.Records + o.Records,
	}
}

func (b Batch) empty() bool {
	return b.Added == 0 && b.Removed == 0 && b.Records == 0
}

// Config for creating an Observer.
type Config struct {
	Page *rod.Page
	// Container is the CSS selector of the observed subtree root.
	Container      string
	DebounceWindow time.Duration
	DebounceMax    int
	Logger         *slog.Logger
}

// Observer delivers debounced mutation batches for one page.
type Observer struct {
	page      *rod.Page
	container string
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	rawCh     chan Batch
	debouncer *debouncer
}

// New creates an Observer. fn runs on the observer goroutine, one batch
// at a time.
func New(ctx context.Context, cfg Config, fn func(Batch)) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	o := &Observer{
		page:      cfg.Page,
		container: cfg.Container,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		rawCh:     make(chan Batch, 256),
	}
	o.debouncer = newDebouncer(debounceConfig{
		Window:     cfg.DebounceWindow,
		MaxRecords: cfg.DebounceMax,
	}, fn)
	return o
}

// Start registers the binding, injects the MutationObserver and runs the
// batching loop. It fails if the container is not in the document.
func (o *Observer) Start() error {
	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(o.page); err != nil {
		o.logger.Warn("observer: addBinding failed (may already exist)", "error", err)
	}

	go o.listenBinding()

	res, err := o.page.Context(o.ctx).Eval(observerJS, o.container, BindingName)
	if err != nil {
		o.cancel()
		return fmt.Errorf("observer: inject: %w", err)
	}
	if !res.Value.Bool() {
		o.cancel()
		return fmt.Errorf("observer: container %q not found", o.container)
	}

	go o.loop()
	o.logger.Debug("observer: injected", "container", o.container)
	return nil
}

// Stop disconnects the injected observer and ends the loop. Pending
// mutations are dropped: the next pass rescans the whole list anyway.
func (o *Observer) Stop() {
	if o.ctx.Err() == nil {
		if _, err := o.page.Eval(disconnectJS); err != nil {
			o.logger.Debug("observer: disconnect failed", "error", err)
		}
	}
	o.cancel()
}

// listenBinding receives calls from the injected script via
// Runtime.bindingCalled.
func (o *Observer) listenBinding() {
	o.page.Context(o.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		var b Batch
		if err := json.Unmarshal([]byte(e.Payload), &b); err != nil {
			o.logger.Warn("observer: parse binding payload", "error", err)
			return
		}
		select {
		case o.rawCh <- b:
		case <-o.ctx.Done():
		}
	})()
}

func (o *Observer) loop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case b := <-o.rawCh:
			o.debouncer.add(b)
		case <-o.debouncer.timerC():
			o.debouncer.flush()
		}
	}
}
