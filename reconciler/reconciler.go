// Package reconciler keeps channel highlights on the host page in line with
// the stored settings. It caches the last loaded highlight set, restyles
// the page on every batch of DOM mutations using that cache, and reloads
// from the store only on start-up and on an explicit settings-updated
// signal.
//
// Invariant: the marked channel nodes are exactly those whose lower-cased
// name is a key of the cached set and which are still in the document.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/chanlight/bridge"
	"github.com/hazyhaar/chanlight/highlight"
	"github.com/hazyhaar/chanlight/settings"
)

// ErrContainerNotFound is returned once RetryMax attempts found no container.
var ErrContainerNotFound = errors.New("reconciler: channel container not found")

// Config for creating a Reconciler.
type Config struct {
	Document Document
	Store    settings.Store
	// RetryDelay between container checks. Default: 2s.
	RetryDelay time.Duration
	// RetryMax caps observation attempts. 0 retries forever.
	RetryMax int
	Logger   *slog.Logger
}

// Reconciler owns the cached settings for one page.
type Reconciler struct {
	doc        Document
	store      settings.Store
	logger     *slog.Logger
	retryDelay time.Duration
	retryMax   int

	// mu serialises reconcile passes and cache swaps.
	mu     sync.Mutex
	cached highlight.Set

	// obsMu guards the subscription and the retry timer.
	obsMu    sync.Mutex
	gen      int
	attempts int
	retry    *time.Timer
	stopObs  func()
}

// New creates a Reconciler with an empty cache.
func New(cfg Config) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Reconciler{
		doc:        cfg.Document,
		store:      cfg.Store,
		logger:     cfg.Logger,
		retryDelay: cfg.RetryDelay,
		retryMax:   cfg.RetryMax,
		cached:     highlight.Set{},
	}
}

// Cached returns a copy of the cached set.
func (r *Reconciler) Cached() highlight.Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached.Clone()
}

// Reload fetches the set from the store, replaces the cache and reconciles.
// An invalidated store aborts the call without touching the cache; it is
// logged and returned, never retried.
func (r *Reconciler) Reload(ctx context.Context) error {
	set, err := r.store.Load(ctx)
	if err != nil {
		if errors.Is(err, settings.ErrContextInvalidated) || ctx.Err() != nil {
			r.logger.Warn("reconciler: settings load aborted, context invalidated", "error", err)
		} else {
			r.logger.Error("reconciler: settings load failed", "error", err)
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = set
	r.logger.Info("reconciler: settings loaded", "channels", len(set))
	return r.reconcileLocked(ctx, set)
}

// Reconcile applies set to the document.
func (r *Reconciler) Reconcile(ctx context.Context, set highlight.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconcileLocked(ctx, set)
}

func (r *Reconciler) reconcileLocked(ctx context.Context, set highlight.Set) error {
	channels, err := r.doc.Scan(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: scan: %w", err)
	}

	patches, applied := Plan(set, channels)
	if len(patches) > 0 {
		if err := r.doc.Apply(ctx, patches); err != nil {
			return fmt.Errorf("reconciler: apply: %w", err)
		}
	}
	r.logger.Debug("reconciler: pass complete",
		"highlighted", applied, "patches", len(patches), "channels", len(channels))
	return nil
}

// Plan computes the patches that bring channels in line with set, and the
// number of channels that end up highlighted. Channels already in the
// desired state produce no patch, so planning twice against an unchanged
// document yields nothing the second time.
func Plan(set highlight.Set, channels []Channel) (patches []Patch, applied int) {
	if len(set) == 0 {
		for _, ch := range channels {
			if ch.Marked {
				patches = append(patches, Patch{Key: ch.Key, Clear: true})
			}
		}
		return patches, 0
	}

	lookup := set.Lookup()
	for _, ch := range channels {
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			continue
		}
		color, ok := lookup[strings.ToLower(name)]
		switch {
		case ok:
			applied++
			if !ch.Marked || ch.Color != color {
				patches = append(patches, Patch{Key: ch.Key, Color: color})
			}
		case ch.Marked:
			patches = append(patches, Patch{Key: ch.Key, Clear: true})
		}
	}
	return patches, applied
}

// StartObserving waits for the channel container, then reloads once and
// subscribes to mutation batches. While the container is absent it checks
// again every RetryDelay. Calling it again replaces the previous
// subscription, so navigation can restart observation without duplicates.
func (r *Reconciler) StartObserving(ctx context.Context) error {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()

	r.stopLocked()
	r.attempts = 0
	return r.tryObserveLocked(ctx, r.gen)
}

func (r *Reconciler) tryObserveLocked(ctx context.Context, gen int) error {
	if gen != r.gen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	found, err := r.doc.HasContainer(ctx)
	if err != nil {
		r.logger.Warn("reconciler: container check failed", "error", err)
	}
	if !found {
		r.logger.Info("reconciler: channel container not found", "delay", r.retryDelay)
		return r.retryLocked(ctx, gen, ErrContainerNotFound)
	}

	r.logger.Info("reconciler: channel container found, observing")
	r.Reload(ctx)

	stop, err := r.doc.Observe(ctx, func(Batch) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.reconcileLocked(ctx, r.cached); err != nil {
			r.logger.Warn("reconciler: mutation pass failed", "error", err)
		}
	})
	if err != nil {
		// The container can unmount between the check and the injection.
		r.logger.Warn("reconciler: observe failed", "error", err, "delay", r.retryDelay)
		return r.retryLocked(ctx, gen, fmt.Errorf("reconciler: observe: %w", err))
	}
	r.stopObs = stop
	return nil
}

// retryLocked schedules another observation attempt after retryDelay, or
// returns giveUp once retryMax attempts have failed.
func (r *Reconciler) retryLocked(ctx context.Context, gen int, giveUp error) error {
	r.attempts++
	if r.retryMax > 0 && r.attempts >= r.retryMax {
		r.logger.Error("reconciler: observation not started, giving up", "attempts", r.attempts, "error", giveUp)
		return giveUp
	}
	r.retry = time.AfterFunc(r.retryDelay, func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		r.retry = nil
		if err := r.tryObserveLocked(ctx, gen); err != nil {
			r.logger.Error("reconciler: start observing", "error", err)
		}
	})
	return nil
}

// Stop cancels the subscription and any pending container retry.
func (r *Reconciler) Stop() {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.stopLocked()
}

func (r *Reconciler) stopLocked() {
	r.gen++
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
	if r.stopObs != nil {
		r.stopObs()
		r.stopObs = nil
	}
}

// HandleGetChannelNames lists trimmed, non-empty channel names in DOM
// order. Duplicates are kept.
func (r *Reconciler) HandleGetChannelNames(ctx context.Context) ([]string, error) {
	channels, err := r.doc.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler: scan: %w", err)
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		if n := strings.TrimSpace(ch.Name); n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// HandleSettingsUpdated reloads from the store.
func (r *Reconciler) HandleSettingsUpdated(ctx context.Context) error {
	return r.Reload(ctx)
}

// Register binds the Bridge actions to this reconciler.
func (r *Reconciler) Register(router *bridge.Router) {
	router.Handle(bridge.ActionGetChannelNames, func(ctx context.Context, _ []byte) ([]byte, error) {
		names, err := r.HandleGetChannelNames(ctx)
		if err != nil {
			return nil, err
		}
		r.logger.Info("reconciler: channel names requested", "count", len(names))
		return json.Marshal(bridge.ChannelNamesResponse{ChannelNames: names})
	})
	router.Handle(bridge.ActionSettingsUpdated, func(ctx context.Context, _ []byte) ([]byte, error) {
		r.logger.Info("reconciler: settings update signal received")
		return nil, r.HandleSettingsUpdated(ctx)
	})
}
