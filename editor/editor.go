// Package editor is the settings editor behind the chanlight TUI. It holds
// a working copy of the highlight set, persists every change wholesale and
// tells the page daemon to reload.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hazyhaar/chanlight/bridge"
	"github.com/hazyhaar/chanlight/highlight"
	"github.com/hazyhaar/chanlight/settings"
)

// Status lines shown under the form.
const (
	StatusSaved     = "Settings saved!"
	StatusOpenTab   = "Please open a Discord tab."
	StatusRefresh   = "Error: Refresh Discord and try again."
	StatusSaveError = "Error: settings could not be saved."
)

// Selector placeholders.
const (
	PromptSelect     = "-- Select Channel --"
	PromptNoChannels = "-- No channels found --"
)

// Submit labels.
const (
	LabelAdd    = "Add"
	LabelUpdate = "Update"
)

// Page is the editor's view of the page daemon. *bridge.Client implements it.
type Page interface {
	ActiveTab(ctx context.Context) (bridge.Tab, error)
	ChannelNames(ctx context.Context) ([]string, error)
	NotifySettingsUpdated(ctx context.Context) error
}

// Mode is the state of the submit control.
type Mode int

const (
	Adding Mode = iota
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "editing"
	}
	return "adding"
}

// Row is one rendered entry of the working set.
type Row struct {
	Index   int
	Name    string
	Color   string
	Editing bool
}

// Option configures an Editor.
type Option func(*Editor)

// WithLogger sets the editor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// WithDefaultColor sets the color the form resets to.
func WithDefaultColor(c string) Option {
	return func(e *Editor) { e.defaultColor = c }
}

// Editor is not safe for concurrent use; the TUI drives it from its update
// loop. FetchChannelNames and Persist only touch fields fixed at New and
// may run elsewhere.
type Editor struct {
	store        settings.Store
	page         Page
	targetHost   string
	logger       *slog.Logger
	defaultColor string

	working highlight.Set
	mode    Mode
	editing int

	selected   string
	color      string
	status     string
	options    []string
	noChannels bool
	locked     bool
}

// New creates an Editor. targetHost is the host the active tab must be on
// (subdomains match).
func New(store settings.Store, page Page, targetHost string, opts ...Option) *Editor {
	e := &Editor{
		store:        store,
		page:         page,
		targetHost:   strings.ToLower(targetHost),
		logger:       slog.Default(),
		defaultColor: "#FDE68A",
		working:      highlight.Set{},
	}
	for _, o := range opts {
		o(e)
	}
	e.color = e.defaultColor
	return e
}

// Load replaces the working set with the stored one.
func (e *Editor) Load(ctx context.Context) error {
	set, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Error("editor: load settings", "error", err)
		return fmt.Errorf("editor: load: %w", err)
	}
	e.working = set
	e.logger.Info("editor: settings loaded", "channels", len(set))
	return nil
}

// Rows renders the working set in order.
func (e *Editor) Rows() []Row {
	rows := make([]Row, len(e.working))
	for i, h := range e.working {
		rows[i] = Row{
			Index:   i,
			Name:    h.Name,
			Color:   h.Color,
			Editing: e.mode == Editing && e.editing == i,
		}
	}
	return rows
}

// ChannelList is the outcome of asking the page for its channel names.
type ChannelList struct {
	Names     []string
	WrongHost bool
	Err       error
}

// RequestChannelNames fills the selector from the page. The status line
// reports a wrong tab or an unreachable page instead of a list.
func (e *Editor) RequestChannelNames(ctx context.Context) error {
	res := e.FetchChannelNames(ctx)
	e.ApplyChannelNames(res)
	return res.Err
}

// FetchChannelNames queries the page without touching the form, so it can
// run off the UI loop.
func (e *Editor) FetchChannelNames(ctx context.Context) ChannelList {
	tab, err := e.page.ActiveTab(ctx)
	if err != nil {
		e.logger.Error("editor: could not reach page daemon", "error", err)
		return ChannelList{Err: fmt.Errorf("editor: active tab: %w", err)}
	}
	if !e.onTargetHost(tab.URL) {
		return ChannelList{WrongHost: true}
	}
	names, err := e.page.ChannelNames(ctx)
	if err != nil {
		e.logger.Error("editor: could not connect to page", "error", err)
		return ChannelList{Err: fmt.Errorf("editor: channel names: %w", err)}
	}
	return ChannelList{Names: names}
}

// ApplyChannelNames puts a fetched list into the selector.
func (e *Editor) ApplyChannelNames(res ChannelList) {
	e.options = nil
	e.noChannels = false
	switch {
	case res.Err != nil:
		e.status = StatusRefresh
		return
	case res.WrongHost:
		e.status = StatusOpenTab
		return
	}
	if e.status == StatusRefresh || e.status == StatusOpenTab {
		e.status = ""
	}
	if len(res.Names) == 0 {
		e.noChannels = true
		return
	}
	e.options = res.Names
}

// BeginEdit loads entry i into the form and locks the selector to its
// name. It reports whether i was in range.
func (e *Editor) BeginEdit(i int) bool {
	if i < 0 || i >= len(e.working) {
		return false
	}
	h := e.working[i]
	e.mode = Editing
	e.editing = i
	e.selected = h.Name
	e.color = h.Color
	e.locked = true
	return true
}

// Select sets the selector value. Clearing it always returns the form to
// Adding; any other value is refused while the selector is disabled.
func (e *Editor) Select(name string) bool {
	if name == "" {
		e.resetForm(false)
		return true
	}
	if e.SelectorDisabled() {
		return false
	}
	e.selected = name
	return true
}

// SetColor normalises and sets the form color.
func (e *Editor) SetColor(c string) error {
	norm, err := highlight.NormalizeColor(c)
	if err != nil {
		return err
	}
	e.color = norm
	return nil
}

// Change is a pending edit of the working set.
type Change struct {
	Next highlight.Set

	remove bool
	index  int
}

// Submit upserts the form values.
func (e *Editor) Submit(ctx context.Context) error {
	return e.Upsert(ctx, e.selected, e.color)
}

// PrepareSubmit is Submit without the I/O: see PrepareUpsert.
func (e *Editor) PrepareSubmit() (Change, bool) {
	return e.PrepareUpsert(e.selected, e.color)
}

// Upsert adds name with color, or recolors the entry with the same name in
// any case. A blank name is a no-op. The whole set is persisted, the page
// is notified on a best-effort basis and the form is reset.
func (e *Editor) Upsert(ctx context.Context, name, color string) error {
	c, ok := e.PrepareUpsert(name, color)
	if !ok {
		return nil
	}
	return e.Commit(c, e.Persist(ctx, c))
}

// PrepareUpsert computes the change Upsert would persist. ok is false for a
// blank name.
func (e *Editor) PrepareUpsert(name, color string) (c Change, ok bool) {
	next, ok := e.working.Upsert(name, color)
	if !ok {
		return Change{}, false
	}
	return Change{Next: next}, true
}

// Remove deletes entry i. Out of range is a no-op.
func (e *Editor) Remove(ctx context.Context, i int) error {
	c, ok := e.PrepareRemove(i)
	if !ok {
		return nil
	}
	return e.Commit(c, e.Persist(ctx, c))
}

// PrepareRemove computes the change Remove would persist. ok is false when
// i is out of range.
func (e *Editor) PrepareRemove(i int) (c Change, ok bool) {
	next, ok := e.working.Remove(i)
	if !ok {
		return Change{}, false
	}
	return Change{Next: next, remove: true, index: i}, true
}

// Persist saves c and notifies the page. It reads no form state, so it can
// run off the UI loop; Commit must follow with its result.
func (e *Editor) Persist(ctx context.Context, c Change) error {
	if err := e.store.Save(ctx, c.Next); err != nil {
		e.logger.Error("editor: save settings", "error", err)
		return fmt.Errorf("editor: save: %w", err)
	}
	e.logger.Info("editor: settings saved", "channels", len(c.Next))
	e.notify(ctx)
	return nil
}

// Commit applies a persisted change to the working set and the form. A
// failed save leaves both untouched and sets the error status.
func (e *Editor) Commit(c Change, err error) error {
	if err != nil {
		e.status = StatusSaveError
		return err
	}
	e.working = c.Next
	e.status = StatusSaved
	if !c.remove {
		e.resetForm(true)
		return nil
	}
	if e.mode == Editing {
		switch {
		case c.index == e.editing:
			e.resetForm(true)
		case c.index < e.editing:
			e.editing--
		}
	}
	return nil
}

// notify tells the page to reload. Failures are logged only: the daemon
// picks the new set up on its next load anyway.
func (e *Editor) notify(ctx context.Context) {
	tab, err := e.page.ActiveTab(ctx)
	if err != nil {
		e.logger.Info("editor: could not send settings update, page daemon not reachable", "error", err)
		return
	}
	if !e.onTargetHost(tab.URL) {
		return
	}
	if err := e.page.NotifySettingsUpdated(ctx); err != nil {
		e.logger.Info("editor: could not send settings update, page may not be ready", "error", err)
	}
}

func (e *Editor) resetForm(resetColor bool) {
	e.mode = Adding
	e.editing = 0
	e.selected = ""
	e.locked = false
	if resetColor {
		e.color = e.defaultColor
	}
}

func (e *Editor) onTargetHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return h != "" && (h == e.targetHost || strings.HasSuffix(h, "."+e.targetHost))
}

// ClearStatus empties the status line.
func (e *Editor) ClearStatus() { e.status = "" }

func (e *Editor) Working() highlight.Set { return e.working.Clone() }
func (e *Editor) Mode() Mode              { return e.mode }
func (e *Editor) Selected() string        { return e.selected }
func (e *Editor) Color() string           { return e.color }
func (e *Editor) Status() string          { return e.status }
func (e *Editor) Options() []string       { return e.options }

// EditIndex is the entry being edited, or -1 while Adding.
func (e *Editor) EditIndex() int {
	if e.mode != Editing {
		return -1
	}
	return e.editing
}

// SelectorDisabled reports whether picking a channel is refused: while
// editing, or when the page listed no channels.
func (e *Editor) SelectorDisabled() bool { return e.locked || e.noChannels }

// Placeholder is the selector's empty option.
func (e *Editor) Placeholder() string {
	if e.noChannels {
		return PromptNoChannels
	}
	return PromptSelect
}

// SubmitLabel is the submit control's label for the current mode.
func (e *Editor) SubmitLabel() string {
	if e.mode == Editing {
		return LabelUpdate
	}
	return LabelAdd
}
