// Package htmldoc is a reconciler.Document over a parsed HTML tree. It
// restyles saved copies of the host page offline, with the same selector
// contract and the same style deltas the live page driver applies.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chanlight/config"
	"github.com/hazyhaar/chanlight/reconciler"
)

// Document is a parsed page. Safe for concurrent use.
type Document struct {
	mu   sync.Mutex
	root *html.Node

	channel   cascadia.Selector
	label     cascadia.Selector
	container cascadia.Selector
	nameAttr  string
	style     config.StyleConfig

	next  int
	index map[string]*html.Node
}

// Parse reads an HTML document and compiles the selectors.
func Parse(r io.Reader, sel config.SelectorConfig, style config.StyleConfig) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}

	d := &Document{
		root:     root,
		nameAttr: sel.NameAttr,
		style:    style,
		index:    make(map[string]*html.Node),
	}
	if d.channel, err = compile("channel", sel.Channel); err != nil {
		return nil, err
	}
	if d.label, err = compile("label", sel.Label); err != nil {
		return nil, err
	}
	if d.container, err = compile("container", sel.Container); err != nil {
		return nil, err
	}
	return d, nil
}

func compile(name, expr string) (cascadia.Selector, error) {
	s, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: %s selector %q: %w", name, expr, err)
	}
	return s, nil
}

// HasContainer reports whether the container selector matches.
func (d *Document) HasContainer(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.container.MatchFirst(d.root) != nil, nil
}

// Scan lists channel nodes in document order. Nodes without a key get one;
// keys found in the markup are kept.
func (d *Document) Scan(ctx context.Context) ([]reconciler.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := d.channel.MatchAll(d.root)
	index := make(map[string]*html.Node, len(nodes))
	for _, n := range nodes {
		if k, ok := getAttr(n, reconciler.KeyAttr); ok {
			index[k] = n
		}
	}

	out := make([]reconciler.Channel, 0, len(nodes))
	for _, n := range nodes {
		key, ok := getAttr(n, reconciler.KeyAttr)
		if !ok || index[key] != n {
			key = d.newKey(index)
			setAttr(n, reconciler.KeyAttr, key)
			index[key] = n
		}
		name, _ := getAttr(n, d.nameAttr)
		ch := reconciler.Channel{Key: key, Name: name, Marked: hasClass(n, d.style.MarkerClass)}
		if ch.Marked {
			ch.Color, _ = getAttr(n, reconciler.ColorAttr)
		}
		out = append(out, ch)
	}
	d.index = index
	return out, nil
}

func (d *Document) newKey(taken map[string]*html.Node) string {
	for {
		d.next++
		k := strconv.Itoa(d.next)
		if _, dup := taken[k]; !dup {
			return k
		}
	}
}

// Apply performs patches against the nodes seen by the last Scan.
func (d *Document) Apply(ctx context.Context, patches []reconciler.Patch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range patches {
		n, ok := d.index[p.Key]
		if !ok {
			continue
		}
		var err error
		if p.Clear {
			err = d.clear(n)
		} else {
			err = d.highlight(n, p.Color)
		}
		if err != nil {
			return fmt.Errorf("htmldoc: apply %s: %w", p.Key, err)
		}
	}
	return nil
}

func (d *Document) highlight(n *html.Node, color string) error {
	if err := editStyle(n, map[string]string{
		"background-color": color,
		"border-radius":    d.style.BorderRadius,
	}); err != nil {
		return err
	}
	addClass(n, d.style.MarkerClass)
	setAttr(n, reconciler.ColorAttr, color)
	if l := d.labelOf(n); l != nil {
		return editStyle(l, map[string]string{"color": d.style.LabelColor})
	}
	return nil
}

func (d *Document) clear(n *html.Node) error {
	if err := editStyle(n, map[string]string{"background-color": "", "border-radius": ""}); err != nil {
		return err
	}
	removeClass(n, d.style.MarkerClass)
	removeAttr(n, reconciler.ColorAttr)
	if l := d.labelOf(n); l != nil {
		return editStyle(l, map[string]string{"color": ""})
	}
	return nil
}

// labelOf finds the first descendant of n matching the label selector.
// n itself never matches, as with querySelector in the browser.
func (d *Document) labelOf(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if l := d.label.MatchFirst(c); l != nil {
			return l
		}
	}
	return nil
}

// Observe returns a no-op subscription: a parsed file never mutates on
// its own.
func (d *Document) Observe(ctx context.Context, fn func(reconciler.Batch)) (func(), error) {
	return func() {}, nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// editStyle rewrites the inline style attribute. Each key is set to its
// value, or removed when the value is empty. Other declarations keep their
// order.
func editStyle(n *html.Node, set map[string]string) error {
	raw, _ := getAttr(n, "style")
	decls, err := parser.ParseDeclarations(raw)
	if err != nil {
		return fmt.Errorf("style %q: %w", raw, err)
	}

	done := make(map[string]bool, len(set))
	kept := decls[:0]
	for _, decl := range decls {
		prop := strings.ToLower(decl.Property)
		v, ok := set[prop]
		switch {
		case !ok:
			kept = append(kept, decl)
		case v != "" && !done[prop]:
			kept = append(kept, &css.Declaration{Property: prop, Value: v})
			done[prop] = true
		}
	}
	for _, prop := range slices.Sorted(maps.Keys(set)) {
		if v := set[prop]; v != "" && !done[prop] {
			kept = append(kept, &css.Declaration{Property: prop, Value: v})
		}
	}

	if len(kept) == 0 {
		removeAttr(n, "style")
		return nil
	}
	parts := make([]string, 0, len(kept))
	for _, decl := range kept {
		s := decl.Property + ": " + decl.Value
		if decl.Important {
			s += " !important"
		}
		parts = append(parts, s)
	}
	setAttr(n, "style", strings.Join(parts, "; ")+";")
	return nil
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func hasClass(n *html.Node, class string) bool {
	v, _ := getAttr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	v, _ := getAttr(n, "class")
	setAttr(n, "class", strings.TrimSpace(v+" "+class))
}

func removeClass(n *html.Node, class string) {
	v, ok := getAttr(n, "class")
	if !ok {
		return
	}
	var kept []string
	for _, c := range strings.Fields(v) {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(kept, " "))
}
