// Package highlight defines the channel highlight model shared by the page
// daemon and the editor: a (channel name, color) pair and the ordered set
// persisted as a single settings record.
//
// Identity is the channel name compared case-insensitively. A Set never
// holds two entries whose names differ only by case; Upsert enforces this
// at write time by updating in place.
package highlight

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Highlight pairs a channel name with an opaque color value.
type Highlight struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Set is an ordered list of highlights. Order is display order in the
// editor; the reconciler only needs lookup by name.
type Set []Highlight

// key is the identity of a channel name.
func key(name string) string {
	return strings.ToLower(name)
}

// Index returns the position of name (case-insensitive), or -1.
func (s Set) Index(name string) int {
	k := key(strings.TrimSpace(name))
	for i, h := range s {
		if key(h.Name) == k {
			return i
		}
	}
	return -1
}

// Upsert returns a set where name maps to color. An existing entry with the
// same name in any case has its color replaced in place and keeps its
// original spelling; otherwise the pair is appended. A blank name leaves
// the set unchanged and reports false.
func (s Set) Upsert(name, color string) (Set, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return s, false
	}
	out := s.Clone()
	if i := out.Index(name); i >= 0 {
		out[i].Color = color
		return out, true
	}
	return append(out, Highlight{Name: name, Color: color}), true
}

// Remove returns the set without the entry at i. Out-of-range indexes leave
// the set unchanged and report false.
func (s Set) Remove(i int) (Set, bool) {
	if i < 0 || i >= len(s) {
		return s, false
	}
	out := make(Set, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...), true
}

// Lookup maps each lower-cased name to its color.
func (s Set) Lookup() map[string]string {
	m := make(map[string]string, len(s))
	for _, h := range s {
		if _, dup := m[key(h.Name)]; dup {
			continue
		}
		m[key(h.Name)] = h.Color
	}
	return m
}

// Clone returns a copy that shares no backing array with s.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Normalize trims names, drops blank ones and keeps only the first of any
// case-insensitive duplicates. Records written by older or foreign clients
// go through here before use.
func (s Set) Normalize() Set {
	out := make(Set, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, h := range s {
		h.Name = strings.TrimSpace(h.Name)
		if h.Name == "" || seen[key(h.Name)] {
			continue
		}
		seen[key(h.Name)] = true
		out = append(out, h)
	}
	return out
}

// NormalizeColor turns user input into the "#rrggbb" form a native color
// picker would produce. Accepts #rgb and #rrggbb, with or without the
// leading '#'.
func NormalizeColor(in string) (string, error) {
	s := strings.TrimSpace(in)
	if s == "" {
		return "", fmt.Errorf("highlight: empty color")
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 4 && len(s) != 7 {
		return "", fmt.Errorf("highlight: color %q: want #rgb or #rrggbb", in)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", fmt.Errorf("highlight: color %q: %w", in, err)
	}
	return c.Hex(), nil
}

// IsLight reports whether a color is light enough that dark text reads
// better on it. Unparseable colors count as light.
func IsLight(color string) bool {
	c, err := colorful.Hex(color)
	if err != nil {
		return true
	}
	l, _, _ := c.Lab()
	return l >= 0.6
}
