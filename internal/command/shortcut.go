package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/apkedit/internal/registry"
)

// ErrInvalidShortcut is returned for an empty or malformed key chord.
var ErrInvalidShortcut = errors.New("invalid shortcut")

// modifierOrder fixes the canonical order of modifiers in a chord.
var modifierOrder = map[string]int{
	"ctrl":  0,
	"alt":   1,
	"shift": 2,
	"meta":  3,
}

var modifierAliases = map[string]string{
	"control": "ctrl",
	"c":       "ctrl",
	"option":  "alt",
	"opt":     "alt",
	"a":       "alt",
	"s":       "shift",
	"cmd":     "meta",
	"command": "meta",
	"super":   "meta",
	"m":       "meta",
}

// NormalizeKeys returns the canonical form of a key chord: lowercase,
// modifiers first in ctrl/alt/shift/meta order, joined with "+".
// Both "Ctrl+Shift+P" and "shift-ctrl-p" normalize to "ctrl+shift+p".
func NormalizeKeys(keys string) (string, error) {
	keys = strings.TrimSpace(strings.ToLower(keys))
	if keys == "" {
		return "", ErrInvalidShortcut
	}
	keys = strings.Trim(keys, "<>")

	sep := "+"
	if !strings.Contains(keys, "+") && strings.Contains(keys, "-") && len(keys) > 1 {
		sep = "-"
	}
	parts := strings.Split(keys, sep)

	var mods []string
	var key string
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidShortcut, keys)
		}
		last := i == len(parts)-1
		if alias, ok := modifierAliases[p]; ok && !last {
			p = alias
		}
		if _, ok := modifierOrder[p]; ok && !last {
			mods = append(mods, p)
			continue
		}
		if !last {
			return "", fmt.Errorf("%w: %q is not a modifier", ErrInvalidShortcut, p)
		}
		key = p
	}

	sort.Slice(mods, func(i, j int) bool {
		return modifierOrder[mods[i]] < modifierOrder[mods[j]]
	})
	mods = dedupe(mods)
	return strings.Join(append(mods, key), "+"), nil
}

func dedupe(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i > 0 && in[i-1] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Shortcut binds a key chord to a command.
type Shortcut struct {
	Keys      string
	CommandID string
}

// Shortcuts is the global shortcut table.
type Shortcuts struct {
	bindings *registry.Registry[string, Shortcut]
}

// NewShortcuts creates an empty shortcut table.
func NewShortcuts() *Shortcuts {
	return &Shortcuts{
		bindings: registry.New(registry.WithName[string, Shortcut]("shortcuts")),
	}
}

// Bind maps keys onto commandID for owner.
func (s *Shortcuts) Bind(keys, commandID, owner string) (registry.ID, error) {
	norm, err := NormalizeKeys(keys)
	if err != nil {
		return 0, err
	}
	if commandID == "" {
		return 0, ErrInvalidCommand
	}
	return s.bindings.Register(norm, Shortcut{Keys: norm, CommandID: commandID}, owner), nil
}

// Resolve returns the command bound to keys.
func (s *Shortcuts) Resolve(keys string) (string, bool) {
	norm, err := NormalizeKeys(keys)
	if err != nil {
		return "", false
	}
	sc, ok := s.bindings.Lookup(norm)
	if !ok {
		return "", false
	}
	return sc.CommandID, true
}

// Dispatch executes the command bound to keys. It reports false when no
// binding exists.
func (s *Shortcuts) Dispatch(ctx context.Context, keys string, commands *Registry) (bool, error) {
	id, ok := s.Resolve(keys)
	if !ok {
		return false, nil
	}
	return true, commands.Execute(ctx, id, nil)
}

// All returns the visible bindings in registration order.
func (s *Shortcuts) All() []Shortcut {
	keys := s.bindings.Keys()
	out := make([]Shortcut, 0, len(keys))
	for _, k := range keys {
		if sc, ok := s.bindings.Lookup(k); ok {
			out = append(out, sc)
		}
	}
	return out
}

// Remove removes specific bindings.
func (s *Shortcuts) Remove(ids ...registry.ID) int {
	return s.bindings.Remove(ids...)
}

// UnregisterByOwner removes every binding made by owner.
func (s *Shortcuts) UnregisterByOwner(owner string) int {
	return s.bindings.UnregisterByOwner(owner)
}
