package extension

import (
	"sort"
	"sync"

	"github.com/dshills/apkedit/internal/registry"
)

// Highlighter describes how the text engine colors a language.
type Highlighter struct {
	// StyleKey is the key the tokenizer is installed under in the engine.
	StyleKey string

	// Tokenizer names the tokenizer implementation the engine should use.
	Tokenizer string

	SupportsFolding bool
	BracketMatching bool
}

// StyleInstaller is the part of the text engine every engine provides.
type StyleInstaller interface {
	InstallStyle(key, tokenizer string)
}

// StyleEngine is a text engine that also exposes style removal. RemoveStyle
// is privileged: only the highlighter registry calls it.
type StyleEngine interface {
	StyleInstaller
	RemoveStyle(key string) bool
}

// StyleTable is an in-memory StyleEngine.
type StyleTable struct {
	mu     sync.RWMutex
	styles map[string]string
}

// NewStyleTable creates an empty style table.
func NewStyleTable() *StyleTable {
	return &StyleTable{styles: make(map[string]string)}
}

// InstallStyle implements StyleInstaller.
func (t *StyleTable) InstallStyle(key, tokenizer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.styles[key] = tokenizer
}

// RemoveStyle implements StyleEngine.
func (t *StyleTable) RemoveStyle(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.styles[key]; !ok {
		return false
	}
	delete(t.styles, key)
	return true
}

// Tokenizer returns the tokenizer installed under key.
func (t *StyleTable) Tokenizer(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tok, ok := t.styles[key]
	return tok, ok
}

// Keys returns the installed style keys, sorted.
func (t *StyleTable) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.styles))
	for k := range t.styles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SoftRemoval adapts an engine that cannot forget a style. Removed keys are
// recorded and reported inactive; the underlying engine is left untouched.
type SoftRemoval struct {
	engine StyleInstaller

	mu        sync.Mutex
	installed map[string]bool
	removed   map[string]bool
}

// NewSoftRemoval wraps engine.
func NewSoftRemoval(engine StyleInstaller) *SoftRemoval {
	return &SoftRemoval{
		engine:    engine,
		installed: make(map[string]bool),
		removed:   make(map[string]bool),
	}
}

// InstallStyle implements StyleInstaller.
func (s *SoftRemoval) InstallStyle(key, tokenizer string) {
	s.mu.Lock()
	delete(s.removed, key)
	s.installed[key] = true
	s.mu.Unlock()

	s.engine.InstallStyle(key, tokenizer)
}

// RemoveStyle marks key as removed.
func (s *SoftRemoval) RemoveStyle(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.installed[key] || s.removed[key] {
		return false
	}
	s.removed[key] = true
	return true
}

// Active reports whether key is installed and not soft-removed.
func (s *SoftRemoval) Active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed[key] && !s.removed[key]
}

// Removed returns the soft-removed keys, sorted.
func (s *SoftRemoval) Removed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.removed))
	for k := range s.removed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsStyleEngine returns engine itself when it supports removal and wraps it
// in SoftRemoval otherwise.
func AsStyleEngine(engine StyleInstaller) StyleEngine {
	if e, ok := engine.(StyleEngine); ok {
		return e
	}
	return NewSoftRemoval(engine)
}

// Highlighters maps languages onto highlighters and keeps the style engine
// in step with the visible entries.
type Highlighters struct {
	reg    *registry.Registry[Language, Highlighter]
	engine StyleEngine
}

// NewHighlighters creates a highlighter registry driving engine. A nil
// engine gets a fresh StyleTable.
func NewHighlighters(engine StyleInstaller) *Highlighters {
	if engine == nil {
		engine = NewStyleTable()
	}
	h := &Highlighters{engine: AsStyleEngine(engine)}
	h.reg = registry.New(
		registry.WithName[Language, Highlighter]("highlighters"),
		registry.WithRemoveHook(h.onRemove),
	)
	return h
}

// Engine returns the style engine the registry drives.
func (h *Highlighters) Engine() StyleEngine {
	return h.engine
}

// Register adds hl for lang and installs its style.
func (h *Highlighters) Register(lang Language, hl Highlighter, owner string) registry.ID {
	id := h.reg.Register(lang, hl, owner)
	if hl.StyleKey != "" {
		h.engine.InstallStyle(hl.StyleKey, hl.Tokenizer)
	}
	return id
}

// onRemove drops the removed style unless a survivor still uses it, then
// re-installs whatever is now visible for the language.
func (h *Highlighters) onRemove(removed registry.Entry[Language, Highlighter]) {
	key := removed.Value.StyleKey
	if key != "" && !h.styleInUse(key) {
		h.engine.RemoveStyle(key)
	}
	if visible, ok := h.reg.Lookup(removed.Key); ok && visible.StyleKey != "" {
		h.engine.InstallStyle(visible.StyleKey, visible.Tokenizer)
	}
}

func (h *Highlighters) styleInUse(key string) bool {
	for _, hl := range h.reg.All() {
		if hl.StyleKey == key {
			return true
		}
	}
	return false
}

// Lookup returns the highlighter registered for lang.
func (h *Highlighters) Lookup(lang Language) (Highlighter, bool) {
	return h.reg.Lookup(lang)
}

// All returns every registration in insertion order.
func (h *Highlighters) All() []Highlighter {
	return h.reg.All()
}

// Languages returns the languages that currently have a highlighter.
func (h *Highlighters) Languages() []Language {
	return h.reg.Keys()
}

// Remove removes specific registrations.
func (h *Highlighters) Remove(ids ...registry.ID) int {
	return h.reg.Remove(ids...)
}

// UnregisterByOwner removes every highlighter registered by owner.
func (h *Highlighters) UnregisterByOwner(owner string) int {
	return h.reg.UnregisterByOwner(owner)
}

// Len returns the number of registrations.
func (h *Highlighters) Len() int {
	return h.reg.Len()
}
