// Package settings is the editor's persistent key/value store: a JSON file
// addressed with gjson paths ("editor.tabSize", "recent.files").
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Well-known keys.
const (
	KeyLocale           = "locale"
	KeyTheme            = "theme"
	KeyRecentFiles      = "recent.files"
	KeyRecentWorkspaces = "recent.workspaces"
	KeyDisabledPlugins  = "plugins.disabled"
)

// DefaultRecentLimit caps recent lists.
const DefaultRecentLimit = 10

// Errors for settings operations.
var (
	ErrInvalidJSON = errors.New("settings: invalid JSON")
	ErrEmptyKey    = errors.New("settings: empty key")
)

// Store is a JSON settings document backed by a file. It is safe for
// concurrent use; changes are written by Save.
type Store struct {
	mu    sync.RWMutex
	path  string
	data  []byte
	dirty bool
}

// Open loads the settings file at path. A missing file yields an empty
// store that Save will create.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		data = []byte("{}")
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, path)
	}
	return &Store{path: path, data: data}, nil
}

// NewMemory creates a store that is never written to disk.
func NewMemory() *Store {
	return &Store{data: []byte("{}")}
}

// Path returns the backing file, empty for memory stores.
func (s *Store) Path() string {
	return s.path
}

// Get returns the raw value at key.
func (s *Store) Get(key string) gjson.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gjson.GetBytes(s.data, key)
}

// Has reports whether key is set.
func (s *Store) Has(key string) bool {
	return s.Get(key).Exists()
}

// String returns the string at key or def.
func (s *Store) String(key, def string) string {
	if r := s.Get(key); r.Exists() {
		return r.String()
	}
	return def
}

// Bool returns the boolean at key or def.
func (s *Store) Bool(key string, def bool) bool {
	if r := s.Get(key); r.Exists() {
		return r.Bool()
	}
	return def
}

// Int returns the integer at key or def.
func (s *Store) Int(key string, def int) int {
	if r := s.Get(key); r.Exists() {
		return int(r.Int())
	}
	return def
}

// Strings returns the string array at key.
func (s *Store) Strings(key string) []string {
	r := s.Get(key)
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}

// Set stores value at key.
func (s *Store) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := sjson.SetBytes(s.data, key, value)
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	s.data = data
	s.dirty = true
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := sjson.DeleteBytes(s.data, key)
	if err != nil {
		return fmt.Errorf("settings: delete %s: %w", key, err)
	}
	s.data = data
	s.dirty = true
	return nil
}

// AddRecent moves value to the front of the list at key, removing any
// earlier occurrence and keeping at most limit entries.
func (s *Store) AddRecent(key, value string, limit int) error {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	list := []string{value}
	for _, v := range s.Strings(key) {
		if v != value && len(list) < limit {
			list = append(list, v)
		}
	}
	return s.Set(key, list)
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// JSON returns the document, indented.
func (s *Store) JSON() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pretty.Pretty(s.data)
}

// Save writes the document to its file through a temporary file and a
// rename. Memory stores and clean stores are not written.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" || !s.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pretty.Pretty(s.data)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	s.dirty = false
	return nil
}
