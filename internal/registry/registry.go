// Package registry provides the owner-tagged multimap every extension point
// is built on.
//
// A Registry keeps all registrations in insertion order. Several entries may
// share a key; Lookup returns the one registered last. Every entry carries the
// owner that created it, so a plugin's contributions can be removed in bulk
// with UnregisterByOwner without disturbing entries made by anyone else, even
// when two owners registered under the same key.
package registry

import (
	"sync"
)

// ID identifies a single registration event.
type ID uint64

// Entry is one registration.
type Entry[K comparable, V any] struct {
	ID    ID
	Key   K
	Value V
	Owner string
}

// RemoveHook is called for every entry removed from a registry, after the
// index has been rebuilt. It runs with the registry lock released.
type RemoveHook[K comparable, V any] func(removed Entry[K, V])

// Option configures a Registry.
type Option[K comparable, V any] func(*Registry[K, V])

// WithRemoveHook installs a hook that observes removed entries.
func WithRemoveHook[K comparable, V any](hook RemoveHook[K, V]) Option[K, V] {
	return func(r *Registry[K, V]) {
		r.onRemove = hook
	}
}

// WithName labels the registry; the name shows up in sweep reports.
func WithName[K comparable, V any](name string) Option[K, V] {
	return func(r *Registry[K, V]) {
		r.name = name
	}
}

// Registry is an ownership-tagged, insertion-ordered multimap with
// last-registered-wins lookup. It is safe for concurrent use.
type Registry[K comparable, V any] struct {
	mu sync.RWMutex

	name    string
	entries []Entry[K, V]
	index   map[K]int // key -> position in entries of the latest entry
	nextID  ID

	onRemove RemoveHook[K, V]
}

// New creates an empty registry.
func New[K comparable, V any](opts ...Option[K, V]) *Registry[K, V] {
	r := &Registry[K, V]{
		index: make(map[K]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the registry label.
func (r *Registry[K, V]) Name() string {
	return r.name
}

// Register appends an entry. Keys need not be unique; the new entry becomes
// the one Lookup returns for key.
func (r *Registry[K, V]) Register(key K, value V, owner string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, Entry[K, V]{ID: id, Key: key, Value: value, Owner: owner})
	r.index[key] = len(r.entries) - 1
	return id
}

// UnregisterByOwner removes every entry owned by owner and returns how many
// were removed. Owning nothing is not an error.
func (r *Registry[K, V]) UnregisterByOwner(owner string) int {
	return r.removeWhere(func(e Entry[K, V]) bool {
		return e.Owner == owner
	})
}

// Remove removes the given registrations. Unknown IDs are ignored.
func (r *Registry[K, V]) Remove(ids ...ID) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return r.removeWhere(func(e Entry[K, V]) bool {
		_, ok := set[e.ID]
		return ok
	})
}

// Clear removes every entry.
func (r *Registry[K, V]) Clear() int {
	return r.removeWhere(func(Entry[K, V]) bool { return true })
}

func (r *Registry[K, V]) removeWhere(match func(Entry[K, V]) bool) int {
	r.mu.Lock()
	kept := r.entries[:0:0]
	var removed []Entry[K, V]
	for _, e := range r.entries {
		if match(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		r.mu.Unlock()
		return 0
	}
	r.entries = kept
	r.rebuildLocked()
	hook := r.onRemove
	r.mu.Unlock()

	if hook != nil {
		for _, e := range removed {
			hook(e)
		}
	}
	return len(removed)
}

// rebuildLocked recomputes the key index from the surviving entries in
// insertion order so the latest survivor wins.
func (r *Registry[K, V]) rebuildLocked() {
	r.index = make(map[K]int, len(r.entries))
	for i, e := range r.entries {
		r.index[e.Key] = i
	}
}

// Lookup returns the most recently registered live value for key.
func (r *Registry[K, V]) Lookup(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return r.entries[i].Value, true
}

// LookupEntry is Lookup that also reports the owner and registration ID.
func (r *Registry[K, V]) LookupEntry(key K) (Entry[K, V], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[key]
	if !ok {
		return Entry[K, V]{}, false
	}
	return r.entries[i], true
}

// All returns every live value in insertion order.
func (r *Registry[K, V]) All() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]V, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Value
	}
	return out
}

// Entries returns a snapshot of every live entry in insertion order.
func (r *Registry[K, V]) Entries() []Entry[K, V] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry[K, V], len(r.entries))
	copy(out, r.entries)
	return out
}

// Keys returns the distinct keys that currently resolve, in the order their
// visible entry was registered.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]K, 0, len(r.index))
	for i, e := range r.entries {
		if r.index[e.Key] == i {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// OwnedBy returns the entries registered by owner.
func (r *Registry[K, V]) OwnedBy(owner string) []Entry[K, V] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry[K, V]
	for _, e := range r.entries {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	return out
}

// Owners returns the distinct owners with live entries, in first-seen order.
func (r *Registry[K, V]) Owners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, e := range r.entries {
		if !seen[e.Owner] {
			seen[e.Owner] = true
			out = append(out, e.Owner)
		}
	}
	return out
}

// Len returns the number of live entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
