// Package service provides the type-keyed service registry plugins use to
// publish and consume shared capabilities such as the decompiler or search.
package service

import (
	"reflect"
	"sort"
	"sync"
)

type entry struct {
	instance any
	owner    string
}

// Registry stores at most one instance per service type.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	services map[reflect.Type]entry
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[reflect.Type]entry),
	}
}

// Register publishes instance under t, replacing any previous instance.
func (r *Registry) Register(t reflect.Type, instance any, owner string) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[t] = entry{instance: instance, owner: owner}
}

// Lookup returns the instance registered under t.
func (r *Registry) Lookup(t reflect.Type) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.services[t]
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// Owner returns the owner of the instance registered under t.
func (r *Registry) Owner(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.services[t]
	return e.owner, ok
}

// Unregister removes the service under t if owner owns it. A service that
// was since replaced by another owner is left alone.
func (r *Registry) Unregister(t reflect.Type, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.services[t]
	if !ok || e.owner != owner {
		return false
	}
	delete(r.services, t)
	return true
}

// UnregisterByOwner removes every service owned by owner.
func (r *Registry) UnregisterByOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for t, e := range r.services {
		if e.owner == owner {
			delete(r.services, t)
			n++
		}
	}
	return n
}

// Types returns the registered service types sorted by name.
func (r *Registry) Types() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]reflect.Type, 0, len(r.services))
	for t := range r.services {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].String() < types[j].String()
	})
	return types
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// TypeOf returns the registry key for T. Interfaces are keyed by the
// interface type itself, not the dynamic type of the instance.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Provide registers v as the T service.
func Provide[T any](r *Registry, v T, owner string) {
	r.Register(TypeOf[T](), v, owner)
}

// Get returns the T service if one is registered.
func Get[T any](r *Registry) (T, bool) {
	var zero T
	v, ok := r.Lookup(TypeOf[T]())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
