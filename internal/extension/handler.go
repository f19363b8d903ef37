package extension

import (
	"github.com/dshills/apkedit/internal/registry"
)

// FileHandler takes over opening files it recognizes.
type FileHandler interface {
	// CanHandle reports whether the handler wants path.
	CanHandle(path string) bool

	// HandleOpenFile opens path and reports whether it consumed the event.
	HandleOpenFile(path string) bool
}

// handlerKey is the single key handlers are stored under; handlers are
// matched by predicate, not by key.
type handlerKey struct{}

// Handlers is the insertion-ordered file handler chain.
type Handlers struct {
	reg *registry.Registry[handlerKey, FileHandler]

	// OnPanic is called when a handler panics. May be nil.
	OnPanic func(h FileHandler, path string, recovered any)
}

// NewHandlers creates an empty handler chain.
func NewHandlers() *Handlers {
	return &Handlers{
		reg: registry.New(registry.WithName[handlerKey, FileHandler]("handlers")),
	}
}

// Register appends h to the chain.
func (r *Handlers) Register(h FileHandler, owner string) registry.ID {
	return r.reg.Register(handlerKey{}, h, owner)
}

// HandleOpenFile offers path to each handler in registration order and stops
// at the first one that can handle it and does. A panicking handler counts
// as not having handled the file.
func (r *Handlers) HandleOpenFile(path string) bool {
	for _, h := range r.reg.All() {
		if r.try(h, path) {
			return true
		}
	}
	return false
}

func (r *Handlers) try(h FileHandler, path string) (handled bool) {
	defer func() {
		if rec := recover(); rec != nil {
			handled = false
			if r.OnPanic != nil {
				r.OnPanic(h, path, rec)
			}
		}
	}()
	return h.CanHandle(path) && h.HandleOpenFile(path)
}

// All returns the handlers in registration order.
func (r *Handlers) All() []FileHandler {
	return r.reg.All()
}

// Remove removes specific registrations.
func (r *Handlers) Remove(ids ...registry.ID) int {
	return r.reg.Remove(ids...)
}

// UnregisterByOwner removes every handler registered by owner.
func (r *Handlers) UnregisterByOwner(owner string) int {
	return r.reg.UnregisterByOwner(owner)
}

// Len returns the number of registered handlers.
func (r *Handlers) Len() int {
	return r.reg.Len()
}
