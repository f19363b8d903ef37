package plugin

import (
	"sync"
)

// Instance is one loaded plugin: its descriptor, implementation, isolation
// boundary, activation state and context.
type Instance struct {
	desc     Descriptor
	impl     Plugin
	boundary *Boundary
	ctx      *Context

	// lifecycle serializes Activate/Deactivate/Unload for this plugin.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	state       State
	err         error
	activations int
	unloaded    bool
}

func newInstance(d Discovered, ctx *Context) *Instance {
	return &Instance{
		desc:     d.Descriptor,
		impl:     d.Plugin,
		boundary: d.Boundary,
		ctx:      ctx,
		state:    StateDiscovered,
	}
}

// ID returns the plugin id.
func (i *Instance) ID() string {
	return i.desc.ID
}

// Descriptor returns the plugin descriptor.
func (i *Instance) Descriptor() Descriptor {
	return i.desc
}

// Plugin returns the implementation.
func (i *Instance) Plugin() Plugin {
	return i.impl
}

// Context returns the context bound to this plugin.
func (i *Instance) Context() *Context {
	return i.ctx
}

// Boundary returns the isolation boundary, or nil for embedded plugins.
func (i *Instance) Boundary() *Boundary {
	return i.boundary
}

// State returns the current plugin state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Err returns the last lifecycle error, if any.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

// Activations returns how many times Activate succeeded.
func (i *Instance) Activations() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.activations
}

func (i *Instance) setState(s State, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
	i.err = err
	if s == StateActive {
		i.activations++
	}
}

func (i *Instance) setErr(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

// release drops the instance's boundary reference once.
func (i *Instance) release() {
	i.mu.Lock()
	if i.unloaded {
		i.mu.Unlock()
		return
	}
	i.unloaded = true
	i.mu.Unlock()

	if i.boundary != nil {
		i.boundary.Release()
	}
}
