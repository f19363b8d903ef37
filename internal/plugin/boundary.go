package plugin

import (
	"io"
	"sync"
)

// Boundary is a reference-counted isolation unit. Every plugin loaded from
// the same archive shares one Boundary; the underlying resource is closed
// exactly once, when the last reference is released.
type Boundary struct {
	mu     sync.Mutex
	name   string
	closer io.Closer
	refs   int
	closed bool
	err    error

	onClose func(name string, err error)
}

// NewBoundary wraps closer with one reference held by the caller.
func NewBoundary(name string, closer io.Closer) *Boundary {
	return &Boundary{name: name, closer: closer, refs: 1}
}

// OnClose installs a callback invoked after the resource is closed.
func (b *Boundary) OnClose(fn func(name string, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = fn
}

// Name returns the boundary label, usually the archive path.
func (b *Boundary) Name() string {
	return b.name
}

// Acquire adds a reference.
func (b *Boundary) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBoundaryClosed
	}
	b.refs++
	return nil
}

// Release drops a reference and closes the resource when none remain.
// Releasing a closed boundary is a no-op.
func (b *Boundary) Release() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.refs--
	if b.refs > 0 {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.closer != nil {
		b.err = b.closer.Close()
	}
	err, fn := b.err, b.onClose
	b.mu.Unlock()

	if fn != nil {
		fn(b.name, err)
	}
}

// Closed reports whether the resource has been closed.
func (b *Boundary) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Refs returns the number of outstanding references.
func (b *Boundary) Refs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

// Err returns the error the resource reported when it was closed.
func (b *Boundary) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
