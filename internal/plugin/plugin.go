package plugin

import (
	"fmt"
)

// HostOwner tags registrations made by the application itself. No plugin
// may report it as its id.
const HostOwner = "apkedit"

// Info identifies a plugin. It must be available before activation.
type Info struct {
	ID          string
	DisplayName string
	Version     string
}

// Plugin is the capability every plugin implements.
type Plugin interface {
	// Info returns the plugin identity.
	Info() Info

	// Activate registers the plugin's contributions through ctx.
	Activate(ctx *Context) error
}

// Deactivator is implemented by plugins that hold resources of their own.
// Registrations made through the Context are removed by the manager whether
// or not the plugin implements it.
type Deactivator interface {
	Deactivate() error
}

// Origin records where a plugin was discovered.
type Origin int

// Plugin origins.
const (
	OriginEmbedded Origin = iota
	OriginArchive
)

// String returns a string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginEmbedded:
		return "embedded"
	case OriginArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Descriptor is the identity and provenance of one discovered plugin.
// It is never modified after discovery.
type Descriptor struct {
	Info

	Origin Origin

	// SourcePath is the archive file; empty for embedded plugins.
	SourcePath string

	// Implementation names the concrete implementation. Loaders sort and
	// de-duplicate on it.
	Implementation string

	// Checksum is the hex blake3 digest of the archive; empty for embedded
	// plugins.
	Checksum string
}

// String returns "id@version (origin)".
func (d Descriptor) String() string {
	s := d.ID
	if d.Version != "" {
		s += "@" + d.Version
	}
	return fmt.Sprintf("%s (%s)", s, d.Origin)
}

// Discovered is one plugin produced by a Loader.
type Discovered struct {
	Descriptor Descriptor
	Plugin     Plugin

	// Boundary is the isolation unit the plugin was loaded from; nil for
	// embedded plugins. The Discovered value holds one reference.
	Boundary *Boundary
}

// Release drops the reference this value holds on its boundary.
func (d Discovered) Release() {
	if d.Boundary != nil {
		d.Boundary.Release()
	}
}

// ReleaseAll releases every discovered plugin.
func ReleaseAll(found []Discovered) {
	for _, d := range found {
		d.Release()
	}
}

// implementationName returns a stable name for p's concrete type.
func implementationName(p Plugin) string {
	return fmt.Sprintf("%T", p)
}

// callActivate runs p.Activate converting a panic into an error.
func callActivate(p Plugin, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrActivationFailed, r)
		}
	}()
	if err := p.Activate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrActivationFailed, err)
	}
	return nil
}

// callDeactivate runs the optional Deactivate hook converting a panic into
// an error.
func callDeactivate(p Plugin) (err error) {
	d, ok := p.(Deactivator)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrDeactivationFailed, r)
		}
	}()
	if err := d.Deactivate(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeactivationFailed, err)
	}
	return nil
}
