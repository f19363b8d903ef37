package plugin

import "errors"

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when no loaded plugin has the given id.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrDuplicateID is returned when two discovered plugins report the same id.
	ErrDuplicateID = errors.New("duplicate plugin id")

	// ErrInvalidPlugin is returned when a plugin reports an empty id.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrBoundaryClosed is returned when acquiring a released boundary.
	ErrBoundaryClosed = errors.New("isolation boundary is closed")

	// ErrActivationFailed wraps errors and panics raised by Activate.
	ErrActivationFailed = errors.New("plugin activation failed")

	// ErrDeactivationFailed wraps errors and panics raised by Deactivate.
	ErrDeactivationFailed = errors.New("plugin deactivation failed")

	// ErrContextClosed is returned when an inactive plugin registers.
	ErrContextClosed = errors.New("plugin context is not active")

	// ErrReservedID is returned for a plugin reporting the host's owner id.
	ErrReservedID = errors.New("plugin id is reserved")

	// ErrDuplicateEmbedded is returned when an embedded factory name is reused.
	ErrDuplicateEmbedded = errors.New("embedded plugin already registered")
)
