package plugin

// State represents the lifecycle state of a plugin.
type State int

// Plugin states.
const (
	// StateDiscovered - Plugin was found by a loader and never activated.
	StateDiscovered State = iota

	// StateActive - Activate succeeded and Deactivate has not run since.
	StateActive

	// StateInactive - Plugin was deactivated; it may be activated again.
	StateInactive
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// CanActivate returns true if Activate would run the plugin's hook.
func (s State) CanActivate() bool {
	return s == StateDiscovered || s == StateInactive
}
