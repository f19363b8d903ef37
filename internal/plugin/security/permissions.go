package security

import (
	"fmt"
	"sort"
	"sync"
)

// PermissionChecker tracks the capabilities granted to one archive.
type PermissionChecker struct {
	mu sync.RWMutex

	capabilities map[Capability]bool
	owner        string
}

// NewPermissionChecker creates a checker with nothing granted.
func NewPermissionChecker(owner string) *PermissionChecker {
	return &PermissionChecker{
		capabilities: make(map[Capability]bool),
		owner:        owner,
	}
}

// NewUnrestricted creates a checker holding every top-level capability.
func NewUnrestricted(owner string) *PermissionChecker {
	pc := NewPermissionChecker(owner)
	for _, cap := range AllCapabilities() {
		if info, _ := GetCapabilityInfo(cap); info.Parent == "" {
			pc.capabilities[cap] = true
		}
	}
	return pc
}

// ParseCapabilities converts manifest names to capabilities.
func ParseCapabilities(names []string) ([]Capability, error) {
	caps := make([]Capability, 0, len(names))
	for _, name := range names {
		cap := Capability(name)
		if !IsValidCapability(cap) {
			return nil, fmt.Errorf("%w %q", ErrUnknownCapability, name)
		}
		caps = append(caps, cap)
	}
	return caps, nil
}

// Owner returns the name the checker was created for.
func (pc *PermissionChecker) Owner() string {
	return pc.owner
}

// Grant grants a capability.
func (pc *PermissionChecker) Grant(cap Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.capabilities[cap] = true
}

// GrantAll grants multiple capabilities.
func (pc *PermissionChecker) GrantAll(caps []Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, cap := range caps {
		pc.capabilities[cap] = true
	}
}

// HasCapability returns true if cap or one of its parents is granted.
func (pc *PermissionChecker) HasCapability(cap Capability) bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if pc.capabilities[cap] {
		return true
	}
	for granted := range pc.capabilities {
		if ImpliesCapability(granted, cap) {
			return true
		}
	}
	return false
}

// CheckCapability returns a *CapabilityError if cap is not granted.
func (pc *PermissionChecker) CheckCapability(cap Capability, operation string) error {
	if !pc.HasCapability(cap) {
		return &CapabilityError{Capability: cap, Operation: operation, Owner: pc.owner}
	}
	return nil
}

// Capabilities returns the granted capabilities, sorted.
func (pc *PermissionChecker) Capabilities() []Capability {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	caps := make([]Capability, 0, len(pc.capabilities))
	for cap := range pc.capabilities {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
