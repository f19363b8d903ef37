// Package security holds the capability model for archive plugins. An
// archive manifest lists the capabilities its implementations need; the
// host API refuses registrations the archive was not granted.
package security

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownCapability is returned for a capability name that is not defined.
var ErrUnknownCapability = errors.New("unknown capability")

// Capability names a group of host API operations. Capabilities are
// hierarchical: granting a parent grants all of its children.
type Capability string

// Capabilities archive plugins can request.
const (
	// CapabilityContrib covers every extension point contribution.
	CapabilityContrib Capability = "contrib"

	// CapabilityFileType allows registering file types and highlighters.
	CapabilityFileType Capability = "contrib.filetype"

	// CapabilityFormat allows registering formatters.
	CapabilityFormat Capability = "contrib.format"

	// CapabilityFileHandler allows registering file-open handlers.
	CapabilityFileHandler Capability = "contrib.handler"

	// CapabilityUI allows adding toolbar, activity bar and menu items.
	CapabilityUI Capability = "contrib.ui"

	// CapabilityCommand allows registering commands and binding shortcuts.
	CapabilityCommand Capability = "command"
)

// CapabilityInfo provides metadata about a capability.
type CapabilityInfo struct {
	Name        Capability
	DisplayName string
	Description string

	// Parent is the enclosing capability, if any.
	Parent Capability

	RiskLevel RiskLevel
}

// RiskLevel indicates the security risk of a capability.
type RiskLevel int

const (
	// RiskLow indicates minimal security risk.
	RiskLow RiskLevel = iota

	// RiskMedium indicates moderate security risk.
	RiskMedium

	// RiskHigh indicates significant security risk.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

var capabilityRegistry = map[Capability]CapabilityInfo{
	CapabilityContrib: {
		Name:        CapabilityContrib,
		DisplayName: "Contributions",
		Description: "Contribute to every editor extension point",
		RiskLevel:   RiskMedium,
	},
	CapabilityFileType: {
		Name:        CapabilityFileType,
		DisplayName: "File Types",
		Description: "Register file types and syntax highlighters",
		Parent:      CapabilityContrib,
		RiskLevel:   RiskLow,
	},
	CapabilityFormat: {
		Name:        CapabilityFormat,
		DisplayName: "Formatters",
		Description: "Register formatters that rewrite documents",
		Parent:      CapabilityContrib,
		RiskLevel:   RiskLow,
	},
	CapabilityFileHandler: {
		Name:        CapabilityFileHandler,
		DisplayName: "File Handlers",
		Description: "Intercept opening files",
		Parent:      CapabilityContrib,
		RiskLevel:   RiskMedium,
	},
	CapabilityUI: {
		Name:        CapabilityUI,
		DisplayName: "UI Items",
		Description: "Add toolbar, activity bar and editor menu items",
		Parent:      CapabilityContrib,
		RiskLevel:   RiskLow,
	},
	CapabilityCommand: {
		Name:        CapabilityCommand,
		DisplayName: "Commands",
		Description: "Register commands and bind shortcuts",
		RiskLevel:   RiskMedium,
	},
}

// GetCapabilityInfo returns information about a capability.
func GetCapabilityInfo(cap Capability) (CapabilityInfo, bool) {
	info, ok := capabilityRegistry[cap]
	return info, ok
}

// IsValidCapability returns true if the capability is known.
func IsValidCapability(cap Capability) bool {
	_, ok := capabilityRegistry[cap]
	return ok
}

// AllCapabilities returns all known capabilities, sorted.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(capabilityRegistry))
	for cap := range capabilityRegistry {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// HighestRisk returns the highest risk level among caps. A parent
// capability counts with the risk of every child it implies.
func HighestRisk(caps []Capability) RiskLevel {
	highest := RiskLow
	for _, granted := range caps {
		for cap, info := range capabilityRegistry {
			if ImpliesCapability(granted, cap) && info.RiskLevel > highest {
				highest = info.RiskLevel
			}
		}
	}
	return highest
}

// IsChildOf returns true if child is a child of parent.
func IsChildOf(child, parent Capability) bool {
	return strings.HasPrefix(string(child), string(parent)+".")
}

// ImpliesCapability returns true if having granted implies having required.
func ImpliesCapability(granted, required Capability) bool {
	return granted == required || IsChildOf(required, granted)
}

// CapabilityError reports an operation attempted without its capability.
type CapabilityError struct {
	Capability Capability
	Operation  string
	Owner      string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: capability %q required for %s", e.Owner, e.Capability, e.Operation)
	}
	return fmt.Sprintf("%s: capability %q not granted", e.Owner, e.Capability)
}
