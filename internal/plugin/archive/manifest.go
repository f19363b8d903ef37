package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"

	"github.com/dshills/apkedit/internal/plugin/security"
)

// ManifestFile is the discovery manifest every plugin archive carries at its
// root.
const ManifestFile = "plugin.json"

// Manifest describes a plugin archive and the implementations it provides.
type Manifest struct {
	// Identity
	Name        string `json:"name"`        // Archive identifier (e.g., "git-tools")
	Version     string `json:"version"`     // Semver (e.g., "1.2.0")
	DisplayName string `json:"displayName"` // Human-readable name
	Description string `json:"description"` // Short description
	Author      string `json:"author"`      // Author name or org

	// Capabilities lists the host API groups the implementations may use.
	// An absent list grants every capability; an empty list grants none.
	Capabilities []string `json:"capabilities,omitempty"`

	// Implementations lists the plugin entry points in the archive.
	Implementations []Implementation `json:"implementations"`
}

// Implementation declares one plugin inside an archive.
type Implementation struct {
	// Name identifies the implementation across all loaders
	// (e.g., "com.example.git.GitPlugin").
	Name string `json:"name"`

	// Main is the archive path of the Lua chunk returning the plugin table.
	Main string `json:"main"`
}

// Validation errors.
var (
	ErrMissingName             = errors.New("manifest: name is required")
	ErrInvalidName             = errors.New("manifest: name must be lowercase alphanumeric with hyphens")
	ErrInvalidVersion          = errors.New("manifest: version must be valid semver")
	ErrMissingImplementation   = errors.New("manifest: implementation name is required")
	ErrDuplicateImplementation = errors.New("manifest: duplicate implementation")
	ErrInvalidMain             = errors.New("manifest: main must be a .lua file")
	ErrUnknownCapability       = security.ErrUnknownCapability
)

// namePattern validates archive names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// ReadManifest loads and validates the manifest at the root of fsys.
func ReadManifest(fsys fs.FS) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	for i := range m.Implementations {
		if m.Implementations[i].Main == "" {
			m.Implementations[i].Main = "init.lua"
		}
	}
}

// Validate checks that the manifest is valid. An archive with no
// implementations is valid; the loader discovers nothing from it.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	if _, err := security.ParseCapabilities(m.Capabilities); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	seen := make(map[string]bool, len(m.Implementations))
	for i, impl := range m.Implementations {
		if impl.Name == "" {
			return fmt.Errorf("%w at index %d", ErrMissingImplementation, i)
		}
		if seen[impl.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateImplementation, impl.Name)
		}
		seen[impl.Name] = true

		if path.Ext(impl.Main) != ".lua" {
			return fmt.Errorf("%w: %s", ErrInvalidMain, impl.Main)
		}
	}
	return nil
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	display := m.DisplayName
	if display == "" {
		display = m.Name
	}
	return fmt.Sprintf("%s v%s", display, m.Version)
}

// Permissions returns the capability checker for the archive.
func (m *Manifest) Permissions() *security.PermissionChecker {
	if m.Capabilities == nil {
		return security.NewUnrestricted(m.Name)
	}
	pc := security.NewPermissionChecker(m.Name)
	caps, _ := security.ParseCapabilities(m.Capabilities)
	pc.GrantAll(caps)
	return pc
}
