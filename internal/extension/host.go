// Package extension holds the shared extension points plugins populate:
// file types, syntax highlighters, formatters, file handlers and UI
// contributions, gathered together with the service, command and shortcut
// tables into a Host.
//
// Every registry is owner-tagged. A plugin's contributions are removed in
// one call with Host.SweepOwner without affecting anything registered by
// other owners under the same keys.
package extension

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/service"
)

// UI surface names.
const (
	SurfaceToolbar     = "toolbar"
	SurfaceActivityBar = "activitybar"
	SurfaceEditorMenu  = "editormenu"
)

// Host is the process-wide set of extension registries. Create one per
// application (or per test) and hand it to the plugin manager.
type Host struct {
	FileTypes    *FileTypes
	Highlighters *Highlighters
	Formatters   *Formatters
	Handlers     *Handlers

	Toolbar     *Contributions
	ActivityBar *Contributions
	EditorMenu  *Contributions

	Services  *service.Registry
	Commands  *command.Registry
	Shortcuts *command.Shortcuts
}

// HostOption configures a Host.
type HostOption func(*hostOptions)

type hostOptions struct {
	engine StyleInstaller
}

// WithStyleEngine sets the text engine highlighters install styles into.
func WithStyleEngine(engine StyleInstaller) HostOption {
	return func(o *hostOptions) {
		o.engine = engine
	}
}

// NewHost creates a host with empty registries.
func NewHost(opts ...HostOption) *Host {
	var o hostOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Host{
		FileTypes:    NewFileTypes(),
		Highlighters: NewHighlighters(o.engine),
		Formatters:   NewFormatters(),
		Handlers:     NewHandlers(),
		Toolbar:      NewContributions(SurfaceToolbar),
		ActivityBar:  NewContributions(SurfaceActivityBar),
		EditorMenu:   NewContributions(SurfaceEditorMenu),
		Services:     service.NewRegistry(),
		Commands:     command.NewRegistry(),
		Shortcuts:    command.NewShortcuts(),
	}
}

// Surface returns the contribution registry named name.
func (h *Host) Surface(name string) (*Contributions, bool) {
	switch name {
	case SurfaceToolbar:
		return h.Toolbar, true
	case SurfaceActivityBar:
		return h.ActivityBar, true
	case SurfaceEditorMenu:
		return h.EditorMenu, true
	}
	return nil, false
}

// SweepReport counts the entries removed from each registry by SweepOwner.
type SweepReport map[string]int

// Total returns the number of entries removed.
func (r SweepReport) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// String renders the non-zero counts as "name=n" pairs sorted by name.
func (r SweepReport) String() string {
	names := make([]string, 0, len(r))
	for name, n := range r {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(r[name]))
	}
	return b.String()
}

// SweepOwner removes everything owner registered anywhere in the host.
// Sweeping an owner with no entries is a no-op.
func (h *Host) SweepOwner(owner string) SweepReport {
	return SweepReport{
		"filetypes":        h.FileTypes.UnregisterByOwner(owner),
		"highlighters":     h.Highlighters.UnregisterByOwner(owner),
		"formatters":       h.Formatters.UnregisterByOwner(owner),
		"handlers":         h.Handlers.UnregisterByOwner(owner),
		SurfaceToolbar:     h.Toolbar.UnregisterByOwner(owner),
		SurfaceActivityBar: h.ActivityBar.UnregisterByOwner(owner),
		SurfaceEditorMenu:  h.EditorMenu.UnregisterByOwner(owner),
		"services":         h.Services.UnregisterByOwner(owner),
		"commands":         h.Commands.UnregisterByOwner(owner),
		"shortcuts":        h.Shortcuts.UnregisterByOwner(owner),
	}
}
