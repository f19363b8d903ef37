package plugin

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/registry"
	"github.com/dshills/apkedit/internal/service"
)

// Kind names the extension point a registration went into.
type Kind string

// Registration kinds.
const (
	KindFileType    Kind = "filetype"
	KindHighlighter Kind = "highlighter"
	KindFormatter   Kind = "formatter"
	KindFileHandler Kind = "filehandler"
	KindService     Kind = "service"
	KindToolbar     Kind = "toolbar"
	KindActivityBar Kind = "activitybar"
	KindEditorMenu  Kind = "editormenu"
	KindCommand     Kind = "command"
	KindShortcut    Kind = "shortcut"
)

// Registration is one entry in a context's ledger.
type Registration struct {
	Kind Kind
	Key  string
	ID   registry.ID

	// Type is the service type for KindService entries.
	Type reflect.Type
}

// Context is the only handle a plugin receives. Every registration made
// through it is tagged with the plugin id and recorded, so the matching
// UnregisterAll call removes exactly what this plugin added.
//
// A Context accepts registrations only while its plugin is being activated
// or is active. Calls made at any other time, for example from background
// work that outlives Deactivate, are dropped with a warning.
type Context struct {
	owner  string
	host   *extension.Host
	logger *logrus.Entry

	// gate is held shared by every registration and exclusively while the
	// manager opens or closes the context, so no registration can slip in
	// between closing and the owner sweep.
	gate sync.RWMutex
	live bool

	mu      sync.Mutex
	records []Registration
}

func newContext(owner string, host *extension.Host, logger *logrus.Entry) *Context {
	return &Context{
		owner:  owner,
		host:   host,
		logger: logger.WithField("plugin", owner),
	}
}

// ID returns the owner id registrations are tagged with.
func (c *Context) ID() string {
	return c.owner
}

// Logger returns a logger scoped to the plugin.
func (c *Context) Logger() *logrus.Entry {
	return c.logger
}

// Host returns the extension host. Plugins should treat it as read-only
// and register through the Context.
func (c *Context) Host() *extension.Host {
	return c.host
}

// Live reports whether the context currently accepts registrations.
func (c *Context) Live() bool {
	c.gate.RLock()
	defer c.gate.RUnlock()
	return c.live
}

func (c *Context) open() {
	c.gate.Lock()
	c.live = true
	c.gate.Unlock()
}

// close stops accepting registrations. It waits for registrations in
// flight, so the sweep that follows sees all of them.
func (c *Context) close() {
	c.gate.Lock()
	c.live = false
	c.gate.Unlock()
}

// enter admits one registration. The caller must call the returned
// function when done; ok is false when the context is closed.
func (c *Context) enter(kind Kind, key string) (done func(), ok bool) {
	c.gate.RLock()
	if !c.live {
		c.gate.RUnlock()
		c.logger.WithFields(logrus.Fields{"kind": kind, "key": key}).
			Warn("registration from inactive plugin dropped")
		return nil, false
	}
	return c.gate.RUnlock, true
}

// Registrations returns a snapshot of the ledger in registration order.
func (c *Context) Registrations() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Registration, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Context) record(r Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// take removes and returns the IDs recorded for kind.
func (c *Context) take(kind Kind) []registry.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []registry.ID
	kept := c.records[:0]
	for _, r := range c.records {
		if r.Kind == kind {
			ids = append(ids, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	c.records = kept
	return ids
}

// reset forgets the ledger after the manager swept the owner.
func (c *Context) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

// RegisterFileType registers ft under each of its extensions.
func (c *Context) RegisterFileType(ft extension.FileType) {
	if ft == nil {
		return
	}
	done, ok := c.enter(KindFileType, ft.Name())
	if !ok {
		return
	}
	defer done()
	for _, r := range c.host.FileTypes.Register(ft, c.owner) {
		c.record(Registration{Kind: KindFileType, Key: r.Ext, ID: r.ID})
	}
}

// UnregisterAllFileTypes removes the file types this plugin registered.
func (c *Context) UnregisterAllFileTypes() int {
	return c.host.FileTypes.Remove(c.take(KindFileType)...)
}

// RegisterSyntaxHighlighter registers hl for lang.
func (c *Context) RegisterSyntaxHighlighter(lang extension.Language, hl extension.Highlighter) {
	done, ok := c.enter(KindHighlighter, string(lang))
	if !ok {
		return
	}
	defer done()
	id := c.host.Highlighters.Register(lang, hl, c.owner)
	c.record(Registration{Kind: KindHighlighter, Key: string(lang), ID: id})
}

// UnregisterAllSyntaxHighlighters removes the highlighters this plugin
// registered.
func (c *Context) UnregisterAllSyntaxHighlighters() int {
	return c.host.Highlighters.Remove(c.take(KindHighlighter)...)
}

// RegisterFormatter registers f for lang.
func (c *Context) RegisterFormatter(lang extension.Language, f extension.Formatter) {
	if f == nil {
		return
	}
	done, ok := c.enter(KindFormatter, string(lang))
	if !ok {
		return
	}
	defer done()
	id := c.host.Formatters.Register(lang, f, c.owner)
	c.record(Registration{Kind: KindFormatter, Key: string(lang), ID: id})
}

// UnregisterAllFormatters removes the formatters this plugin registered.
func (c *Context) UnregisterAllFormatters() int {
	return c.host.Formatters.Remove(c.take(KindFormatter)...)
}

// RegisterFileHandler appends h to the file handler chain.
func (c *Context) RegisterFileHandler(h extension.FileHandler) {
	if h == nil {
		return
	}
	done, ok := c.enter(KindFileHandler, "")
	if !ok {
		return
	}
	defer done()
	id := c.host.Handlers.Register(h, c.owner)
	c.record(Registration{Kind: KindFileHandler, ID: id})
}

// UnregisterAllFileHandlers removes the handlers this plugin registered.
func (c *Context) UnregisterAllFileHandlers() int {
	return c.host.Handlers.Remove(c.take(KindFileHandler)...)
}

// RegisterService publishes instance under t, replacing any previous
// instance of that type.
func (c *Context) RegisterService(t reflect.Type, instance any) {
	if t == nil {
		return
	}
	done, ok := c.enter(KindService, t.String())
	if !ok {
		return
	}
	defer done()
	c.host.Services.Register(t, instance, c.owner)
	c.record(Registration{Kind: KindService, Key: t.String(), Type: t})
}

// UnregisterService removes the t service if this plugin still owns it.
func (c *Context) UnregisterService(t reflect.Type) bool {
	if t == nil {
		return false
	}
	c.mu.Lock()
	kept := c.records[:0]
	for _, r := range c.records {
		if r.Kind == KindService && r.Type == t {
			continue
		}
		kept = append(kept, r)
	}
	c.records = kept
	c.mu.Unlock()

	return c.host.Services.Unregister(t, c.owner)
}

// Service returns the instance registered under t by any plugin.
func (c *Context) Service(t reflect.Type) (any, bool) {
	return c.host.Services.Lookup(t)
}

// RegisterToolbarItem adds item to the toolbar.
func (c *Context) RegisterToolbarItem(item extension.Contribution) {
	c.registerItem(KindToolbar, c.host.Toolbar, item)
}

// UnregisterAllToolbarItems removes this plugin's toolbar items.
func (c *Context) UnregisterAllToolbarItems() int {
	return c.host.Toolbar.Remove(c.take(KindToolbar)...)
}

// RegisterActivityBarItem adds item to the activity bar.
func (c *Context) RegisterActivityBarItem(item extension.Contribution) {
	c.registerItem(KindActivityBar, c.host.ActivityBar, item)
}

// UnregisterAllActivityBarItems removes this plugin's activity bar items.
func (c *Context) UnregisterAllActivityBarItems() int {
	return c.host.ActivityBar.Remove(c.take(KindActivityBar)...)
}

// RegisterEditorMenuItem adds item to the editor context menu.
func (c *Context) RegisterEditorMenuItem(item extension.Contribution) {
	c.registerItem(KindEditorMenu, c.host.EditorMenu, item)
}

// UnregisterAllEditorMenuItems removes this plugin's editor menu items.
func (c *Context) UnregisterAllEditorMenuItems() int {
	return c.host.EditorMenu.Remove(c.take(KindEditorMenu)...)
}

func (c *Context) registerItem(kind Kind, surface *extension.Contributions, item extension.Contribution) {
	done, ok := c.enter(kind, item.ID)
	if !ok {
		return
	}
	defer done()
	id := surface.Register(item, c.owner)
	c.record(Registration{Kind: kind, Key: item.ID, ID: id})
}

// RegisterCommand adds cmd to the command table.
func (c *Context) RegisterCommand(cmd command.Command) error {
	done, ok := c.enter(KindCommand, cmd.ID)
	if !ok {
		return fmt.Errorf("command %q: %w", cmd.ID, ErrContextClosed)
	}
	defer done()
	id, err := c.host.Commands.Register(cmd, c.owner)
	if err != nil {
		return err
	}
	c.record(Registration{Kind: KindCommand, Key: cmd.ID, ID: id})
	return nil
}

// UnregisterAllCommands removes this plugin's commands.
func (c *Context) UnregisterAllCommands() int {
	return c.host.Commands.Remove(c.take(KindCommand)...)
}

// BindShortcut binds keys to commandID.
func (c *Context) BindShortcut(keys, commandID string) error {
	done, ok := c.enter(KindShortcut, keys)
	if !ok {
		return fmt.Errorf("shortcut %q: %w", keys, ErrContextClosed)
	}
	defer done()
	id, err := c.host.Shortcuts.Bind(keys, commandID, c.owner)
	if err != nil {
		return err
	}
	c.record(Registration{Kind: KindShortcut, Key: keys, ID: id})
	return nil
}

// UnregisterAllShortcuts removes this plugin's shortcut bindings.
func (c *Context) UnregisterAllShortcuts() int {
	return c.host.Shortcuts.Remove(c.take(KindShortcut)...)
}

// ProvideService registers v as the T service for the plugin behind ctx.
func ProvideService[T any](ctx *Context, v T) {
	ctx.RegisterService(service.TypeOf[T](), v)
}

// ServiceOf returns the T service, whichever plugin provided it.
func ServiceOf[T any](ctx *Context) (T, bool) {
	return service.Get[T](ctx.host.Services)
}
