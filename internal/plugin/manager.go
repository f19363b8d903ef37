package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/apkedit/internal/extension"
)

// Manager is the single authority over the loaded plugin set and its
// activation state. Plugins are kept ordered by id.
type Manager struct {
	mu sync.RWMutex

	host    *extension.Host
	logger  *logrus.Entry
	metrics *Metrics

	// autoActivate reports whether ActivateAll and Reload may activate a
	// plugin; nil allows every plugin
	autoActivate func(id string) bool

	// Loaded plugins by id
	plugins map[string]*Instance

	// Plugin ids, sorted
	order []string

	// Listeners and event handlers; unsubscribed slots are nil
	listeners     []func(*Instance)
	eventHandlers []EventHandler
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *logrus.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.WithField("component", "plugin-manager")
		}
	}
}

// WithMetrics sets the metrics the manager records into.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithAutoActivate limits ActivateAll and Reload to the plugins allow
// accepts. Activate is not affected.
func WithAutoActivate(allow func(id string) bool) ManagerOption {
	return func(m *Manager) {
		m.autoActivate = allow
	}
}

// NewManager creates a plugin manager that registers into host.
func NewManager(host *extension.Host, opts ...ManagerOption) *Manager {
	if host == nil {
		host = extension.NewHost()
	}
	m := &Manager{
		host:    host,
		logger:  logrus.New().WithField("component", "plugin-manager"),
		metrics: NewMetrics(nil),
		plugins: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Host returns the extension host plugins register into.
func (m *Manager) Host() *extension.Host {
	return m.host
}

// LoadPlugins replaces the loaded set with what loader discovers. The
// previous set is unloaded first. If two discovered plugins share an id the
// whole pass fails with ErrDuplicateID, every discovered boundary is released
// and no plugin is tracked.
func (m *Manager) LoadPlugins(ctx context.Context, loader Loader) error {
	if err := m.UnloadAll(); err != nil {
		m.logger.WithError(err).Warn("errors while unloading previous plugin set")
	}

	found, err := loader.Load(ctx)
	if err != nil {
		ReleaseAll(found)
		return fmt.Errorf("load plugins: %w", err)
	}

	seen := make(map[string]Descriptor, len(found))
	valid := found[:0:0]
	for i, d := range found {
		id := d.Descriptor.ID
		if id == "" || d.Plugin == nil {
			m.logger.WithField("implementation", d.Descriptor.Implementation).
				Warn("skipping plugin without id")
			d.Release()
			continue
		}
		if id == HostOwner {
			m.logger.WithField("implementation", d.Descriptor.Implementation).
				WithError(ErrReservedID).Warn("skipping plugin with reserved id")
			d.Release()
			continue
		}
		if prev, dup := seen[id]; dup {
			ReleaseAll(valid)
			ReleaseAll(found[i:])
			return fmt.Errorf("%w: %q reported by %s and %s",
				ErrDuplicateID, id, prev.Implementation, d.Descriptor.Implementation)
		}
		seen[id] = d.Descriptor
		valid = append(valid, d)
	}

	added := make([]*Instance, 0, len(valid))
	m.mu.Lock()
	for _, d := range valid {
		inst := newInstance(d, newContext(d.Descriptor.ID, m.host, m.logger))
		m.plugins[inst.ID()] = inst
		m.order = append(m.order, inst.ID())
		added = append(added, inst)
	}
	sort.Strings(m.order)
	m.metrics.LoadedPlugins.Set(float64(len(m.plugins)))
	m.mu.Unlock()

	sort.Slice(added, func(i, j int) bool { return added[i].ID() < added[j].ID() })
	for _, inst := range added {
		m.metrics.discovered(inst.desc.Origin)
		m.logger.WithFields(logrus.Fields{
			"plugin": inst.ID(),
			"origin": inst.desc.Origin.String(),
			"source": inst.desc.SourcePath,
		}).Debug("plugin loaded")
		m.emitEvent(ManagerEvent{Type: EventPluginLoaded, Plugin: inst.ID()})
		m.notifyAdded(inst)
	}
	return nil
}

// ActivateAll activates every loaded plugin in id order. A failing plugin is
// logged and left non-active; the others still activate. The returned error
// joins every failure.
func (m *Manager) ActivateAll() error {
	var activateErrors []error
	for _, id := range m.ids() {
		if !m.allowed(id) {
			continue
		}
		if err := m.Activate(id); err != nil {
			activateErrors = append(activateErrors, err)
		}
	}

	if len(activateErrors) > 0 {
		return fmt.Errorf("failed to activate %d plugins: %w", len(activateErrors), errors.Join(activateErrors...))
	}
	return nil
}

// Activate activates one plugin. Activating an active plugin is a no-op.
// If the plugin's hook fails, anything it registered before failing is
// swept and the plugin keeps its previous state.
func (m *Manager) Activate(id string) error {
	inst, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}

	inst.lifecycle.Lock()
	defer inst.lifecycle.Unlock()

	prev := inst.State()
	if !prev.CanActivate() {
		return nil
	}

	log := m.logger.WithField("plugin", id)
	inst.ctx.open()
	if err := callActivate(inst.impl, inst.ctx); err != nil {
		inst.ctx.close()
		m.host.SweepOwner(id)
		inst.ctx.reset()
		inst.setState(prev, err)
		m.metrics.activation(false)
		log.WithError(err).Error("plugin activation failed")
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: id, Error: err})
		return fmt.Errorf("plugin %q: %w", id, err)
	}

	inst.setState(StateActive, nil)
	m.metrics.activation(true)
	log.Info("plugin activated")
	m.emitEvent(ManagerEvent{Type: EventPluginActivated, Plugin: id})
	return nil
}

// Deactivate runs the plugin's Deactivate hook, then removes everything the
// plugin registered. The sweep runs even when the hook fails; hook failures
// are logged and recorded, not returned. Deactivating a plugin that is not
// active is a no-op. The isolation boundary stays open so the plugin can be
// activated again; Unload releases it.
func (m *Manager) Deactivate(id string) error {
	inst, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}

	inst.lifecycle.Lock()
	defer inst.lifecycle.Unlock()

	m.deactivateLocked(inst)
	return nil
}

// deactivateLocked must be called with inst.lifecycle held.
func (m *Manager) deactivateLocked(inst *Instance) {
	if inst.State() != StateActive {
		return
	}

	id := inst.ID()
	log := m.logger.WithField("plugin", id)

	inst.ctx.close()
	hookErr := callDeactivate(inst.impl)
	if hookErr != nil {
		log.WithError(hookErr).Error("plugin deactivate hook failed")
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: id, Error: hookErr})
	}

	report := m.host.SweepOwner(id)
	inst.ctx.reset()
	inst.setState(StateInactive, hookErr)
	m.metrics.deactivated(hookErr, report.Total())

	log.WithField("swept", report.String()).Info("plugin deactivated")
	m.emitEvent(ManagerEvent{Type: EventPluginDeactivated, Plugin: id})
}

// Unload deactivates the plugin, releases its isolation boundary and drops it
// from the loaded set.
func (m *Manager) Unload(id string) error {
	m.mu.Lock()
	inst, ok := m.plugins[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	delete(m.plugins, id)
	m.removeFromOrder(id)
	m.metrics.LoadedPlugins.Set(float64(len(m.plugins)))
	m.mu.Unlock()

	inst.lifecycle.Lock()
	m.deactivateLocked(inst)
	inst.ctx.close()
	inst.release()
	inst.lifecycle.Unlock()

	m.emitEvent(ManagerEvent{Type: EventPluginUnloaded, Plugin: id})
	return nil
}

// UnloadAll unloads every plugin in reverse id order.
func (m *Manager) UnloadAll() error {
	ids := m.ids()

	var unloadErrors []error
	for i := len(ids) - 1; i >= 0; i-- {
		if err := m.Unload(ids[i]); err != nil {
			unloadErrors = append(unloadErrors, err)
		}
	}

	if len(unloadErrors) > 0 {
		return fmt.Errorf("failed to unload %d plugins: %w", len(unloadErrors), errors.Join(unloadErrors...))
	}
	return nil
}

// Reload unloads the current set, loads a fresh one from loader and
// activates every allowed plugin except those that were deactivated. A
// plugin whose earlier activation failed is retried.
func (m *Manager) Reload(ctx context.Context, loader Loader) error {
	deactivated := make(map[string]bool)
	for _, inst := range m.List() {
		if inst.State() == StateInactive {
			deactivated[inst.ID()] = true
		}
	}

	if err := m.LoadPlugins(ctx, loader); err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	var activateErrors []error
	for _, id := range m.ids() {
		if deactivated[id] || !m.allowed(id) {
			continue
		}
		if err := m.Activate(id); err != nil {
			activateErrors = append(activateErrors, err)
		}
	}

	m.emitEvent(ManagerEvent{Type: EventPluginsReloaded})
	if len(activateErrors) > 0 {
		return fmt.Errorf("reload: failed to activate %d plugins: %w", len(activateErrors), errors.Join(activateErrors...))
	}
	return nil
}

// Get returns a plugin by id.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.plugins[id]
	return inst, ok
}

// List returns the loaded plugins ordered by id.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		if inst, ok := m.plugins[id]; ok {
			result = append(result, inst)
		}
	}
	return result
}

// ListByState returns plugins in a specific state, ordered by id.
func (m *Manager) ListByState(state State) []*Instance {
	var result []*Instance
	for _, inst := range m.List() {
		if inst.State() == state {
			result = append(result, inst)
		}
	}
	return result
}

// Contexts returns the plugin contexts ordered by plugin id.
func (m *Manager) Contexts() []*Context {
	list := m.List()
	out := make([]*Context, len(list))
	for i, inst := range list {
		out[i] = inst.ctx
	}
	return out
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// CountActive returns the number of active plugins.
func (m *Manager) CountActive() int {
	return len(m.ListByState(StateActive))
}

// Errors returns the last lifecycle error of every plugin that has one.
func (m *Manager) Errors() map[string]error {
	errs := make(map[string]error)
	for _, inst := range m.List() {
		if err := inst.Err(); err != nil {
			errs[inst.ID()] = err
		}
	}
	return errs
}

// OnPluginAdded calls cb once for every plugin already loaded and then for
// every plugin loaded later. It returns a function that removes cb.
func (m *Manager) OnPluginAdded(cb func(*Instance)) func() {
	if cb == nil {
		return func() {}
	}

	m.mu.Lock()
	current := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		current = append(current, m.plugins[id])
	}
	m.listeners = append(m.listeners, cb)
	index := len(m.listeners) - 1
	m.mu.Unlock()

	for _, inst := range current {
		m.callListener(cb, inst)
	}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if index < len(m.listeners) {
			m.listeners[index] = nil
		}
	}
}

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.mu.Lock()
	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

func (m *Manager) notifyAdded(inst *Instance) {
	m.mu.RLock()
	listeners := make([]func(*Instance), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, cb := range listeners {
		if cb != nil {
			m.callListener(cb, inst)
		}
	}
}

func (m *Manager) callListener(cb func(*Instance), inst *Instance) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("plugin", inst.ID()).Errorf("plugin listener panicked: %v", r)
		}
	}()
	cb(inst)
}

// emitEvent sends an event to all handlers.
// Handlers are called outside any locks and panics are recovered.
func (m *Manager) emitEvent(event ManagerEvent) {
	m.mu.RLock()
	handlers := make([]EventHandler, len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				recover() // Ignore panics from handlers
			}()
			handler(event)
		}()
	}
}

func (m *Manager) allowed(id string) bool {
	return m.autoActivate == nil || m.autoActivate(id)
}

func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// removeFromOrder removes id from the order slice.
// Must be called with mu held.
func (m *Manager) removeFromOrder(id string) {
	for i, n := range m.order {
		if n == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
