// Package app is the headless editor shell. It wires the configuration,
// the extension host, the plugin manager with its embedded and archive
// loaders, the external tool runner and the settings store, and provides
// the flows a window shell drives: opening and formatting files, running
// commands, recent lists and plugin reloads.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	_ "github.com/dshills/apkedit/internal/bundled"
	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/config"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/plugin/archive"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/settings"
	"github.com/dshills/apkedit/internal/tool"
)

// App is the application: one extension host and the plugin set
// contributing to it.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	host     *extension.Host
	manager  *plugin.Manager
	embedded *plugin.EmbeddedLoader
	archives *archive.Loader
	loader   plugin.Loader

	settings *settings.Store
	runner   *tool.Runner
	status   *StatusBar
	metrics  *Metrics
	loop     *EventLoop

	mu          sync.Mutex
	running     bool
	watcher     *archive.Watcher
	unsubscribe func()
	workspace   *workspace
}

// Option configures an App.
type Option func(*options)

type options struct {
	logger    *logrus.Logger
	settings  *settings.Store
	metrics   *Metrics
	loader    plugin.Loader
	factories map[string]plugin.Factory
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSettings uses store instead of the settings file from the
// configuration.
func WithSettings(store *settings.Store) Option {
	return func(o *options) {
		o.settings = store
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLoader replaces plugin discovery.
func WithLoader(loader plugin.Loader) Option {
	return func(o *options) {
		o.loader = loader
	}
}

// WithEmbeddedFactories replaces the compiled-in plugin table.
func WithEmbeddedFactories(factories map[string]plugin.Factory) Option {
	return func(o *options) {
		o.factories = factories
	}
}

// New creates an application from cfg. Nothing is loaded until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default(config.DefaultDataDir())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	if o.settings == nil {
		store, err := settings.Open(cfg.SettingsPath())
		if err != nil {
			return nil, err
		}
		o.settings = store
	}

	a := &App{
		cfg:      cfg,
		logger:   o.logger,
		host:     extension.NewHost(),
		settings: o.settings,
		status:   NewStatusBar(0),
		metrics:  o.metrics,
		loop:     NewEventLoop(o.logger),
	}

	a.manager = plugin.NewManager(a.host,
		plugin.WithLogger(a.logger),
		plugin.WithMetrics(a.metrics.Plugins),
		plugin.WithAutoActivate(a.pluginEnabled),
	)

	var embeddedOpts []plugin.EmbeddedOption
	if o.factories != nil {
		embeddedOpts = append(embeddedOpts, plugin.WithFactories(o.factories))
	}
	a.embedded = plugin.NewEmbeddedLoader(a.logger, embeddedOpts...)

	archiveOpts := []archive.Option{
		archive.WithLogger(a.logger),
		archive.WithParent(a.embedded),
		archive.WithExecutionTimeout(cfg.Plugins.ExecutionTimeout.Std()),
	}
	if len(cfg.Plugins.Extensions) > 0 {
		archiveOpts = append(archiveOpts, archive.WithExtensions(cfg.Plugins.Extensions...))
	}
	if cfg.Plugins.Concurrency > 0 {
		archiveOpts = append(archiveOpts, archive.WithConcurrency(cfg.Plugins.Concurrency))
	}
	a.archives = archive.NewLoader(cfg.Plugins.Dir, archiveOpts...)

	a.loader = o.loader
	if a.loader == nil {
		a.loader = plugin.NewCompositeLoader(a.logger, a.embedded, a.archives)
	}

	resolver := tool.NewResolver(
		tool.WithToolchainDir(cfg.Tools.ToolchainDir),
		tool.WithBundledDir(cfg.Tools.BundledDir),
		tool.WithJava(cfg.Tools.Java),
		tool.WithResolverLogger(a.logger),
	)
	a.runner = tool.NewRunner(resolver,
		tool.WithLogger(a.logger),
		tool.WithPollInterval(cfg.Tools.PollInterval.Std()),
		tool.WithGracePeriod(cfg.Tools.GracePeriod.Std()),
	)

	service.Provide(a.host.Services, a.runner, hostapi.Owner)
	service.Provide[service.StatusBar](a.host.Services, a.status, hostapi.Owner)
	return a, nil
}

// Config returns the configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the logger.
func (a *App) Logger() *logrus.Logger { return a.logger }

// Host returns the extension host.
func (a *App) Host() *extension.Host { return a.host }

// Plugins returns the plugin manager.
func (a *App) Plugins() *plugin.Manager { return a.manager }

// Archives returns the archive loader.
func (a *App) Archives() *archive.Loader { return a.archives }

// Settings returns the settings store.
func (a *App) Settings() *settings.Store { return a.settings }

// Tools returns the external tool runner.
func (a *App) Tools() *tool.Runner { return a.runner }

// Status returns the status bar.
func (a *App) Status() *StatusBar { return a.status }

// Metrics returns the metrics registry.
func (a *App) Metrics() *Metrics { return a.metrics }

// Start starts the event loop, loads and activates the plugin set and, if
// configured, watches the plugin directory. A plugin that fails to activate
// is logged and left inactive; only a failed discovery pass is returned.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()

	if err := a.loop.Start(); err != nil {
		return err
	}
	a.unsubscribe = a.manager.Subscribe(a.onPluginEvent)

	err := a.loop.Do(func() error {
		if err := a.manager.LoadPlugins(ctx, a.loader); err != nil {
			return err
		}
		if err := a.manager.ActivateAll(); err != nil {
			a.logger.WithError(err).Warn("some plugins failed to activate")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if a.cfg.Plugins.Watch {
		if err := a.watch(); err != nil {
			a.logger.WithError(err).Warn("failed to watch plugin directory")
		}
	}

	a.logger.WithFields(logrus.Fields{
		"loaded": a.manager.Count(),
		"active": a.manager.CountActive(),
	}).Info("plugins ready")
	a.status.SetMessage(a.Translate("status.ready"))
	return nil
}

// Close stops the watcher, unloads every plugin, stops the event loop and
// saves the settings.
func (a *App) Close() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	w := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	var errs []error
	if w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.loop.Do(a.manager.UnloadAll); err != nil {
		errs = append(errs, err)
	}
	a.loop.Stop()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if err := a.settings.Save(); err != nil {
		errs = append(errs, err)
	}
	return joinErrors("close", errs)
}

// Reload unloads the plugin set, rescans, and re-activates what was active
// before plus any new plugin that is not disabled.
func (a *App) Reload(ctx context.Context) error {
	err := a.loop.Do(func() error {
		return a.manager.Reload(ctx, a.loader)
	})
	a.metrics.ReloadsTotal.WithLabelValues(result(err)).Inc()
	return err
}

func (a *App) watch() error {
	w, err := archive.NewWatcher(a.archives, a.onArchivesChanged,
		archive.WithDebounce(a.cfg.Plugins.Debounce.Std()))
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()
	return nil
}

func (a *App) onArchivesChanged(paths []string) {
	a.logger.WithField("archives", len(paths)).Info("plugin archives changed, reloading")
	err := a.loop.Post(func() {
		err := a.manager.Reload(context.Background(), a.loader)
		a.metrics.ReloadsTotal.WithLabelValues(result(err)).Inc()
		if err != nil {
			a.logger.WithError(err).Error("plugin reload failed")
		}
	})
	if err != nil {
		a.logger.WithError(err).Debug("reload skipped")
	}
}

func (a *App) onPluginEvent(ev plugin.ManagerEvent) {
	switch ev.Type {
	case plugin.EventPluginError:
		a.status.SetMessage(fmt.Sprintf("plugin %s: %v", ev.Plugin, ev.Error))
	case plugin.EventPluginsReloaded:
		a.status.SetMessage(a.Translate("status.plugins_loaded"))
	}
}

// pluginEnabled reports whether id may be activated automatically.
func (a *App) pluginEnabled(id string) bool {
	for _, d := range a.cfg.Plugins.Disabled {
		if d == id {
			return false
		}
	}
	for _, d := range a.settings.Strings(settings.KeyDisabledPlugins) {
		if d == id {
			return false
		}
	}
	return true
}

// SetPluginEnabled records the user's choice for id and activates or
// deactivates it.
func (a *App) SetPluginEnabled(id string, enabled bool) error {
	if _, ok := a.manager.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}

	disabled := a.settings.Strings(settings.KeyDisabledPlugins)
	kept := disabled[:0:0]
	for _, d := range disabled {
		if d != id {
			kept = append(kept, d)
		}
	}
	if !enabled {
		kept = append(kept, id)
	}
	if err := a.settings.Set(settings.KeyDisabledPlugins, kept); err != nil {
		return err
	}

	return a.loop.Do(func() error {
		if enabled {
			return a.manager.Activate(id)
		}
		return a.manager.Deactivate(id)
	})
}

// Locale returns the UI locale: the user's setting, else the configured
// default.
func (a *App) Locale() string {
	return a.settings.String(settings.KeyLocale, a.cfg.Editor.Locale)
}

// Translate resolves key through the Translator service. Without one the
// key is returned.
func (a *App) Translate(key string) string {
	tr, ok := service.Get[service.Translator](a.host.Services)
	if !ok {
		return key
	}
	return tr.Translate(a.Locale(), key)
}

// OpenWorkspace makes dir the current workspace and records it in the
// recent list.
func (a *App) OpenWorkspace(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return &FileError{Op: "open workspace", Path: dir, Err: err}
	}
	if err := requireDir(abs); err != nil {
		return &FileError{Op: "open workspace", Path: dir, Err: err}
	}

	ws := &workspace{root: abs, name: filepath.Base(abs)}
	a.mu.Lock()
	a.workspace = ws
	a.mu.Unlock()

	service.Provide[service.Project](a.host.Services, ws, hostapi.Owner)
	if err := a.settings.AddRecent(settings.KeyRecentWorkspaces, abs, a.cfg.Editor.RecentLimit); err != nil {
		return err
	}
	a.status.SetMessage("workspace: " + ws.name)
	return nil
}

// Workspace returns the current workspace.
func (a *App) Workspace() (service.Project, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.workspace == nil {
		return nil, false
	}
	return a.workspace, true
}

// RecentFiles returns the recently opened files, newest first.
func (a *App) RecentFiles() []string {
	return a.settings.Strings(settings.KeyRecentFiles)
}

// RecentWorkspaces returns the recently opened workspaces, newest first.
func (a *App) RecentWorkspaces() []string {
	return a.settings.Strings(settings.KeyRecentWorkspaces)
}

type workspace struct {
	root string
	name string
}

func (w *workspace) Root() string { return w.root }
func (w *workspace) Name() string { return w.name }
