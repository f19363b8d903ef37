package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Loader discovers plugins. Discovery never activates anything.
type Loader interface {
	// Load returns the discovered plugins. Each returned value holds one
	// reference on its boundary; the caller must Release what it does not
	// keep. A failing candidate is logged and skipped, not returned as an
	// error.
	Load(ctx context.Context) ([]Discovered, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]Discovered, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) ([]Discovered, error) {
	return f(ctx)
}

// Factory creates an embedded plugin.
type Factory func() (Plugin, error)

var embedded = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{factories: make(map[string]Factory)}

// RegisterEmbedded makes a plugin implementation available to every
// EmbeddedLoader. It is meant to be called from package init functions and
// panics if name is registered twice or factory is nil.
func RegisterEmbedded(name string, factory Factory) {
	embedded.mu.Lock()
	defer embedded.mu.Unlock()

	if factory == nil {
		panic("plugin: RegisterEmbedded factory is nil")
	}
	if _, dup := embedded.factories[name]; dup {
		panic(fmt.Errorf("plugin: %w: %s", ErrDuplicateEmbedded, name))
	}
	embedded.factories[name] = factory
}

// EmbeddedNames returns the registered embedded implementation names, sorted.
func EmbeddedNames() []string {
	embedded.mu.RLock()
	defer embedded.mu.RUnlock()
	return sortedNames(embedded.factories)
}

func sortedNames(factories map[string]Factory) []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EmbeddedLoader discovers plugins compiled into the program.
type EmbeddedLoader struct {
	logger    *logrus.Entry
	factories map[string]Factory
}

// EmbeddedOption configures an EmbeddedLoader.
type EmbeddedOption func(*EmbeddedLoader)

// WithFactories replaces the process-wide table with factories.
func WithFactories(factories map[string]Factory) EmbeddedOption {
	return func(l *EmbeddedLoader) {
		l.factories = factories
	}
}

// NewEmbeddedLoader creates a loader over the factories registered with
// RegisterEmbedded.
func NewEmbeddedLoader(logger *logrus.Logger, opts ...EmbeddedOption) *EmbeddedLoader {
	if logger == nil {
		logger = logrus.New()
	}
	embedded.mu.RLock()
	snapshot := make(map[string]Factory, len(embedded.factories))
	for name, f := range embedded.factories {
		snapshot[name] = f
	}
	embedded.mu.RUnlock()

	l := &EmbeddedLoader{
		logger:    logger.WithField("component", "embedded-loader"),
		factories: snapshot,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Provides reports whether name is an embedded implementation.
func (l *EmbeddedLoader) Provides(name string) bool {
	_, ok := l.factories[name]
	return ok
}

// Load implements Loader. Factories run in name order; a factory that
// fails or panics is logged and skipped.
func (l *EmbeddedLoader) Load(ctx context.Context) ([]Discovered, error) {
	var found []Discovered
	for _, name := range sortedNames(l.factories) {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		p, info, err := instantiate(l.factories[name])
		if err != nil {
			l.logger.WithError(err).WithField("implementation", name).
				Error("embedded plugin failed to instantiate")
			continue
		}

		found = append(found, Discovered{
			Descriptor: Descriptor{
				Info:           info,
				Origin:         OriginEmbedded,
				Implementation: name,
			},
			Plugin: p,
		})
	}
	return found, nil
}

// instantiate runs factory and reads the plugin identity, converting panics
// into errors.
func instantiate(factory Factory) (p Plugin, info Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	p, err = factory()
	if err != nil {
		return nil, Info{}, err
	}
	if p == nil {
		return nil, Info{}, fmt.Errorf("%w: factory returned nil", ErrInvalidPlugin)
	}
	return p, p.Info(), nil
}

// CompositeLoader runs several loaders as one discovery pass.
type CompositeLoader struct {
	logger  *logrus.Entry
	loaders []Loader
}

// NewCompositeLoader creates a loader over loaders, run in order.
func NewCompositeLoader(logger *logrus.Logger, loaders ...Loader) *CompositeLoader {
	if logger == nil {
		logger = logrus.New()
	}
	return &CompositeLoader{
		logger:  logger.WithField("component", "composite-loader"),
		loaders: loaders,
	}
}

// Load implements Loader. Results are concatenated; when the same
// implementation is discovered twice the first wins and the other is
// released. The result is sorted by implementation name. A loader that
// fails is logged and skipped.
func (c *CompositeLoader) Load(ctx context.Context) ([]Discovered, error) {
	var all []Discovered
	seen := make(map[string]bool)

	for i, l := range c.loaders {
		found, err := l.Load(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				ReleaseAll(found)
				ReleaseAll(all)
				return nil, ctxErr
			}
			c.logger.WithError(err).WithField("loader", i).Error("plugin loader failed")
		}

		for _, d := range found {
			impl := d.Descriptor.Implementation
			if impl == "" && d.Plugin != nil {
				impl = implementationName(d.Plugin)
				d.Descriptor.Implementation = impl
			}
			if seen[impl] {
				c.logger.WithField("implementation", impl).Debug("dropping duplicate implementation")
				d.Release()
				continue
			}
			seen[impl] = true
			all = append(all, d)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Descriptor.Implementation < all[j].Descriptor.Implementation
	})
	return all, nil
}
