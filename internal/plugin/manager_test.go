package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/service"
)

func smaliFileType() extension.BasicFileType {
	return extension.BasicFileType{TypeName: "smali", Exts: []string{".smali"}, Lang: extension.LangSmali}
}

func newTestManager(t *testing.T) (*Manager, *extension.Host) {
	t.Helper()
	logger, _ := newTestLogger()
	host := extension.NewHost()
	return NewManager(host, WithLogger(logger)), host
}

func TestManagerLoadActivateDeactivate(t *testing.T) {
	m, host := newTestManager(t)

	smali := &fakePlugin{
		info: Info{ID: "smali-plugin", Version: "1.0.0"},
		activate: func(ctx *Context) error {
			ctx.RegisterFileType(smaliFileType())
			return nil
		},
	}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(smali, "smali", nil))))

	inst, ok := m.Get("smali-plugin")
	require.True(t, ok)
	assert.Equal(t, StateDiscovered, inst.State())
	_, ok = host.FileTypes.Lookup(".smali")
	assert.False(t, ok, "discovery does not activate")

	require.NoError(t, m.ActivateAll())
	assert.Equal(t, StateActive, inst.State())
	ft, ok := host.FileTypes.Lookup(".smali")
	require.True(t, ok)
	assert.Equal(t, "smali", ft.Name())

	require.NoError(t, m.Deactivate("smali-plugin"))
	assert.Equal(t, StateInactive, inst.State())
	_, ok = host.FileTypes.Lookup(".smali")
	assert.False(t, ok)
	assert.Empty(t, inst.Context().Registrations())
}

func TestManagerActivateIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	p := &fakePlugin{info: Info{ID: "p"}}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(p, "p", nil))))

	require.NoError(t, m.Activate("p"))
	require.NoError(t, m.Activate("p"))
	assert.Equal(t, 1, p.activated)

	require.NoError(t, m.Deactivate("p"))
	require.NoError(t, m.Deactivate("p"))
	assert.Equal(t, 1, p.deactivated)
}

func TestManagerDeactivateNotActiveIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	p := &fakePlugin{info: Info{ID: "p"}}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(p, "p", nil))))

	require.NoError(t, m.Deactivate("p"))
	assert.Equal(t, 0, p.deactivated)
	inst, _ := m.Get("p")
	assert.Equal(t, StateDiscovered, inst.State())
}

func TestManagerUnknownPlugin(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.Activate("nope"), ErrPluginNotFound)
	assert.ErrorIs(t, m.Deactivate("nope"), ErrPluginNotFound)
	assert.ErrorIs(t, m.Unload("nope"), ErrPluginNotFound)
}

func TestManagerDuplicateIDRejected(t *testing.T) {
	m, host := newTestManager(t)

	ba := NewBoundary("a.jar", &countingCloser{})
	bb := NewBoundary("b.jar", &countingCloser{})
	a := &fakePlugin{info: Info{ID: "dup"}}
	b := &fakePlugin{info: Info{ID: "dup"}}
	other := &fakePlugin{info: Info{ID: "other"}}

	err := m.LoadPlugins(context.Background(), staticLoader(
		discovered(a, "a", ba),
		discovered(other, "other", nil),
		discovered(b, "b", bb),
	))
	require.ErrorIs(t, err, ErrDuplicateID)

	assert.Equal(t, 0, m.Count())
	assert.True(t, ba.Closed())
	assert.True(t, bb.Closed())
	assert.Equal(t, 0, a.activated+b.activated+other.activated)
	assert.Equal(t, 0, host.FileTypes.Len())
}

func TestManagerActivationIsolation(t *testing.T) {
	logger, hook := newTestLogger()
	m := NewManager(extension.NewHost(), WithLogger(logger))

	bad := &fakePlugin{
		info: Info{ID: "a-bad"},
		activate: func(ctx *Context) error {
			ctx.RegisterFileType(smaliFileType())
			return errors.New("cannot start")
		},
	}
	panicky := &fakePlugin{
		info:     Info{ID: "b-panics"},
		activate: func(*Context) error { panic("nil map") },
	}
	good := &fakePlugin{info: Info{ID: "c-good"}}

	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(bad, "bad", nil),
		discovered(panicky, "panicky", nil),
		discovered(good, "good", nil),
	)))

	err := m.ActivateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActivationFailed)

	g, _ := m.Get("c-good")
	assert.Equal(t, StateActive, g.State())

	b, _ := m.Get("a-bad")
	assert.Equal(t, StateDiscovered, b.State())
	assert.Error(t, b.Err())
	_, ok := m.Host().FileTypes.Lookup(".smali")
	assert.False(t, ok, "partial registrations of a failed activation are swept")

	errs := m.Errors()
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "b-panics")

	var pluginErrors int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "plugin activation failed" {
			pluginErrors++
		}
	}
	assert.Equal(t, 2, pluginErrors)
}

func TestManagerDeactivateThenReactivate(t *testing.T) {
	m, host := newTestManager(t)

	p := &fakePlugin{
		info: Info{ID: "data"},
		activate: func(ctx *Context) error {
			ctx.RegisterFileType(extension.BasicFileType{TypeName: "json", Exts: []string{".json"}})
			ctx.RegisterSyntaxHighlighter(extension.LangJSON, extension.Highlighter{StyleKey: "text/json", Tokenizer: "Json"})
			return nil
		},
	}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(p, "data", nil))))

	require.NoError(t, m.Activate("data"))
	require.NoError(t, m.Deactivate("data"))
	assert.Equal(t, 0, host.FileTypes.Len())
	assert.Equal(t, 0, host.Highlighters.Len())

	require.NoError(t, m.Activate("data"))
	assert.Equal(t, 2, p.activated)
	assert.Equal(t, 1, host.FileTypes.Len(), "no leftovers from the previous activation")
	assert.Equal(t, 1, host.Highlighters.Len())
	assert.Len(t, m.Contexts()[0].Registrations(), 2)

	inst, _ := m.Get("data")
	assert.Equal(t, 2, inst.Activations())
}

func TestManagerDeactivateErrorStillSweeps(t *testing.T) {
	for name, hook := range map[string]func() error{
		"error": func() error { return errors.New("close failed") },
		"panic": func() error { panic("deactivate exploded") },
	} {
		t.Run(name, func(t *testing.T) {
			m, host := newTestManager(t)
			p := &fakePlugin{
				info: Info{ID: "p"},
				activate: func(ctx *Context) error {
					ctx.RegisterFileHandler(nil)
					ctx.RegisterToolbarItem(extension.Contribution{ID: "x"})
					return nil
				},
				deactivate: hook,
			}
			require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(p, "p", nil))))
			require.NoError(t, m.Activate("p"))
			require.Equal(t, 1, host.Toolbar.Len())

			require.NoError(t, m.Deactivate("p"))
			assert.Equal(t, 0, host.Toolbar.Len())

			inst, _ := m.Get("p")
			assert.Equal(t, StateInactive, inst.State())
			assert.ErrorIs(t, inst.Err(), ErrDeactivationFailed)
		})
	}
}

func TestManagerSharedBoundaryClosedOnLastUnload(t *testing.T) {
	m, _ := newTestManager(t)

	closer := &countingCloser{}
	b := NewBoundary("bundle.jar", closer)
	require.NoError(t, b.Acquire())

	p1 := &fakePlugin{info: Info{ID: "one"}}
	p2 := &fakePlugin{info: Info{ID: "two"}}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(p1, "one", b),
		discovered(p2, "two", b),
	)))
	require.NoError(t, m.ActivateAll())

	require.NoError(t, m.Deactivate("one"))
	assert.False(t, b.Closed(), "deactivation keeps the boundary")

	require.NoError(t, m.Unload("one"))
	assert.False(t, b.Closed())
	assert.Equal(t, 1, p1.deactivated, "unload does not re-run deactivate")

	require.NoError(t, m.Unload("two"))
	assert.True(t, b.Closed())
	assert.Equal(t, 1, closer.closes)
	assert.Equal(t, 1, p2.deactivated)
	assert.Equal(t, 0, m.Count())
}

func TestManagerLoadPluginsReplacesPreviousSet(t *testing.T) {
	m, host := newTestManager(t)

	b := NewBoundary("old.jar", &countingCloser{})
	old := &fakePlugin{
		info: Info{ID: "old"},
		activate: func(ctx *Context) error {
			ctx.RegisterFileType(smaliFileType())
			return nil
		},
	}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(old, "old", b))))
	require.NoError(t, m.ActivateAll())

	fresh := &fakePlugin{info: Info{ID: "fresh"}}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(fresh, "fresh", nil))))

	assert.True(t, b.Closed())
	assert.Equal(t, 1, old.deactivated)
	_, ok := m.Get("old")
	assert.False(t, ok)
	assert.Equal(t, 0, host.FileTypes.Len())
	assert.Equal(t, 1, m.Count())
}

func TestManagerLoaderError(t *testing.T) {
	m, _ := newTestManager(t)
	b := NewBoundary("partial.jar", &countingCloser{})
	p := &fakePlugin{info: Info{ID: "p"}}

	err := m.LoadPlugins(context.Background(), LoaderFunc(func(context.Context) ([]Discovered, error) {
		return []Discovered{discovered(p, "p", b)}, context.Canceled
	}))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, b.Closed())
	assert.Equal(t, 0, m.Count())
}

func TestManagerSkipsPluginWithoutID(t *testing.T) {
	m, _ := newTestManager(t)
	b := NewBoundary("anon.jar", &countingCloser{})

	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(&fakePlugin{}, "anon", b),
		discovered(&fakePlugin{info: Info{ID: "named"}}, "named", nil),
	)))
	assert.Equal(t, 1, m.Count())
	assert.True(t, b.Closed())
}

func TestManagerContextsOrderedByID(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(barePlugin{id: "zeta"}, "a", nil),
		discovered(barePlugin{id: "alpha"}, "b", nil),
		discovered(barePlugin{id: "mid"}, "c", nil),
	)))

	var ids []string
	for _, c := range m.Contexts() {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

func TestManagerOnPluginAddedReplays(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(barePlugin{id: "b"}, "b", nil),
		discovered(barePlugin{id: "a"}, "a", nil),
	)))

	var seen []string
	unsubscribe := m.OnPluginAdded(func(inst *Instance) {
		seen = append(seen, inst.ID())
	})
	assert.Equal(t, []string{"a", "b"}, seen)

	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(barePlugin{id: "c"}, "c", nil),
	)))
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	unsubscribe()
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(barePlugin{id: "d"}, "d", nil),
	)))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestManagerListenerPanicRecovered(t *testing.T) {
	m, _ := newTestManager(t)
	m.OnPluginAdded(func(*Instance) { panic("listener bug") })

	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(barePlugin{id: "a"}, "a", nil),
	)))
	assert.Equal(t, 1, m.Count())
}

func TestManagerSubscribe(t *testing.T) {
	m, _ := newTestManager(t)

	var events []string
	unsubscribe := m.Subscribe(func(e ManagerEvent) {
		events = append(events, e.Type.String()+":"+e.Plugin)
	})
	m.Subscribe(func(ManagerEvent) { panic("ignored") })

	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(barePlugin{id: "p"}, "p", nil))))
	require.NoError(t, m.Activate("p"))
	require.NoError(t, m.Unload("p"))

	assert.Equal(t, []string{"loaded:p", "activated:p", "deactivated:p", "unloaded:p"}, events)

	unsubscribe()
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(barePlugin{id: "q"}, "q", nil))))
	assert.Len(t, events, 4)
}

func TestManagerReloadRestoresActiveState(t *testing.T) {
	m, _ := newTestManager(t)
	load := func() Loader {
		return staticLoader(
			discovered(&fakePlugin{info: Info{ID: "on"}}, "on", nil),
			discovered(&fakePlugin{info: Info{ID: "off"}}, "off", nil),
		)
	}
	require.NoError(t, m.LoadPlugins(context.Background(), load()))
	require.NoError(t, m.ActivateAll())
	require.NoError(t, m.Deactivate("off"))

	next := load()
	require.NoError(t, m.Reload(context.Background(), LoaderFunc(func(ctx context.Context) ([]Discovered, error) {
		found, err := next.Load(ctx)
		return append(found, discovered(&fakePlugin{info: Info{ID: "new"}}, "new", nil)), err
	})))

	on, _ := m.Get("on")
	off, _ := m.Get("off")
	added, _ := m.Get("new")
	assert.Equal(t, StateActive, on.State())
	assert.Equal(t, StateDiscovered, off.State())
	assert.Equal(t, StateActive, added.State())
}

func TestManagerAutoActivateFilter(t *testing.T) {
	logger, _ := newTestLogger()
	disabled := map[string]bool{"git": true}
	m := NewManager(extension.NewHost(), WithLogger(logger), WithAutoActivate(func(id string) bool {
		return !disabled[id]
	}))
	load := func() Loader {
		return staticLoader(
			discovered(&fakePlugin{info: Info{ID: "git"}}, "git", nil),
			discovered(&fakePlugin{info: Info{ID: "smali"}}, "smali", nil),
		)
	}

	require.NoError(t, m.LoadPlugins(context.Background(), load()))
	require.NoError(t, m.ActivateAll())
	assert.Equal(t, []string{"smali"}, ids(m.ListByState(StateActive)))

	require.NoError(t, m.Reload(context.Background(), load()))
	assert.Equal(t, []string{"smali"}, ids(m.ListByState(StateActive)))

	require.NoError(t, m.Activate("git"))
	assert.Equal(t, 2, m.CountActive())
}

func ids(insts []*Instance) []string {
	out := make([]string, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.ID())
	}
	return out
}

func TestManagerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	logger, _ := newTestLogger()
	m := NewManager(extension.NewHost(), WithLogger(logger), WithMetrics(metrics))

	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(&fakePlugin{
			info: Info{ID: "ok"},
			activate: func(ctx *Context) error {
				ctx.RegisterToolbarItem(extension.Contribution{ID: "a"})
				ctx.RegisterActivityBarItem(extension.Contribution{ID: "b"})
				return nil
			},
		}, "ok", nil),
		discovered(&fakePlugin{info: Info{ID: "bad"}, activate: func(*Context) error { return errors.New("x") }}, "bad", nil),
	)))
	_ = m.ActivateAll()

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DiscoveredTotal.WithLabelValues("embedded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ActivationsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ActivationsTotal.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ActivePlugins))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.LoadedPlugins))

	require.NoError(t, m.Deactivate("ok"))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ActivePlugins))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SweepsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SweptEntriesTotal))
}

func TestManagerLateRegistrationIsDropped(t *testing.T) {
	m, host := newTestManager(t)

	var saved *Context
	p := &fakePlugin{
		info: Info{ID: "background"},
		activate: func(ctx *Context) error {
			saved = ctx
			return nil
		},
	}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(p, "background", nil))))
	require.NoError(t, m.Activate("background"))
	assert.True(t, saved.Live())

	require.NoError(t, m.Deactivate("background"))
	assert.False(t, saved.Live())
	saved.RegisterFileType(smaliFileType())
	_, ok := host.FileTypes.Lookup(".smali")
	assert.False(t, ok, "no registrations while inactive")
	assert.Empty(t, saved.Registrations())

	require.NoError(t, m.Activate("background"))
	saved.RegisterFileType(smaliFileType())
	_, ok = host.FileTypes.Lookup(".smali")
	assert.True(t, ok, "re-activation reopens the context")

	require.NoError(t, m.Unload("background"))
	saved.RegisterFileType(smaliFileType())
	assert.ErrorIs(t, saved.BindShortcut("ctrl+s", "x"), ErrContextClosed)
	require.NoError(t, m.UnloadAll())
	_, ok = host.FileTypes.Lookup(".smali")
	assert.False(t, ok, "nothing survives unload")
}

func TestManagerFailedActivationClosesContext(t *testing.T) {
	m, host := newTestManager(t)

	var saved *Context
	p := &fakePlugin{
		info: Info{ID: "broken"},
		activate: func(ctx *Context) error {
			saved = ctx
			return errors.New("boom")
		},
	}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(p, "broken", nil))))
	require.Error(t, m.Activate("broken"))

	saved.RegisterFileType(smaliFileType())
	assert.Equal(t, 0, host.FileTypes.Len())
}

func TestManagerReloadRetriesFailedActivation(t *testing.T) {
	m, _ := newTestManager(t)

	flaky := &fakePlugin{
		info:     Info{ID: "flaky"},
		activate: func(*Context) error { return errors.New("not yet") },
	}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(discovered(flaky, "flaky", nil))))
	require.Error(t, m.ActivateAll())

	inst, _ := m.Get("flaky")
	require.Equal(t, StateDiscovered, inst.State())

	fixed := &fakePlugin{info: Info{ID: "flaky"}}
	require.NoError(t, m.Reload(context.Background(), staticLoader(discovered(fixed, "flaky", nil))))

	inst, _ = m.Get("flaky")
	assert.Equal(t, StateActive, inst.State())
	assert.Equal(t, 1, fixed.activated)
}

func TestManagerRejectsHostOwnerID(t *testing.T) {
	m, host := newTestManager(t)
	ProvideService[projectService](liveContext(HostOwner, host, logrus.New()), project{root: "/ws"})

	b := NewBoundary("impostor.jar", &countingCloser{})
	impostor := &fakePlugin{info: Info{ID: HostOwner}}
	require.NoError(t, m.LoadPlugins(context.Background(), staticLoader(
		discovered(impostor, "impostor", b),
		discovered(&fakePlugin{info: Info{ID: "honest"}}, "honest", nil),
	)))

	_, ok := m.Get(HostOwner)
	assert.False(t, ok)
	assert.True(t, b.Closed())
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.ActivateAll())
	require.NoError(t, m.UnloadAll())
	assert.Zero(t, impostor.activated)

	got, ok := service.Get[projectService](host.Services)
	require.True(t, ok, "host services survive")
	assert.Equal(t, "/ws", got.Root())
}
