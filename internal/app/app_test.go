package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/apkedit/internal/bundled/git"
	"github.com/dshills/apkedit/internal/config"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/settings"
)

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Tools.ToolchainDir = t.TempDir()
	cfg.Tools.BundledDir = t.TempDir()
	cfg.Tools.PollInterval = config.Duration(5 * time.Millisecond)
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	logger, _ := newTestLogger()
	opts = append([]Option{WithLogger(logger), WithSettings(settings.NewMemory())}, opts...)
	a, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// writeArchive writes a zip archive containing files into dir.
func writeArchive(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for file, content := range files {
		w, err := zw.Create(file)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

const manifestPlugin = `{
	"name": "proguard-tools",
	"version": "0.3.0",
	"implementations": [{"name": "proguard.mapping", "main": "init.lua"}]
}`

const mappingPlugin = `
return {
	id = "proguard",
	name = "ProGuard Mapping",
	activate = function(ctx)
		ctx.register_file_type{ name = "ProGuard Mapping", extensions = { "map" }, language = "proguard" }
		ctx.register_formatter("proguard", function(src)
			local out = src:gsub("[ \t]+\n", "\n")
			return out
		end)
	end,
}
`

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrValidationFailed)
}

func TestStartActivatesBundledPlugins(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	for _, id := range []string{"apktools", "data", "git", "i18n", "smali"} {
		inst, ok := a.Plugins().Get(id)
		require.True(t, ok, id)
		assert.Equal(t, plugin.StateActive, inst.State(), id)
	}
	assert.Equal(t, "Ready", a.Status().Message())

	_, ok := service.Get[service.StatusBar](a.Host().Services)
	assert.True(t, ok)
	assert.Equal(t, float64(5), testutil.ToFloat64(a.Metrics().Plugins.ActivePlugins))

	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyRunning)
}

func TestStartLoadsArchivePlugins(t *testing.T) {
	cfg := testConfig(t)
	writeArchive(t, cfg.Plugins.Dir, "proguard.jar", map[string]string{
		"plugin.json": manifestPlugin,
		"init.lua":    mappingPlugin,
	})
	a := newTestApp(t, cfg)

	inst, ok := a.Plugins().Get("proguard")
	require.True(t, ok)
	assert.Equal(t, plugin.OriginArchive, inst.Descriptor().Origin)
	assert.Equal(t, plugin.StateActive, inst.State())

	path := filepath.Join(t.TempDir(), "mapping.map")
	require.NoError(t, os.WriteFile(path, []byte("a -> b   \nc -> d\n"), 0o644))

	out, err := a.FormatFile(path, true)
	require.NoError(t, err)
	assert.Equal(t, "a -> b\nc -> d\n", out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestDisabledPluginsStayInactive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugins.Disabled = []string{"git"}
	a := newTestApp(t, cfg)

	inst, ok := a.Plugins().Get("git")
	require.True(t, ok)
	assert.NotEqual(t, plugin.StateActive, inst.State())
	assert.False(t, a.Host().Commands.Has(git.CommandStatus))

	require.NoError(t, a.Reload(context.Background()))
	inst, _ = a.Plugins().Get("git")
	assert.NotEqual(t, plugin.StateActive, inst.State())
}

func TestSetPluginEnabled(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	require.NoError(t, a.SetPluginEnabled("smali", false))
	_, ok := a.Host().FileTypes.Lookup(".smali")
	assert.False(t, ok)
	assert.Equal(t, []string{"smali"}, a.Settings().Strings(settings.KeyDisabledPlugins))

	require.NoError(t, a.Reload(context.Background()))
	_, ok = a.Host().FileTypes.Lookup(".smali")
	assert.False(t, ok, "disabled plugins stay inactive across reloads")

	require.NoError(t, a.SetPluginEnabled("smali", true))
	_, ok = a.Host().FileTypes.Lookup(".smali")
	assert.True(t, ok)
	assert.Empty(t, a.Settings().Strings(settings.KeyDisabledPlugins))

	assert.ErrorIs(t, a.SetPluginEnabled("nope", true), ErrUnknownPlugin)
}

func TestOpenFileAsDocument(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	path := filepath.Join(t.TempDir(), "Main.smali")
	require.NoError(t, os.WriteFile(path, []byte(".class public LMain;\n"), 0o644))

	res, err := a.OpenFile(path)
	require.NoError(t, err)
	assert.False(t, res.Handled)
	require.NotNil(t, res.Document)
	assert.Equal(t, "Smali", res.Document.Type.Name())
	assert.Equal(t, extension.LangSmali, res.Document.Language)
	assert.Equal(t, ".class public LMain;\n", res.Document.Content)
	assert.Equal(t, []string{path}, a.RecentFiles())
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics().FilesOpenedTotal.WithLabelValues("editor")))
}

func TestOpenFileByHandler(t *testing.T) {
	cfg := testConfig(t)
	script := "#!/bin/sh\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Tools.ToolchainDir, "apktool"), []byte(script), 0o755))
	a := newTestApp(t, cfg)

	path := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0o644))

	res, err := a.OpenFile(path)
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Nil(t, res.Document)

	assert.Eventually(t, func() bool {
		return a.Status().Message() == "apktool: decode finished, output in "+filepath.Join(filepath.Dir(path), "app_src")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOpenFileErrors(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	dir := t.TempDir()

	_, err := a.OpenFile(filepath.Join(dir, "missing.txt"))
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "open", fe.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = a.OpenFile(dir)
	assert.Error(t, err)

	bin := filepath.Join(dir, "classes.dex")
	require.NoError(t, os.WriteFile(bin, []byte{0x64, 0x65, 0x78}, 0o644))
	_, err = a.OpenFile(bin)
	assert.ErrorIs(t, err, ErrBinaryFile)
	assert.Empty(t, a.RecentFiles())
}

func TestRecentFilesCapped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Editor.RecentLimit = 2
	a := newTestApp(t, cfg)

	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.json", "b.json", "c.json"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
		paths = append(paths, p)
		_, err := a.OpenFile(p)
		require.NoError(t, err)
	}
	_, err := a.OpenFile(paths[1])
	require.NoError(t, err)

	assert.Equal(t, []string{paths[1], paths[2]}, a.RecentFiles())
}

func TestFormatText(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	out, err := a.FormatText(extension.LangJSON, `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}\n", out)

	_, err = a.FormatText(extension.LangJava, "class A {}")
	assert.ErrorIs(t, err, ErrNoFormatter)

	_, err = a.FormatText(extension.LangJSON, "{")
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Metrics().FormatsTotal.WithLabelValues("json", "failure")))
}

func TestFormatFileWithoutWrite(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	path := filepath.Join(t.TempDir(), "apktool.yml")
	require.NoError(t, os.WriteFile(path, []byte("sdkInfo:\n    minSdkVersion: 21\n"), 0o600))

	out, err := a.FormatFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, "sdkInfo:\n  minSdkVersion: 21\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sdkInfo:\n    minSdkVersion: 21\n", string(data))
}

func TestExecuteCommandAndShortcut(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	err := a.ExecuteCommand(context.Background(), "missing.command", nil)
	assert.Error(t, err)
	assert.Contains(t, a.Status().Message(), "missing.command")

	handled, err := a.DispatchShortcut(context.Background(), "ctrl+alt+z")
	require.NoError(t, err)
	assert.False(t, handled)

	// git.status needs a root; the failure still proves the binding.
	handled, err = a.DispatchShortcut(context.Background(), git.ShortcutStatus)
	assert.True(t, handled)
	assert.Error(t, err)
}

func TestWorkspaceAndSearch(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	_, err := a.Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoWorkspace)

	dir := t.TempDir()
	require.NoError(t, a.OpenWorkspace(dir))
	ws, ok := a.Workspace()
	require.True(t, ok)
	assert.Equal(t, filepath.Base(dir), ws.Name())
	assert.Equal(t, []string{dir}, a.RecentWorkspaces())

	p, ok := service.Get[service.Project](a.Host().Services)
	require.True(t, ok)
	assert.Equal(t, dir, p.Root())

	require.NoError(t, a.SetPluginEnabled("git", false))
	_, err = a.Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	assert.Error(t, a.OpenWorkspace(filepath.Join(dir, "missing")))
}

func TestDecompileWithoutService(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugins.Disabled = []string{"apktools"}
	a := newTestApp(t, cfg)

	err := a.Decompile(context.Background(), "a.apk", "out")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestTranslateUsesLocaleSetting(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.NoError(t, a.Settings().Set(settings.KeyLocale, "de"))

	assert.Equal(t, "de", a.Locale())
	assert.Equal(t, "Bereit", a.Translate("status.ready"))
	assert.Equal(t, "no.such.key", a.Translate("no.such.key"))
}

func TestCloseUnloadsAndSaves(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := newTestLogger()
	a, err := New(cfg, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	path := filepath.Join(t.TempDir(), "x.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, err = a.OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.Zero(t, a.Plugins().Count())
	assert.Zero(t, a.Host().FileTypes.Len())
	require.NoError(t, a.Close())

	store, err := settings.Open(cfg.SettingsPath())
	require.NoError(t, err)
	assert.Equal(t, []string{path}, store.Strings(settings.KeyRecentFiles))
}

func TestWatcherReloadsOnNewArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugins.Watch = true
	cfg.Plugins.Debounce = config.Duration(20 * time.Millisecond)
	require.NoError(t, os.MkdirAll(cfg.Plugins.Dir, 0o755))
	a := newTestApp(t, cfg)

	_, ok := a.Plugins().Get("proguard")
	require.False(t, ok)

	writeArchive(t, cfg.Plugins.Dir, "proguard.jar", map[string]string{
		"plugin.json": manifestPlugin,
		"init.lua":    mappingPlugin,
	})

	assert.Eventually(t, func() bool {
		inst, ok := a.Plugins().Get("proguard")
		return ok && inst.State() == plugin.StateActive
	}, 5*time.Second, 20*time.Millisecond)
}
