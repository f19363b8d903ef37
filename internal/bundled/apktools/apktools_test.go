package apktools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/tool"
)

type statusChan chan string

func (s statusChan) SetMessage(msg string) {
	s <- msg
}

// fixture installs apktool and jadx scripts that append their arguments to
// a log file, and returns the log path.
func fixture(t *testing.T, host *extension.Host, apktoolBody string) string {
	t.Helper()
	dir := t.TempDir()
	log := filepath.Join(t.TempDir(), "calls")
	scripts := map[string]string{
		"apktool": "#!/bin/sh\necho \"apktool $@\" >> " + log + "\n" + apktoolBody,
		"jadx":    "#!/bin/sh\necho \"jadx $@\" >> " + log + "\n",
	}
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755))
	}
	resolver := tool.NewResolver(
		tool.WithToolchainDir(dir),
		tool.WithLookPath(func(string) (string, error) { return "", tool.ErrNotFound }),
	)
	runner := tool.NewRunner(resolver, tool.WithPollInterval(5*time.Millisecond), tool.WithGracePeriod(50*time.Millisecond))
	service.Provide(host.Services, runner, hostapi.Owner)
	return log
}

func calls(t *testing.T, log string) []string {
	t.Helper()
	data, err := os.ReadFile(log)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func activate(t *testing.T, host *extension.Host) *plugin.Manager {
	t.Helper()
	m := plugin.NewManager(host)
	loader := plugin.NewEmbeddedLoader(nil, plugin.WithFactories(map[string]plugin.Factory{
		Implementation: func() (plugin.Plugin, error) { return New(), nil },
	}))
	require.NoError(t, m.LoadPlugins(context.Background(), loader))
	require.NoError(t, m.ActivateAll())
	return m
}

func TestActivateContributions(t *testing.T) {
	host := extension.NewHost()
	m := activate(t, host)

	items := host.Toolbar.Items()
	require.Len(t, items, 3)
	assert.Equal(t, CommandDecode, items[0].ID)
	assert.Equal(t, CommandBuild, items[1].ID)
	assert.Equal(t, CommandDecompile, items[2].ID)

	for _, id := range []string{CommandDecode, CommandBuild, CommandDecompile} {
		assert.True(t, host.Commands.Has(id), id)
	}
	assert.True(t, host.FileTypes.ForPath("app.APK").IsBinary())
	_, ok := service.Get[service.Decompiler](host.Services)
	assert.True(t, ok)
	assert.Equal(t, 1, host.Handlers.Len())

	require.NoError(t, m.Deactivate("apktools"))
	assert.Zero(t, host.Toolbar.Len())
	assert.Zero(t, host.Handlers.Len())
	_, ok = service.Get[service.Decompiler](host.Services)
	assert.False(t, ok)
}

func TestDefaultPaths(t *testing.T) {
	assert.Equal(t, "/w/app_src", DecodeDir("/w/app.apk"))
	assert.Equal(t, "/w/app_java", JavaDir("/w/app.apk"))
	assert.Equal(t, "/w/app_src/dist/app_src.apk", BuildPath("/w/app_src/"))
}

func TestCommands(t *testing.T) {
	host := extension.NewHost()
	log := fixture(t, host, "")
	activate(t, host)
	ctx := context.Background()

	require.NoError(t, host.Commands.Execute(ctx, CommandDecode, map[string]any{"apk": "/w/app.apk"}))
	require.NoError(t, host.Commands.Execute(ctx, CommandBuild, map[string]any{"dir": "/w/app_src", "out": "/w/new.apk"}))
	require.NoError(t, host.Commands.Execute(ctx, CommandDecompile, map[string]any{"apk": "/w/app.apk"}))

	assert.Equal(t, []string{
		"apktool d -f -o /w/app_src /w/app.apk",
		"apktool b /w/app_src -o /w/new.apk",
		"jadx -d /w/app_java /w/app.apk",
	}, calls(t, log))

	err := host.Commands.Execute(ctx, CommandDecode, nil)
	assert.ErrorIs(t, err, hostapi.ErrMissingArgument)
}

func TestCommandFailureReported(t *testing.T) {
	host := extension.NewHost()
	fixture(t, host, "exit 3\n")
	status := make(statusChan, 4)
	service.Provide[service.StatusBar](host.Services, status, hostapi.Owner)
	activate(t, host)

	err := host.Commands.Execute(context.Background(), CommandDecode, map[string]any{"apk": "/w/app.apk"})
	require.Error(t, err)
	assert.Contains(t, <-status, "apktool: decode failed")
}

func TestDecompilerService(t *testing.T) {
	host := extension.NewHost()
	log := fixture(t, host, "")
	activate(t, host)

	d, ok := service.Get[service.Decompiler](host.Services)
	require.True(t, ok)
	require.NoError(t, d.Decompile(context.Background(), "/w/a.apk", "/w/out"))
	assert.Equal(t, []string{"jadx -d /w/out /w/a.apk"}, calls(t, log))
}

func TestOpenAPKDecodesInBackground(t *testing.T) {
	host := extension.NewHost()
	log := fixture(t, host, "")
	status := make(statusChan, 4)
	service.Provide[service.StatusBar](host.Services, status, hostapi.Owner)
	activate(t, host)

	assert.False(t, host.Handlers.HandleOpenFile("/w/readme.txt"))
	require.True(t, host.Handlers.HandleOpenFile("/w/app.apk"))

	assert.Equal(t, "apktool: decoding app.apk", <-status)
	select {
	case msg := <-status:
		assert.Equal(t, "apktool: decode finished, output in /w/app_src", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("decode did not finish")
	}
	assert.Equal(t, []string{"apktool d -f -o /w/app_src /w/app.apk"}, calls(t, log))
}

func TestDeactivateCancelsDecodes(t *testing.T) {
	host := extension.NewHost()
	fixture(t, host, "exec sleep 30\n")
	status := make(statusChan, 4)
	service.Provide[service.StatusBar](host.Services, status, hostapi.Owner)
	m := activate(t, host)

	require.True(t, host.Handlers.HandleOpenFile("/w/slow.apk"))
	<-status

	start := time.Now()
	require.NoError(t, m.Deactivate("apktools"))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, <-status, "apktool: decode failed")
}
