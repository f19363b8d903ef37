package git

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/tool"
)

type statusRecorder struct {
	messages []string
}

func (s *statusRecorder) SetMessage(msg string) {
	s.messages = append(s.messages, msg)
}

// fakeGit installs a git script that prints output and exits with code.
func fakeGit(t *testing.T, host *extension.Host, output string, code int) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\nprintf '%s' '" + output + "'\nexit " + strconv.Itoa(code) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "git"), []byte(script), 0o755))

	resolver := tool.NewResolver(
		tool.WithToolchainDir(dir),
		tool.WithLookPath(func(string) (string, error) { return "", tool.ErrNotFound }),
	)
	service.Provide(host.Services, tool.NewRunner(resolver), hostapi.Owner)
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

	item, ok := host.ActivityBar.Lookup("git.panel")
	require.True(t, ok)
	assert.Equal(t, CommandStatus, item.Command)
	assert.True(t, host.Commands.Has(CommandStatus))
	assert.True(t, host.Commands.Has(CommandCommit))

	id, ok := host.Shortcuts.Resolve("Shift+Ctrl+G")
	require.True(t, ok)
	assert.Equal(t, CommandStatus, id)

	_, ok = service.Get[service.Search](host.Services)
	assert.True(t, ok)

	require.NoError(t, m.Deactivate("git"))
	_, ok = service.Get[service.Search](host.Services)
	assert.False(t, ok)
	assert.Zero(t, host.ActivityBar.Len())
	_, ok = host.Shortcuts.Resolve(ShortcutStatus)
	assert.False(t, ok)
}

func TestStatusCommand(t *testing.T) {
	host := extension.NewHost()
	fakeGit(t, host, "## main...origin/main\n M AndroidManifest.xml\n?? smali/New.smali\n", 0)
	rec := &statusRecorder{}
	service.Provide[service.StatusBar](host.Services, rec, hostapi.Owner)
	activate(t, host)

	require.NoError(t, host.Commands.Execute(context.Background(), CommandStatus, map[string]any{"root": t.TempDir()}))
	assert.Equal(t, []string{"git: main, 2 changed"}, rec.messages)
}

func TestSearchService(t *testing.T) {
	host := extension.NewHost()
	fakeGit(t, host, "smali/Main.smali:12:    const-string v0, \"hello\"\nres/values/strings.xml:3:<string>hello</string>\n", 0)
	activate(t, host)

	search, ok := service.Get[service.Search](host.Services)
	require.True(t, ok)

	matches, err := search.Search(context.Background(), t.TempDir(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []service.Match{
		{Path: "smali/Main.smali", Line: 12, Text: `    const-string v0, "hello"`},
		{Path: "res/values/strings.xml", Line: 3, Text: "<string>hello</string>"},
	}, matches)
}

func TestSearchNoMatches(t *testing.T) {
	host := extension.NewHost()
	fakeGit(t, host, "", 1)
	activate(t, host)

	search, _ := service.Get[service.Search](host.Services)
	matches, err := search.Search(context.Background(), t.TempDir(), "absent")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchFailure(t *testing.T) {
	host := extension.NewHost()
	fakeGit(t, host, "fatal: not a git repository", 2)
	activate(t, host)

	search, _ := service.Get[service.Search](host.Services)
	_, err := search.Search(context.Background(), t.TempDir(), "x")
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Status
	}{
		{"clean", "## main\n", Status{Branch: "main"}},
		{"tracking", "## dev...origin/dev [ahead 2]\n M a\n D b\n", Status{Branch: "dev", Changed: 2}},
		{"no commits", "## No commits yet on main\n?? a\n", Status{Branch: "main", Changed: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.out))
		})
	}
	assert.Equal(t, "git: main, clean", Status{Branch: "main"}.String())
}

func TestParseGrepSkipsMalformed(t *testing.T) {
	got := ParseGrep("Binary file x matches\na.txt:x:y\nb.txt:4:k:v\n")
	assert.Equal(t, []service.Match{{Path: "b.txt", Line: 4, Text: "k:v"}}, got)
}
