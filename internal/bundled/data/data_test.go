package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
)

type statusRecorder struct {
	messages []string
}

func (s *statusRecorder) SetMessage(msg string) {
	s.messages = append(s.messages, msg)
}

func activate(t *testing.T, host *extension.Host) {
	t.Helper()
	m := plugin.NewManager(host)
	loader := plugin.NewEmbeddedLoader(nil, plugin.WithFactories(map[string]plugin.Factory{
		Implementation: func() (plugin.Plugin, error) { return New(), nil },
	}))
	require.NoError(t, m.LoadPlugins(context.Background(), loader))
	require.NoError(t, m.ActivateAll())
}

func TestActivateContributions(t *testing.T) {
	host := extension.NewHost()
	activate(t, host)

	tests := []struct {
		path string
		name string
		lang extension.Language
	}{
		{"res/raw/config.json", "JSON", extension.LangJSON},
		{"assets/app.yml", "YAML", extension.LangYAML},
		{"apktool.yaml", "YAML", extension.LangYAML},
		{"AndroidManifest.xml", "XML", extension.LangXML},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ft := host.FileTypes.ForPath(tt.path)
			assert.Equal(t, tt.name, ft.Name())
			assert.Equal(t, tt.lang, extension.LanguageOf(ft))
			_, ok := host.Highlighters.Lookup(tt.lang)
			assert.True(t, ok)
		})
	}

	_, ok := host.Formatters.Lookup(extension.LangJSON)
	assert.True(t, ok)
	_, ok = host.Formatters.Lookup(extension.LangYAML)
	assert.True(t, ok)
	_, ok = host.Formatters.Lookup(extension.LangXML)
	assert.False(t, ok)
}

func TestFormatJSON(t *testing.T) {
	got, err := FormatJSON(`{"b":1,"a":[1,2],"c":{"d":true}}`)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"b\": 1,\n  \"a\": [1, 2],\n  \"c\": {\n    \"d\": true\n  }\n}\n", got)

	_, err = FormatJSON(`{"b":`)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestFormatYAML(t *testing.T) {
	src := "version: 2.9.3\nsdkInfo:\n    minSdkVersion: 21   # min\n    targetSdkVersion: 33\n---\nname: second\n"
	got, err := FormatYAML(src)
	require.NoError(t, err)
	assert.Equal(t, "version: 2.9.3\nsdkInfo:\n  minSdkVersion: 21 # min\n  targetSdkVersion: 33\n---\nname: second\n", got)

	_, err = FormatYAML("a: [1, 2\n")
	assert.ErrorIs(t, err, ErrInvalidYAML)

	got, err = FormatYAML("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryJSON(t *testing.T) {
	src := `{"app":{"name":"demo","abis":["arm64-v8a","x86_64"]}}`

	got, err := QueryJSON(src, "app.name")
	require.NoError(t, err)
	assert.Equal(t, `"demo"`, got)

	got, err = QueryJSON(src, "app.abis.#")
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	_, err = QueryJSON(src, "app.version")
	assert.ErrorIs(t, err, ErrNoMatch)
	_, err = QueryJSON("{", "a")
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestQueryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"level":"debug"}`), 0o644))

	host := extension.NewHost()
	rec := &statusRecorder{}
	service.Provide[service.StatusBar](host.Services, rec, hostapi.Owner)
	activate(t, host)

	err := host.Commands.Execute(context.Background(), CommandQueryJSON, map[string]any{"path": path, "query": "level"})
	require.NoError(t, err)
	assert.Equal(t, []string{`level: "debug"`}, rec.messages)

	err = host.Commands.Execute(context.Background(), CommandQueryJSON, map[string]any{"path": path})
	assert.ErrorIs(t, err, hostapi.ErrMissingArgument)
}
