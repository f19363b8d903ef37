// Package data is the bundled plugin for structured text resources: JSON,
// YAML and XML file types with highlighters, JSON and YAML formatters, and
// a JSON query command.
package data

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
)

// Implementation is the embedded implementation name.
const Implementation = "bundled.data"

// CommandQueryJSON evaluates a gjson path against a JSON file.
const CommandQueryJSON = "json.query"

// File types contributed by the plugin.
var (
	JSONFileType = extension.BasicFileType{
		TypeName: "JSON",
		Exts:     []string{".json"},
		IconRef:  "json",
		Lang:     extension.LangJSON,
	}
	YAMLFileType = extension.BasicFileType{
		TypeName: "YAML",
		Exts:     []string{".yaml", ".yml"},
		IconRef:  "yaml",
		Lang:     extension.LangYAML,
	}
	XMLFileType = extension.BasicFileType{
		TypeName: "XML",
		Exts:     []string{".xml"},
		IconRef:  "xml",
		Lang:     extension.LangXML,
	}
)

func init() {
	plugin.RegisterEmbedded(Implementation, func() (plugin.Plugin, error) {
		return New(), nil
	})
}

// Plugin contributes JSON, YAML and XML support.
type Plugin struct{}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{ID: "data", DisplayName: "JSON, YAML and XML", Version: "1.0.0"}
}

// Activate implements plugin.Plugin.
func (p *Plugin) Activate(ctx *plugin.Context) error {
	for _, ft := range []extension.BasicFileType{JSONFileType, YAMLFileType, XMLFileType} {
		ctx.RegisterFileType(ft)
		ctx.RegisterSyntaxHighlighter(ft.Lang, extension.Highlighter{
			StyleKey:        string(ft.Lang),
			Tokenizer:       string(ft.Lang),
			SupportsFolding: true,
			BracketMatching: ft.Lang != extension.LangYAML,
		})
	}
	ctx.RegisterFormatter(extension.LangJSON, extension.FormatterFunc(FormatJSON))
	ctx.RegisterFormatter(extension.LangYAML, extension.FormatterFunc(FormatYAML))

	return ctx.RegisterCommand(command.Command{
		ID:          CommandQueryJSON,
		Title:       "Query JSON",
		Description: "Evaluate a path expression against a JSON file",
		Category:    "Data",
		Handler: func(_ context.Context, args map[string]any) error {
			path, err := hostapi.StringArg(args, "path")
			if err != nil {
				return err
			}
			query, err := hostapi.StringArg(args, "query")
			if err != nil {
				return err
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			result, err := QueryJSON(string(src), query)
			if err != nil {
				return err
			}
			hostapi.Status(ctx, fmt.Sprintf("%s: %s", query, result))
			return nil
		},
	})
}

// QueryJSON evaluates the gjson path query against src and returns the raw
// JSON of the result.
func QueryJSON(src, query string) (string, error) {
	if !gjson.Valid(src) {
		return "", ErrInvalidJSON
	}
	res := gjson.Get(src, query)
	if !res.Exists() {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, query)
	}
	return res.Raw, nil
}
