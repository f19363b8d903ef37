// Package smali is the bundled plugin for Dalvik assembly sources: the
// .smali file type, its highlighter and formatter, and an assemble command
// backed by the smali tool.
package smali

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/tool"
)

// Implementation is the embedded implementation name.
const Implementation = "bundled.smali"

// CommandAssemble assembles a directory of smali sources into a dex file.
const CommandAssemble = "smali.assemble"

// FileType is the .smali file type.
var FileType = extension.BasicFileType{
	TypeName: "Smali",
	Exts:     []string{".smali"},
	IconRef:  "smali",
	Lang:     extension.LangSmali,
}

// Highlighter is the smali highlighter.
var Highlighter = extension.Highlighter{
	StyleKey:        "smali",
	Tokenizer:       "smali",
	SupportsFolding: true,
	BracketMatching: true,
}

func init() {
	plugin.RegisterEmbedded(Implementation, func() (plugin.Plugin, error) {
		return New(), nil
	})
}

// Plugin contributes smali support.
type Plugin struct{}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{ID: "smali", DisplayName: "Smali", Version: "1.0.0"}
}

// Activate implements plugin.Plugin.
func (p *Plugin) Activate(ctx *plugin.Context) error {
	ctx.RegisterFileType(FileType)
	ctx.RegisterSyntaxHighlighter(extension.LangSmali, Highlighter)
	ctx.RegisterFormatter(extension.LangSmali, extension.FormatterFunc(Format))

	assembler := tool.NewSmali(hostapi.Runner(ctx))
	err := ctx.RegisterCommand(command.Command{
		ID:          CommandAssemble,
		Title:       "Assemble Smali",
		Description: "Assemble a smali source directory into a dex file",
		Category:    "Smali",
		Handler: func(c context.Context, args map[string]any) error {
			src, err := hostapi.StringArg(args, "dir")
			if err != nil {
				return err
			}
			out := hostapi.StringArgOr(args, "out", filepath.Join(src, "classes.dex"))

			res := assembler.Assemble(c, src, out, nil)
			if err := res.Err(); err != nil {
				hostapi.Status(ctx, fmt.Sprintf("smali: assemble failed: %v", err))
				return err
			}
			hostapi.Status(ctx, "smali: wrote "+out)
			return nil
		},
	})
	if err != nil {
		return err
	}

	ctx.RegisterEditorMenuItem(extension.Contribution{
		ID:      CommandAssemble,
		Title:   "Assemble Smali",
		Command: CommandAssemble,
		Group:   "build",
	})
	return nil
}
