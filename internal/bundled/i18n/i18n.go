// Package i18n is the bundled language pack plugin. It provides the
// Translator service from the YAML message catalogs compiled into the
// program.
package i18n

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/apkedit/internal/bundled/hostapi"
	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/plugin"
	"github.com/dshills/apkedit/internal/service"
)

// Implementation is the embedded implementation name.
const Implementation = "bundled.i18n"

// CommandListLocales shows the available locales on the status bar.
const CommandListLocales = "i18n.locales"

func init() {
	plugin.RegisterEmbedded(Implementation, func() (plugin.Plugin, error) {
		return New()
	})
}

// Plugin provides translations.
type Plugin struct {
	catalogs *Catalogs
}

// New loads the bundled catalogs.
func New() (*Plugin, error) {
	c, err := Bundled()
	if err != nil {
		return nil, err
	}
	return &Plugin{catalogs: c}, nil
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{ID: "i18n", DisplayName: "Language Packs", Version: "1.0.0"}
}

// Activate implements plugin.Plugin.
func (p *Plugin) Activate(ctx *plugin.Context) error {
	plugin.ProvideService[service.Translator](ctx, p.catalogs)

	return ctx.RegisterCommand(command.Command{
		ID:       CommandListLocales,
		Title:    "Show Available Languages",
		Category: "Preferences",
		Handler: func(context.Context, map[string]any) error {
			hostapi.Status(ctx, fmt.Sprintf("languages: %s", strings.Join(p.catalogs.Locales(), ", ")))
			return nil
		},
	})
}
