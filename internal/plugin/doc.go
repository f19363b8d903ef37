// Package plugin provides the plugin framework for apkedit.
//
// Plugins extend the editor with file types, syntax highlighters,
// formatters, file handlers, toolbar/activity bar/editor menu items,
// commands, shortcuts and typed services. They come from two places:
//
//   - Embedded plugins are compiled into the binary and made visible with
//     RegisterEmbedded from a package init function.
//   - Archive plugins are zip files dropped into the plugin directory; see
//     package archive.
//
// # Lifecycle
//
// A Loader discovers plugins without activating them. The Manager takes the
// discovered set, binds each plugin to a Context tagged with its id and
// drives the state machine:
//
//	Discovered --Activate--> Active --Deactivate--> Inactive --Activate--> Active
//
// Activate and Deactivate are idempotent. A plugin whose Activate fails or
// panics stays non-active and does not stop the others. Deactivate runs the
// plugin's own hook (if any) and then sweeps every registry for entries the
// plugin owns, whether or not the hook succeeded.
//
// # Isolation boundaries
//
// Archive plugins share a reference-counted Boundary per archive. The
// boundary survives deactivation so the plugin can be re-activated, and is
// closed when the last plugin loaded from it is unloaded. An archive that
// yields no plugins is closed by its loader before Load returns.
//
// # Quick Start
//
//	host := extension.NewHost()
//	mgr := plugin.NewManager(host, plugin.WithLogger(logger))
//
//	loader := plugin.NewCompositeLoader(logger,
//	    plugin.NewEmbeddedLoader(logger),
//	    archive.NewLoader(dir, archive.WithLogger(logger)),
//	)
//	if err := mgr.LoadPlugins(ctx, loader); err != nil {
//	    return err // duplicate ids
//	}
//	if err := mgr.ActivateAll(); err != nil {
//	    logger.WithError(err).Warn("some plugins failed to activate")
//	}
//
// # Writing an embedded plugin
//
//	type smaliPlugin struct{}
//
//	func (smaliPlugin) Info() plugin.Info {
//	    return plugin.Info{ID: "smali", DisplayName: "Smali", Version: "1.0.0"}
//	}
//
//	func (smaliPlugin) Activate(ctx *plugin.Context) error {
//	    ctx.RegisterFileType(extension.BasicFileType{
//	        TypeName: "smali", Exts: []string{".smali"}, Lang: extension.LangSmali,
//	    })
//	    return nil
//	}
//
//	func init() {
//	    plugin.RegisterEmbedded("smali", func() (plugin.Plugin, error) {
//	        return smaliPlugin{}, nil
//	    })
//	}
package plugin
