package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/apkedit/internal/command"
	"github.com/dshills/apkedit/internal/extension"
	"github.com/dshills/apkedit/internal/plugin"
	plua "github.com/dshills/apkedit/internal/plugin/lua"
	"github.com/dshills/apkedit/internal/plugin/security"
)

// luaPlugin adapts the table returned by an implementation's main chunk:
//
//	return {
//	    id = "git",
//	    name = "Git",
//	    version = "1.0.0",
//	    activate = function(ctx) ... end,
//	    deactivate = function() ... end, -- optional
//	}
type luaPlugin struct {
	state      *plua.State
	perms      *security.PermissionChecker
	info       plugin.Info
	activate   *lua.LFunction
	deactivate *lua.LFunction
}

func newLuaPlugin(state *plua.State, impl Implementation, m *Manifest, perms *security.PermissionChecker) (*luaPlugin, error) {
	v, err := state.RunFile(impl.Main)
	if err != nil {
		return nil, err
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: %w", impl.Main, plua.ErrNotTable)
	}

	p := &luaPlugin{state: state, perms: perms}
	err = state.With(func(*lua.LState) error {
		p.info = plugin.Info{
			ID:          plua.StringOr(tbl, "id", ""),
			DisplayName: plua.StringOr(tbl, "name", ""),
			Version:     plua.StringOr(tbl, "version", m.Version),
		}
		if p.activate, ok = plua.Func(tbl, "activate"); !ok {
			return fmt.Errorf("%s: activate is not a function", impl.Main)
		}
		p.deactivate, _ = plua.Func(tbl, "deactivate")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.info.DisplayName == "" {
		p.info.DisplayName = p.info.ID
	}
	return p, nil
}

// Info implements plugin.Plugin.
func (p *luaPlugin) Info() plugin.Info {
	return p.info
}

// Activate implements plugin.Plugin by calling activate(ctx).
func (p *luaPlugin) Activate(ctx *plugin.Context) error {
	_, err := p.state.CallWith(p.activate, 0, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{newContextAPI(p.state, ctx, p.perms).table(L)}
	})
	return err
}

// Deactivate implements plugin.Deactivator.
func (p *luaPlugin) Deactivate() error {
	if p.deactivate == nil {
		return nil
	}
	_, err := p.state.Call(p.deactivate, 0)
	return err
}

// contextAPI exposes a plugin.Context to Lua as the ctx table. Functions
// accept both ctx.fn(...) and ctx:fn(...) call syntax.
type contextAPI struct {
	state *plua.State
	ctx   *plugin.Context
	perms *security.PermissionChecker
	self  *lua.LTable
}

func newContextAPI(state *plua.State, ctx *plugin.Context, perms *security.PermissionChecker) *contextAPI {
	return &contextAPI{state: state, ctx: ctx, perms: perms}
}

func (a *contextAPI) table(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	a.self = t

	t.RawSetString("id", lua.LString(a.ctx.ID()))
	t.RawSetString("log", L.NewFunction(a.log))

	guarded := map[string]struct {
		cap security.Capability
		fn  lua.LGFunction
	}{
		"register_file_type":         {security.CapabilityFileType, a.registerFileType},
		"register_highlighter":       {security.CapabilityFileType, a.registerHighlighter},
		"register_formatter":         {security.CapabilityFormat, a.registerFormatter},
		"register_file_handler":      {security.CapabilityFileHandler, a.registerFileHandler},
		"register_toolbar_item":      {security.CapabilityUI, a.registerItem(a.ctx.RegisterToolbarItem)},
		"register_activity_bar_item": {security.CapabilityUI, a.registerItem(a.ctx.RegisterActivityBarItem)},
		"register_editor_menu_item":  {security.CapabilityUI, a.registerItem(a.ctx.RegisterEditorMenuItem)},
		"register_command":           {security.CapabilityCommand, a.registerCommand},
		"bind_shortcut":              {security.CapabilityCommand, a.bindShortcut},
	}
	for name, g := range guarded {
		t.RawSetString(name, L.NewFunction(a.guard(name, g.cap, g.fn)))
	}
	return t
}

// guard raises a Lua error when the archive lacks cap.
func (a *contextAPI) guard(name string, cap security.Capability, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if err := a.perms.CheckCapability(cap, name); err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		return fn(L)
	}
}

// arg returns the stack index of the n-th argument.
func (a *contextAPI) arg(L *lua.LState, n int) int {
	if L.Get(1) == lua.LValue(a.self) {
		return n + 1
	}
	return n
}

func (a *contextAPI) registerFileType(L *lua.LState) int {
	pos := a.arg(L, 1)
	t := L.CheckTable(pos)

	name := plua.StringOr(t, "name", "")
	exts := plua.Strings(t, "extensions")
	if name == "" || len(exts) == 0 {
		L.ArgError(pos, "file type needs a name and extensions")
		return 0
	}

	a.ctx.RegisterFileType(extension.BasicFileType{
		TypeName: name,
		Exts:     exts,
		IconRef:  plua.StringOr(t, "icon", ""),
		Binary:   plua.Bool(t, "binary"),
		Lang:     extension.Language(plua.StringOr(t, "language", string(extension.LangPlainText))),
	})
	return 0
}

func (a *contextAPI) registerHighlighter(L *lua.LState) int {
	pos := a.arg(L, 1)
	t := L.CheckTable(pos)

	lang := plua.StringOr(t, "language", "")
	if lang == "" {
		L.ArgError(pos, "highlighter needs a language")
		return 0
	}

	a.ctx.RegisterSyntaxHighlighter(extension.Language(lang), extension.Highlighter{
		StyleKey:        plua.StringOr(t, "style", lang),
		Tokenizer:       plua.StringOr(t, "tokenizer", lang),
		SupportsFolding: plua.Bool(t, "folding"),
		BracketMatching: plua.Bool(t, "brackets"),
	})
	return 0
}

func (a *contextAPI) registerFormatter(L *lua.LState) int {
	lang := L.CheckString(a.arg(L, 1))
	fn := L.CheckFunction(a.arg(L, 2))

	a.ctx.RegisterFormatter(extension.Language(lang), &luaFormatter{state: a.state, fn: fn})
	return 0
}

func (a *contextAPI) registerFileHandler(L *lua.LState) int {
	pos := a.arg(L, 1)
	t := L.CheckTable(pos)

	can, ok := plua.Func(t, "can_handle")
	if !ok {
		L.ArgError(pos, "file handler needs can_handle")
		return 0
	}
	open, ok := plua.Func(t, "open")
	if !ok {
		L.ArgError(pos, "file handler needs open")
		return 0
	}

	a.ctx.RegisterFileHandler(&luaHandler{
		state:  a.state,
		can:    can,
		open:   open,
		logger: a.ctx.Logger(),
	})
	return 0
}

func (a *contextAPI) registerItem(register func(extension.Contribution)) lua.LGFunction {
	return func(L *lua.LState) int {
		pos := a.arg(L, 1)
		t := L.CheckTable(pos)

		id := plua.StringOr(t, "id", "")
		if id == "" {
			L.ArgError(pos, "item needs an id")
			return 0
		}
		order, _ := plua.Int(t, "order")

		register(extension.Contribution{
			ID:      id,
			Title:   plua.StringOr(t, "title", id),
			Icon:    plua.StringOr(t, "icon", ""),
			Command: plua.StringOr(t, "command", ""),
			Group:   plua.StringOr(t, "group", ""),
			Order:   order,
		})
		return 0
	}
}

func (a *contextAPI) registerCommand(L *lua.LState) int {
	pos := a.arg(L, 1)
	t := L.CheckTable(pos)

	run, ok := plua.Func(t, "run")
	if !ok {
		L.ArgError(pos, "command needs a run function")
		return 0
	}

	cmd := command.Command{
		ID:          plua.StringOr(t, "id", ""),
		Title:       plua.StringOr(t, "title", ""),
		Description: plua.StringOr(t, "description", ""),
		Category:    plua.StringOr(t, "category", ""),
		Handler:     luaCommandHandler(a.state, run),
	}
	if err := a.ctx.RegisterCommand(cmd); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (a *contextAPI) bindShortcut(L *lua.LState) int {
	keys := L.CheckString(a.arg(L, 1))
	commandID := L.CheckString(a.arg(L, 2))

	if err := a.ctx.BindShortcut(keys, commandID); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// log is ctx.log(level, message [, fields]).
func (a *contextAPI) log(L *lua.LState) int {
	levelName := L.CheckString(a.arg(L, 1))
	msg := L.CheckString(a.arg(L, 2))

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	entry := a.ctx.Logger()
	if t := L.OptTable(a.arg(L, 3), nil); t != nil {
		if fields, ok := plua.NewBridge(L).ToGoValue(t).(map[string]any); ok {
			entry = entry.WithFields(logrus.Fields(fields))
		}
	}
	entry.Log(level, msg)
	return 0
}

// luaFormatter calls fn(src) which returns the formatted text, or nil and
// an error message.
type luaFormatter struct {
	state *plua.State
	fn    *lua.LFunction
}

func (f *luaFormatter) Format(src string) (string, error) {
	results, err := f.state.Call(f.fn, 2, lua.LString(src))
	if err != nil {
		return "", err
	}
	if results[1] != lua.LNil {
		return "", errors.New(results[1].String())
	}
	out, ok := results[0].(lua.LString)
	if !ok {
		return "", fmt.Errorf("formatter returned %s, want string", results[0].Type())
	}
	return string(out), nil
}

// luaHandler is a file handler backed by can_handle(path) and open(path).
type luaHandler struct {
	state  *plua.State
	can    *lua.LFunction
	open   *lua.LFunction
	logger *logrus.Entry
}

func (h *luaHandler) CanHandle(path string) bool {
	return h.call(h.can, path)
}

func (h *luaHandler) HandleOpenFile(path string) bool {
	return h.call(h.open, path)
}

func (h *luaHandler) call(fn *lua.LFunction, path string) bool {
	results, err := h.state.Call(fn, 1, lua.LString(path))
	if err != nil {
		h.logger.WithError(err).WithField("path", path).Warn("file handler failed")
		return false
	}
	return lua.LVAsBool(results[0])
}

// luaCommandHandler adapts run(args) to a command handler. run reports
// failure by raising an error or returning nil and a message.
func luaCommandHandler(state *plua.State, run *lua.LFunction) command.Handler {
	return func(ctx context.Context, args map[string]any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		results, err := state.CallWith(run, 2, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{plua.NewBridge(L).MapToTable(args)}
		})
		if err != nil {
			return err
		}
		if results[1] != lua.LNil {
			return errors.New(results[1].String())
		}
		return nil
	}
}
