package lua

import (
	"bytes"
	"errors"
	"io/fs"
	"path"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// safeModules are the gopher-lua built-ins require may return.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// Sandbox restricts a Lua state to its own module file system.
type Sandbox struct {
	L *lua.LState

	modules     fs.FS
	hostModules map[string]lua.LGFunction

	// loading guards against require cycles.
	loading map[string]bool
}

// NewSandbox creates a sandbox for L resolving modules from modules.
func NewSandbox(L *lua.LState, modules fs.FS, hostModules map[string]lua.LGFunction) *Sandbox {
	if modules == nil {
		modules = emptyFS{}
	}
	return &Sandbox{
		L:           L,
		modules:     modules,
		hostModules: hostModules,
		loading:     make(map[string]bool),
	}
}

// Install removes the loaders that could reach outside the sandbox and
// replaces require.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	s.L.SetGlobal("require", s.L.NewFunction(s.require))
}

// ModulePaths returns the candidate files for a module name: "a.b" maps to
// "a/b.lua" and then "a/b/init.lua".
func ModulePaths(name string) []string {
	base := strings.ReplaceAll(name, ".", "/")
	return []string{base + ".lua", path.Join(base, "init.lua")}
}

func (s *Sandbox) loadedTable() *lua.LTable {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		pkg = s.L.NewTable()
		s.L.SetGlobal("package", pkg)
	}
	loaded, ok := s.L.GetField(pkg, "loaded").(*lua.LTable)
	if !ok {
		loaded = s.L.NewTable()
		s.L.SetField(pkg, "loaded", loaded)
	}
	return loaded
}

// require resolves, in order: already loaded modules, safe built-ins, host
// modules, then files inside the module file system.
func (s *Sandbox) require(L *lua.LState) int {
	name := L.CheckString(1)
	loaded := s.loadedTable()

	if v := loaded.RawGetString(name); v != lua.LNil {
		L.Push(v)
		return 1
	}

	if safeModules[name] {
		L.Push(L.GetGlobal(name))
		return 1
	}

	if s.loading[name] {
		L.RaiseError("cyclic require of module %q", name)
		return 0
	}

	var fn *lua.LFunction
	if loader, ok := s.hostModules[name]; ok {
		fn = L.NewFunction(loader)
	} else {
		src, file, err := s.readModule(name)
		if err != nil {
			L.RaiseError("module %q not found: %v", name, err)
			return 0
		}
		fn, err = L.Load(bytes.NewReader(src), "@"+file)
		if err != nil {
			L.RaiseError("module %q: %v", name, err)
			return 0
		}
	}

	s.loading[name] = true
	defer delete(s.loading, name)

	L.Push(fn)
	L.Push(lua.LString(name))
	L.Call(1, 1)

	result := L.Get(-1)
	L.Pop(1)
	if result == lua.LNil {
		result = lua.LTrue
	}
	loaded.RawSetString(name, result)
	L.Push(result)
	return 1
}

func (s *Sandbox) readModule(name string) ([]byte, string, error) {
	var errs []error
	for _, p := range ModulePaths(name) {
		src, err := fs.ReadFile(s.modules, p)
		if err == nil {
			return src, p, nil
		}
		errs = append(errs, err)
	}
	return nil, "", errors.Join(errs...)
}

type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
