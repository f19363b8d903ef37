// Package lua provides the sandboxed Lua runtime archive plugins run in.
//
// Each archive gets its own State. The State's require resolves modules from
// the archive's own file system ("a.b" loads "a/b.lua" or "a/b/init.lua")
// and from host modules registered with WithHostModule, never from disk.
// Two archives therefore cannot see each other's modules, while both see
// the same host module.
//
//	state := lua.NewState("git-tools.jar", zipReader,
//	    lua.WithHostModule("apkedit", hostModule),
//	    lua.WithExecutionTimeout(2*time.Second),
//	)
//	defer state.Close()
//
//	value, err := state.RunFile("plugin/main.lua")
//
// The sandbox removes dofile, loadfile, load and loadstring and never opens
// the io, os or debug libraries.
package lua
