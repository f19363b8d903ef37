package lua

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds every call into Lua code.
const DefaultExecutionTimeout = 5 * time.Second

// State is one sandboxed Lua runtime. Modules are resolved only from the
// file system it was created with plus the host modules registered with
// WithHostModule.
//
// gopher-lua's LState is not goroutine-safe. Every entry point takes the
// State's mutex, so Lua callbacks may be invoked from any goroutine. A Lua
// function must not synchronously re-enter the same State from Go.
type State struct {
	L *lua.LState

	mu sync.Mutex

	name             string
	executionTimeout time.Duration
	hostModules      map[string]lua.LGFunction

	sandbox *Sandbox
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the timeout applied to each call into Lua.
// A non-positive value disables it.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.executionTimeout = d
	}
}

// WithHostModule makes a host-provided module available to require.
func WithHostModule(name string, loader lua.LGFunction) StateOption {
	return func(s *State) {
		s.hostModules[name] = loader
	}
}

// NewState creates a sandboxed Lua state whose require resolves modules
// from modules. name labels errors and chunk names.
func NewState(name string, modules fs.FS, opts ...StateOption) *State {
	state := &State{
		name:             name,
		executionTimeout: DefaultExecutionTimeout,
		hostModules:      make(map[string]lua.LGFunction),
	}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	state.L = L
	openSafeLibraries(L)

	state.sandbox = NewSandbox(L, modules, state.hostModules)
	state.sandbox.Install()
	return state
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// io, os and debug are never opened.
}

// Name returns the state label.
func (s *State) Name() string {
	return s.name
}

// RunFile executes the chunk at path inside the module file system and
// returns its first return value.
func (s *State) RunFile(path string) (lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil, ErrStateClosed
	}

	src, err := fs.ReadFile(s.sandbox.modules, path)
	if err != nil {
		return lua.LNil, fmt.Errorf("%s: %w", s.name, err)
	}

	fn, err := s.L.Load(bytes.NewReader(src), "@"+path)
	if err != nil {
		return lua.LNil, fmt.Errorf("%s: compile %s: %w", s.name, path, err)
	}

	results, err := s.callLocked(fn, 1)
	if err != nil {
		return lua.LNil, fmt.Errorf("%s: run %s: %w", s.name, path, err)
	}
	return results[0], nil
}

// DoString executes a Lua string.
func (s *State) DoString(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	fn, err := s.L.LoadString(code)
	if err != nil {
		return err
	}
	_, err = s.callLocked(fn, 0)
	return err
}

// Call calls fn with args and returns nret results.
func (s *State) Call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	return s.callLocked(fn, nret, args...)
}

// CallWith is Call with arguments built by args while the state lock is
// held, for arguments such as tables that must be created on the state.
func (s *State) CallWith(fn *lua.LFunction, nret int, args func(L *lua.LState) []lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	return s.callLocked(fn, nret, args(s.L)...)
}

// callLocked must be called with mu held.
func (s *State) callLocked(fn *lua.LFunction, nret int, args ...lua.LValue) (results []lua.LValue, err error) {
	if s.executionTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.executionTimeout)
		defer cancel()
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	stackTop := s.L.GetTop()
	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}
	if err := s.L.PCall(len(args), nret, nil); err != nil {
		s.L.SetTop(stackTop)
		if s.L.Context() != nil && s.L.Context().Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		}
		return nil, err
	}

	results = make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		results[i] = s.L.Get(stackTop + i + 1)
	}
	s.L.SetTop(stackTop)
	return results, nil
}

// With runs fn while holding the state lock. It is the way to read tables
// returned by Lua code.
func (s *State) With(fn func(L *lua.LState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return fn(s.L)
}

// Sandbox returns the sandbox installed in the state.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.L.Close()
	s.closed = true
	return nil
}
