package luaplugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds a single script load or call
const DefaultTimeout = 10 * time.Second

// Sandbox wraps a Lua state with only the safe standard libraries opened
type Sandbox struct {
	L       *lua.LState
	timeout time.Duration
	mu      sync.Mutex
}

// NewSandbox creates a sandboxed Lua environment. label identifies the
// script in log output.
func NewSandbox(label string, timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring", "require",
		"rawequal", "rawget", "rawset",
		"getmetatable", "setmetatable", "collectgarbage",
		"module", "getfenv", "setfenv", "newproxy",
	} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		slog.Info("lua plugin", "script", label, "message", L.CheckString(1))
		return 0
	}))

	return &Sandbox{L: L, timeout: timeout}
}

// Close shuts down the Lua state
func (s *Sandbox) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}

// Load executes the script source
func (s *Sandbox) Load(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	if err := s.L.DoString(source); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("script load timed out after %v", s.timeout)
		}
		return err
	}
	return nil
}

// Global returns a global value
func (s *Sandbox) Global(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.L.GetGlobal(name)
}

// Call invokes the global function name with args converted to Lua values
// and returns its first result converted back to Go. defined is false when
// the script has no such function.
func (s *Sandbox) Call(name string, args ...any) (ret any, defined bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn := s.L.GetGlobal(name)
	if fn == lua.LNil {
		return nil, false, nil
	}
	if _, ok := fn.(*lua.LFunction); !ok {
		return nil, true, fmt.Errorf("%s is not a function", name)
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = goToLua(s.L, arg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	err = s.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, luaArgs...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, true, fmt.Errorf("%s timed out after %v", name, s.timeout)
		}
		return nil, true, fmt.Errorf("%s failed: %w", name, err)
	}

	result := s.L.Get(-1)
	s.L.Pop(1)
	return luaToGo(result), true, nil
}
