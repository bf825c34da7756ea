package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ErrScriptTimeout is returned when a script exceeds its execution time limit.
var ErrScriptTimeout = errors.New("identity script exceeded execution time limit")

// DefaultScriptTimeout is the execution time limit per evaluation.
const DefaultScriptTimeout = 100 * time.Millisecond

// Script is a compiled Lua identity script. The script sees the global
// `claims` table and the helpers `get(name)` and `has(name)`, and returns the
// identity as a string. Returning nil or "" defers to the preference list.
//
// Each evaluation runs in a fresh state, so a Script is safe for concurrent use.
type Script struct {
	proto   *lua.FunctionProto
	timeout time.Duration
}

// CompileScript parses and compiles src. timeout <= 0 selects
// DefaultScriptTimeout.
func CompileScript(src string, timeout time.Duration) (*Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	fn, err := L.LoadString(src)
	if err != nil {
		return nil, fmt.Errorf("lua compile error: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &Script{proto: fn.Proto, timeout: timeout}, nil
}

// Evaluate runs the script against claims.
func (s *Script) Evaluate(claims map[string]any) (string, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	L.SetContext(ctx)

	openSafeLibs(L)

	L.SetGlobal("claims", mapToLTable(L, claims))
	L.SetGlobal("has", L.NewFunction(func(L *lua.LState) int {
		_, ok := claims[L.CheckString(1)]
		L.Push(lua.LBool(ok))
		return 1
	}))
	L.SetGlobal("get", L.NewFunction(func(L *lua.LState) int {
		val, ok := claims[L.CheckString(1)]
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(goToLua(L, val))
		return 1
	}))

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrScriptTimeout
		}
		return "", fmt.Errorf("identity script error: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	switch v := ret.(type) {
	case *lua.LNilType:
		return "", nil
	case lua.LString:
		return string(v), nil
	default:
		return "", fmt.Errorf("identity script returned %s, want string", ret.Type())
	}
}

// openSafeLibs opens only libraries that cannot reach the host.
func openSafeLibs(L *lua.LState) {
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(pair.fn))
		L.Push(lua.LString(pair.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func mapToLTable(L *lua.LState, m map[string]any) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		tbl.RawSetString(k, goToLua(L, v))
	}
	return tbl
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case map[string]any:
		return mapToLTable(L, val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, goToLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, lua.LString(item))
		}
		return tbl
	case nil:
		return lua.LNil
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
