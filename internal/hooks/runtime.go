// Package hooks runs an optional user Lua script at fixed points of the flow.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ErrStuck is returned when the script calls stuck().
var ErrStuck = errors.New("hook reported stuck")

// callTimeout bounds a single hook call.
const callTimeout = 30 * time.Second

// Info is exposed to scripts through context().
type Info struct {
	ProjectDir string
	Root       string
	Input      string
}

// Runtime holds a loaded hook script. A nil *Runtime is valid and behaves as
// an empty script. It is not safe for concurrent use.
type Runtime struct {
	L         *lua.LState
	ctx       context.Context
	info      Info
	iteration int
	logs      []string

	stuckReason string
	isStuck     bool
}

// Load reads and runs the script at path so it can define its hook
// functions. A missing file yields a nil Runtime and no error.
func Load(ctx context.Context, path string, info Info) (*Runtime, error) {
	if path == "" {
		return nil, nil
	}
	script, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hooks script: %w", err)
	}

	r := &Runtime{ctx: ctx, info: info}
	r.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	r.openSafeLibs()
	r.registerAPI()

	if err := r.guard(func() error { return r.L.DoString(string(script)) }); err != nil {
		r.L.Close()
		return nil, fmt.Errorf("failed to load hooks script: %w", err)
	}
	return r, nil
}

// Close releases the Lua state.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	r.L.Close()
}

// openSafeLibs loads base, table, string and math without file loading,
// printing or randomness.
func (r *Runtime) openSafeLibs() {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		r.L.Push(r.L.NewFunction(lib.fn))
		r.L.Push(lua.LString(lib.name))
		r.L.Call(1, 0)
	}

	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "print"} {
		r.L.SetGlobal(name, lua.LNil)
	}
	if tbl, ok := r.L.GetGlobal("math").(*lua.LTable); ok {
		r.L.SetField(tbl, "random", lua.LNil)
		r.L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (r *Runtime) registerAPI() {
	r.L.SetGlobal("log", r.L.NewFunction(r.luaLog))
	r.L.SetGlobal("context", r.L.NewFunction(r.luaContext))
	r.L.SetGlobal("stuck", r.L.NewFunction(r.luaStuck))
}

// guard runs fn with a per-call deadline tied to the runtime context.
func (r *Runtime) guard(fn func() error) error {
	parent := r.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, callTimeout)
	defer cancel()
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()
	return fn()
}

// call invokes the global function name if the script defines it. The second
// return value reports whether it exists.
func (r *Runtime) call(name string, args ...lua.LValue) (lua.LValue, bool, error) {
	fn, ok := r.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return lua.LNil, false, nil
	}
	err := r.guard(func() error {
		return r.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if r.isStuck {
		return lua.LNil, true, fmt.Errorf("%w: %s", ErrStuck, r.stuckReason)
	}
	if err != nil {
		return lua.LNil, true, fmt.Errorf("%s hook failed: %w", name, err)
	}
	ret := r.L.Get(-1)
	r.L.Pop(1)
	return ret, true, nil
}

// TaskInstructions returns extra execution instructions for the task file
// name, or "" when the hook is absent or returns nothing.
func (r *Runtime) TaskInstructions(name string) (string, error) {
	if r == nil {
		return "", nil
	}
	ret, ok, err := r.call("task_instructions", lua.LString(name))
	if err != nil || !ok || ret == lua.LNil {
		return "", err
	}
	if s, isStr := ret.(lua.LString); isStr {
		return string(s), nil
	}
	return "", fmt.Errorf("task_instructions must return a string, got %s", ret.Type())
}

// AfterCycle reports whether the flow should run another cycle. Only an
// explicit false stops it.
func (r *Runtime) AfterCycle(iteration, pending int) (bool, error) {
	if r == nil {
		return true, nil
	}
	r.iteration = iteration
	ret, ok, err := r.call("after_cycle", lua.LNumber(iteration), lua.LNumber(pending))
	if err != nil {
		return !errors.Is(err, ErrStuck), err
	}
	if !ok {
		return true, nil
	}
	return ret != lua.LFalse, nil
}

// SetIteration updates the iteration reported by context().
func (r *Runtime) SetIteration(n int) {
	if r != nil {
		r.iteration = n
	}
}

// DrainLogs returns and clears messages passed to log().
func (r *Runtime) DrainLogs() []string {
	if r == nil {
		return nil
	}
	logs := r.logs
	r.logs = nil
	return logs
}

// luaLog implements log(message).
func (r *Runtime) luaLog(L *lua.LState) int {
	r.logs = append(r.logs, L.CheckString(1))
	return 0
}

// luaContext implements context().
func (r *Runtime) luaContext(L *lua.LState) int {
	tbl := L.NewTable()
	L.SetField(tbl, "project_dir", lua.LString(r.info.ProjectDir))
	L.SetField(tbl, "root", lua.LString(r.info.Root))
	L.SetField(tbl, "input", lua.LString(r.info.Input))
	L.SetField(tbl, "iteration", lua.LNumber(r.iteration))
	L.Push(tbl)
	return 1
}

// luaStuck implements stuck(reason?). It raises to unwind the script.
func (r *Runtime) luaStuck(L *lua.LState) int {
	r.stuckReason = L.OptString(1, "workflow stuck")
	r.isStuck = true
	L.RaiseError("stuck: %s", r.stuckReason)
	return 0
}
