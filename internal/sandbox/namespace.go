package sandbox

import (
	"fmt"
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"dungeon-skill-sandbox/internal/game"
)

// strippedGlobals is the loading and reflection surface removed from the
// base library after it is opened. The validator rejects most of these
// statically too; stripping them closes the dynamic paths (string keys,
// aliased locals) the static walk cannot see.
var strippedGlobals = []string{
	"load", "loadstring", "loadfile", "dofile",
	"getfenv", "setfenv", "getmetatable", "setmetatable",
	"rawget", "rawset", "rawequal", "rawlen",
	"collectgarbage", "module", "newproxy",
	"_G", "_printregs",
}

// newRestrictedState builds a fresh interpreter with only the safe
// libraries opened and the escape hatches removed. Print output goes to
// out. The state carries no io, os, debug, package or coroutine library
// at all; they are never opened.
func newRestrictedState(out io.Writer) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range strippedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.Get(i).String())
		}
		fmt.Fprintln(out, strings.Join(parts, "\t"))
		return 0
	}))

	// Imports are neutralized: the allowed modules are already globals, so
	// require just hands them back. Anything else is a plain runtime error.
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if _, ok := allowedModules[name]; ok {
			if v := L.GetGlobal(name); v != lua.LNil {
				L.Push(v)
				return 1
			}
		}
		L.RaiseError("module %q is not available in the sandbox", name)
		return 0
	}))

	return L
}

// bindGlobals injects the capability surface: the proxied game handle,
// the Direction constant table and the Pos constructor.
func bindGlobals(L *lua.LState, p *proxy) {
	L.SetGlobal(HandleGlobal, p.bind(L))

	dirs := L.NewTable()
	for _, d := range game.Directions {
		dirs.RawSetString(strings.ToUpper(string(d)), lua.LString(string(d)))
	}
	L.SetGlobal("Direction", dirs)

	L.SetGlobal("Pos", L.NewFunction(func(L *lua.LState) int {
		x := L.CheckInt(1)
		y := L.CheckInt(2)
		L.Push(positionToLua(L, game.Position{X: x, Y: y}))
		return 1
	}))
}
