// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package script runs Lua-backed behavior loops in a sandboxed runtime.
// Scripts see only the narrow entity/clock surface; engine internals stay
// out of reach.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package script

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/holosim/internal/geom"
	"github.com/holomush/holosim/internal/sim"
)

// loopFunction is the global a script must define.
const loopFunction = "loop"

// safeLibrary is a Lua library safe to load in the sandbox.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// Safe: base, table, string, math. Blocked: os, io, debug, package.
func safeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions lists base library functions blocked for filesystem
// access.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// LoopScript is a compiled Lua behavior loop bound to one entity. The state
// is not goroutine safe; the sequential frame driver is its only caller.
type LoopScript struct {
	state *lua.LState
	name  string
}

// NewLoopScript compiles source in a fresh sandboxed state. The chunk must
// define a global function `loop(entity, clock)`.
func NewLoopScript(name, source string) (*LoopScript, error) {
	L, err := newSandboxedState()
	if err != nil {
		return nil, err
	}

	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, oops.Code("SCRIPT_COMPILE_FAILED").With("script", name).Wrap(err)
	}
	if L.GetGlobal(loopFunction).Type() != lua.LTFunction {
		L.Close()
		return nil, oops.Code("SCRIPT_COMPILE_FAILED").
			With("script", name).
			Errorf("script must define a global %q function", loopFunction)
	}

	return &LoopScript{state: L, name: name}, nil
}

// Close releases the Lua state.
func (s *LoopScript) Close() {
	s.state.Close()
}

// Loop returns the sim.Loop invoking the script's loop function once per
// tick. Script errors wrap as SCRIPT_LOOP_FAILED and propagate like any
// other loop error.
func (s *LoopScript) Loop() sim.Loop {
	return func(_ context.Context, ent *sim.Entity, clk sim.Clock) error {
		fn := s.state.GetGlobal(loopFunction)
		err := s.state.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, s.entityTable(ent, clk), s.clockTable(clk))
		if err != nil {
			return oops.Code("SCRIPT_LOOP_FAILED").
				With("script", s.name).
				With("entity_id", ent.ID().String()).
				Wrap(err)
		}
		return nil
	}
}

func newSandboxedState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range safeLibraries() {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.Code("SCRIPT_SANDBOX_FAILED").With("library", lib.name).Wrap(err)
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}

	return L, nil
}

// entityTable builds the per-call entity surface handed to the script.
func (s *LoopScript) entityTable(ent *sim.Entity, clk sim.Clock) *lua.LTable {
	L := s.state
	t := L.NewTable()

	L.SetField(t, "id", lua.LString(ent.ID().String()))

	L.SetField(t, "location", L.NewFunction(func(L *lua.LState) int {
		return pushTriple(L, ent.Location().X, ent.Location().Y, ent.Location().Z)
	}))
	L.SetField(t, "orientation", L.NewFunction(func(L *lua.LState) int {
		o := ent.Orientation()
		return pushTriple(L, o.X, o.Y, o.Z)
	}))
	L.SetField(t, "setLocation", L.NewFunction(func(L *lua.LState) int {
		ent.SetLocation(clk, geom.Vector{
			X: float64(L.CheckNumber(1)),
			Y: float64(L.CheckNumber(2)),
			Z: float64(L.CheckNumber(3)),
		})
		return 0
	}))
	L.SetField(t, "setOrientation", L.NewFunction(func(L *lua.LState) int {
		ent.SetOrientation(clk, geom.Orientation{
			X: float64(L.CheckNumber(1)),
			Y: float64(L.CheckNumber(2)),
			Z: float64(L.CheckNumber(3)),
		})
		return 0
	}))
	L.SetField(t, "attr", L.NewFunction(func(L *lua.LState) int {
		v, ok := ent.Attribute(L.CheckString(1))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(v))
		return 1
	}))
	L.SetField(t, "setAttr", L.NewFunction(func(L *lua.LState) int {
		ent.SetAttribute(clk, L.CheckString(1), float64(L.CheckNumber(2)))
		return 0
	}))
	L.SetField(t, "sleep", L.NewFunction(func(L *lua.LState) int {
		ent.Sleep(clk, uint64(L.CheckNumber(1)))
		return 0
	}))
	L.SetField(t, "emit", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		args := make([]any, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			args = append(args, luaToGo(L.Get(i)))
		}
		ent.QueueEvent(name, args...)
		return 0
	}))

	return t
}

func (s *LoopScript) clockTable(clk sim.Clock) *lua.LTable {
	L := s.state
	t := L.NewTable()
	L.SetField(t, "time", lua.LNumber(clk.Time()))
	L.SetField(t, "previousTime", lua.LNumber(clk.PreviousTime()))
	return t
}

func pushTriple(L *lua.LState, x, y, z float64) int {
	L.Push(lua.LNumber(x))
	L.Push(lua.LNumber(y))
	L.Push(lua.LNumber(z))
	return 3
}

func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	default:
		return val.String()
	}
}
