package sandbox

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"dungeon-skill-sandbox/internal/game"
)

// toLua converts a submitted Go parameter value into a Lua value.
// Unsupported types degrade to their string form rather than failing the
// whole invocation.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		t := L.NewTable()
		for _, e := range x {
			t.Append(toLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range x {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	case game.Position:
		return positionToLua(L, x)
	default:
		return lua.LString(fmt.Sprintf("%v", x))
	}
}

// fromLua converts a fragment's return value into a plain Go value for
// the result payload. Nesting is capped to keep cyclic tables from
// recursing forever.
func fromLua(v lua.LValue) any {
	return fromLuaDepth(v, 0)
}

const maxConvertDepth = 8

func fromLuaDepth(v lua.LValue, depth int) any {
	if depth > maxConvertDepth {
		return v.String()
	}
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := x.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, fromLuaDepth(x.RawGetInt(i), depth+1))
			}
			return arr
		}
		m := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			m[k.String()] = fromLuaDepth(val, depth+1)
		})
		return m
	case *lua.LUserData:
		return fmt.Sprintf("%v", x.Value)
	default:
		return v.String()
	}
}

func positionToLua(L *lua.LState, p game.Position) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("x", lua.LNumber(p.X))
	t.RawSetString("y", lua.LNumber(p.Y))
	return t
}

func stringsToLua(L *lua.LState, ss []string) *lua.LTable {
	t := L.NewTable()
	for _, s := range ss {
		t.Append(lua.LString(s))
	}
	return t
}

func statsToLua(L *lua.LState, s game.Stats) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("hp", lua.LNumber(s.HP))
	t.RawSetString("max_hp", lua.LNumber(s.MaxHP))
	t.RawSetString("power", lua.LNumber(s.Power))
	t.RawSetString("max_power", lua.LNumber(s.MaxPower))
	t.RawSetString("armor_class", lua.LNumber(s.ArmorClass))
	t.RawSetString("level", lua.LNumber(s.Level))
	t.RawSetString("gold", lua.LNumber(s.Gold))
	t.RawSetString("hunger", lua.LString(s.Hunger))
	t.RawSetString("dungeon_depth", lua.LNumber(s.DungeonDepth))
	t.RawSetString("turn", lua.LNumber(s.Turn))
	t.RawSetString("position", positionToLua(L, s.Position))
	return t
}

func monsterToLua(L *lua.LState, m game.Monster) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("name", lua.LString(m.Name))
	t.RawSetString("char", lua.LString(m.Char))
	t.RawSetString("position", positionToLua(L, m.Position))
	t.RawSetString("peaceful", lua.LBool(m.Peaceful))
	t.RawSetString("tame", lua.LBool(m.Tame))
	t.RawSetString("hostile", lua.LBool(m.Hostile()))
	return t
}

func itemToLua(L *lua.LState, it game.Item) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("slot", lua.LString(it.Slot))
	t.RawSetString("name", lua.LString(it.Name))
	t.RawSetString("class", lua.LString(it.Class))
	t.RawSetString("quantity", lua.LNumber(it.Quantity))
	if it.Position != nil {
		t.RawSetString("position", positionToLua(L, *it.Position))
	}
	return t
}

// actionResultToLua renders an action outcome for the fragment. The
// translated error replaces the raw one so the agent sees the hint.
func actionResultToLua(L *lua.LState, r game.ActionResult, translatedErr string) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("success", lua.LBool(r.Success))
	if len(r.Messages) > 0 {
		t.RawSetString("messages", stringsToLua(L, r.Messages))
	}
	if translatedErr != "" {
		t.RawSetString("error", lua.LString(translatedErr))
	}
	t.RawSetString("turn_elapsed", lua.LBool(r.TurnElapsed))
	t.RawSetString("state_changed", lua.LBool(r.StateChanged))
	return t
}

func exploreResultToLua(L *lua.LState, r game.ExploreResult) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("success", lua.LBool(r.Success()))
	t.RawSetString("stop_reason", lua.LString(r.StopReason))
	t.RawSetString("steps_taken", lua.LNumber(r.StepsTaken))
	t.RawSetString("turns_elapsed", lua.LNumber(r.TurnsElapsed))
	t.RawSetString("position", positionToLua(L, r.Position))
	if r.Message != "" {
		t.RawSetString("message", lua.LString(r.Message))
	}
	if len(r.Suggestions) > 0 {
		t.RawSetString("suggestions", stringsToLua(L, r.Suggestions))
	}
	if r.ClosedDoors > 0 {
		t.RawSetString("closed_doors", lua.LNumber(r.ClosedDoors))
	}
	if r.SearchableWalls > 0 {
		t.RawSetString("searchable_walls", lua.LNumber(r.SearchableWalls))
	}
	return t
}
