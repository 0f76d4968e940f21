package sandbox

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"dungeon-skill-sandbox/internal/game"
)

const handleTypeName = "game_handle"

// proxy wraps the game handle for one invocation. Action calls are
// recorded with their formatted arguments and outcome; query calls pass
// through untouched. The mutex lets the engine snapshot records while a
// timed-out worker is still finishing a call.
type proxy struct {
	handle game.Handle

	mu      sync.Mutex
	calls   []APICallRecord
	explore *game.ExploreResult
}

func newProxy(h game.Handle) *proxy {
	return &proxy{handle: h}
}

func (p *proxy) record(rec APICallRecord) {
	p.mu.Lock()
	p.calls = append(p.calls, rec)
	p.mu.Unlock()
}

// snapshot returns the records so far and the explore sub-result, if any.
func (p *proxy) snapshot() ([]APICallRecord, *game.ExploreResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := make([]APICallRecord, len(p.calls))
	copy(calls, p.calls)
	return calls, p.explore
}

// bind creates the game userdata with its method table. The metatable is
// sealed so fragments cannot swap __index even if they smuggle a
// reference to it.
func (p *proxy) bind(L *lua.LState) lua.LValue {
	mt := L.NewTypeMetatable(handleTypeName)
	methods := L.NewTable()
	for name, fn := range p.methods() {
		methods.RawSetString(name, L.NewFunction(fn))
	}
	L.SetField(mt, "__index", methods)
	L.SetField(mt, "__metatable", lua.LString("protected"))

	ud := L.NewUserData()
	ud.Value = p
	L.SetMetatable(ud, mt)
	return ud
}

func (p *proxy) methods() map[string]lua.LGFunction {
	m := map[string]lua.LGFunction{
		// Movement
		"move":    p.dirAction("move", p.handle.Move),
		"move_to": p.moveTo(),
		"go_up":   p.nullaryAction("go_up", p.handle.GoUp),
		"go_down": p.nullaryAction("go_down", p.handle.GoDown),

		// Combat
		"attack": p.dirAction("attack", p.handle.Attack),
		"kick":   p.dirAction("kick", p.handle.Kick),
		"fire":   p.dirAction("fire", p.handle.Fire),
		"throw":  p.slotDirAction("throw", p.handle.Throw),

		// Items
		"pickup":   p.nullaryAction("pickup", p.handle.Pickup),
		"drop":     p.slotAction("drop", p.handle.Drop),
		"eat":      p.optSlotAction("eat", p.handle.Eat),
		"quaff":    p.slotAction("quaff", p.handle.Quaff),
		"read":     p.slotAction("read", p.handle.Read),
		"zap":      p.slotDirAction("zap", p.handle.Zap),
		"wear":     p.slotAction("wear", p.handle.Wear),
		"wield":    p.slotAction("wield", p.handle.Wield),
		"take_off": p.slotAction("take_off", p.handle.TakeOff),
		"apply":    p.slotAction("apply", p.handle.Apply),

		// Doors
		"open_door":  p.dirAction("open_door", p.handle.OpenDoor),
		"close_door": p.dirAction("close_door", p.handle.CloseDoor),

		// Utility
		"wait":   p.nullaryAction("wait", p.handle.Wait),
		"search": p.intAction("search", 1, p.handle.Search),
		"rest":   p.intAction("rest", 1, p.handle.Rest),
		"pay":    p.nullaryAction("pay", p.handle.Pay),
		"pray":   p.nullaryAction("pray", p.handle.Pray),
		"look":   p.nullaryAction("look", p.handle.Look),

		// Special
		"cast_spell": p.slotDirAction("cast_spell", p.handle.CastSpell),
		"engrave":    p.stringAction("engrave", p.handle.Engrave),

		// Raw input
		"send_keys": p.stringAction("send_keys", p.handle.SendKeys),
		"escape":    p.nullaryAction("escape", p.handle.Escape),
		"confirm":   p.nullaryAction("confirm", p.handle.Confirm),
		"deny":      p.nullaryAction("deny", p.handle.Deny),
		"space":     p.nullaryAction("space", p.handle.Space),

		// Multi-step subroutines
		"travel_to":   p.stringAction("travel_to", p.handle.TravelTo),
		"autoexplore": p.autoexplore(),
	}

	// Queries, unrecorded.
	m["stats"] = func(L *lua.LState) int {
		L.Push(statsToLua(L, p.handle.Stats()))
		return 1
	}
	m["position"] = func(L *lua.LState) int {
		L.Push(positionToLua(L, p.handle.Position()))
		return 1
	}
	m["inventory"] = p.itemQuery(p.handle.Inventory)
	m["items_here"] = p.itemQuery(p.handle.ItemsHere)
	m["monsters"] = func(L *lua.LState) int {
		t := L.NewTable()
		for _, mon := range p.handle.Monsters() {
			t.Append(monsterToLua(L, mon))
		}
		L.Push(t)
		return 1
	}
	m["message"] = func(L *lua.LState) int {
		L.Push(lua.LString(p.handle.Message()))
		return 1
	}
	m["messages"] = func(L *lua.LState) int {
		L.Push(stringsToLua(L, p.handle.Messages()))
		return 1
	}
	m["explored_percent"] = func(L *lua.LState) int {
		L.Push(lua.LNumber(p.handle.ExploredPercent()))
		return 1
	}
	m["hostiles_visible"] = func(L *lua.LState) int {
		L.Push(lua.LBool(p.handle.HostilesVisible()))
		return 1
	}

	return m
}

// finish records the action and pushes its result table.
func (p *proxy) finish(L *lua.LState, method, args string, res game.ActionResult) int {
	errMsg := res.Error
	if !res.Success && errMsg != "" {
		errMsg = translateActionError(errMsg)
	}
	p.record(APICallRecord{Method: method, Args: args, Success: res.Success, Error: errMsg})
	L.Push(actionResultToLua(L, res, errMsg))
	return 1
}

// argFailure records a call whose arguments never reached the game and
// returns a failed result table instead of raising, so fragments can
// inspect the error the same way as any other failed action.
func (p *proxy) argFailure(L *lua.LState, method string, err error) int {
	hint := translateActionError(err.Error())
	p.record(APICallRecord{Method: method, Success: false, Error: hint})
	L.Push(actionResultToLua(L, game.ActionResult{}, hint))
	return 1
}

func (p *proxy) nullaryAction(name string, call func() game.ActionResult) lua.LGFunction {
	return func(L *lua.LState) int {
		return p.finish(L, name, "", call())
	}
}

func (p *proxy) dirAction(name string, call func(game.Direction) game.ActionResult) lua.LGFunction {
	return func(L *lua.LState) int {
		dir, err := argDirection(L, 2)
		if err != nil {
			return p.argFailure(L, name, err)
		}
		return p.finish(L, name, formatArgs(string(dir)), call(dir))
	}
}

func (p *proxy) slotAction(name string, call func(string) game.ActionResult) lua.LGFunction {
	return func(L *lua.LState) int {
		slot, err := argString(L, 2)
		if err != nil {
			return p.argFailure(L, name, err)
		}
		return p.finish(L, name, formatArgs(slot), call(slot))
	}
}

// optSlotAction allows omitting the slot (acting on the floor).
func (p *proxy) optSlotAction(name string, call func(string) game.ActionResult) lua.LGFunction {
	return func(L *lua.LState) int {
		if L.Get(2) == lua.LNil {
			return p.finish(L, name, "", call(""))
		}
		slot, err := argString(L, 2)
		if err != nil {
			return p.argFailure(L, name, err)
		}
		return p.finish(L, name, formatArgs(slot), call(slot))
	}
}

func (p *proxy) slotDirAction(name string, call func(string, game.Direction) game.ActionResult) lua.LGFunction {
	return func(L *lua.LState) int {
		slot, err := argString(L, 2)
		if err != nil {
			return p.argFailure(L, name, err)
		}
		dir, err := argDirection(L, 3)
		if err != nil {
			return p.argFailure(L, name, err)
		}
		return p.finish(L, name, formatArgs(slot, string(dir)), call(slot, dir))
	}
}

func (p *proxy) stringAction(name string, call func(string) game.ActionResult) lua.LGFunction {
	return func(L *lua.LState) int {
		s, err := argString(L, 2)
		if err != nil {
			return p.argFailure(L, name, err)
		}
		return p.finish(L, name, formatArgs(s), call(s))
	}
}

func (p *proxy) intAction(name string, def int, call func(int) game.ActionResult) lua.LGFunction {
	return func(L *lua.LState) int {
		n, err := argInt(L, 2, def)
		if err != nil {
			return p.argFailure(L, name, err)
		}
		return p.finish(L, name, formatArgs(n), call(n))
	}
}

// moveTo accepts a position table or a pair of coordinates.
func (p *proxy) moveTo() lua.LGFunction {
	return func(L *lua.LState) int {
		pos, err := argPosition(L, 2)
		if err != nil {
			return p.argFailure(L, "move_to", err)
		}
		return p.finish(L, "move_to", formatArgs(pos), p.handle.MoveTo(pos))
	}
}

func (p *proxy) autoexplore() lua.LGFunction {
	return func(L *lua.LState) int {
		maxSteps, err := argInt(L, 2, 0)
		if err != nil {
			return p.argFailure(L, "autoexplore", err)
		}
		res := p.handle.Autoexplore(maxSteps)

		p.mu.Lock()
		cp := res
		p.explore = &cp
		p.mu.Unlock()

		args := ""
		if maxSteps > 0 {
			args = formatArgs(maxSteps)
		}
		errMsg := ""
		if !res.Success() {
			errMsg = "exploration produced no observation"
		}
		p.record(APICallRecord{Method: "autoexplore", Args: args, Success: res.Success(), Error: errMsg})
		L.Push(exploreResultToLua(L, res))
		return 1
	}
}

func (p *proxy) itemQuery(q func() []game.Item) lua.LGFunction {
	return func(L *lua.LState) int {
		t := L.NewTable()
		for _, it := range q() {
			t.Append(itemToLua(L, it))
		}
		L.Push(t)
		return 1
	}
}

func argString(L *lua.LState, n int) (string, error) {
	v := L.Get(n)
	if s, ok := v.(lua.LString); ok {
		return string(s), nil
	}
	if v == lua.LNil {
		return "", fmt.Errorf("argument %d is required", n-1)
	}
	return "", fmt.Errorf("argument %d must be a string, got %s", n-1, v.Type().String())
}

func argDirection(L *lua.LState, n int) (game.Direction, error) {
	s, err := argString(L, n)
	if err != nil {
		return "", err
	}
	return game.ParseDirection(s)
}

func argInt(L *lua.LState, n, def int) (int, error) {
	v := L.Get(n)
	if v == lua.LNil {
		return def, nil
	}
	if num, ok := v.(lua.LNumber); ok {
		return int(num), nil
	}
	return 0, fmt.Errorf("argument %d must be a number, got %s", n-1, v.Type().String())
}

func argPosition(L *lua.LState, n int) (game.Position, error) {
	v := L.Get(n)
	if t, ok := v.(*lua.LTable); ok {
		x, xok := t.RawGetString("x").(lua.LNumber)
		y, yok := t.RawGetString("y").(lua.LNumber)
		if !xok || !yok {
			return game.Position{}, fmt.Errorf("position table needs numeric x and y")
		}
		return game.Position{X: int(x), Y: int(y)}, nil
	}
	x, xok := v.(lua.LNumber)
	y, yok := L.Get(n + 1).(lua.LNumber)
	if xok && yok {
		return game.Position{X: int(x), Y: int(y)}, nil
	}
	return game.Position{}, fmt.Errorf("argument %d must be a position (table or x, y pair)", n-1)
}

// formatArgs renders call arguments the way they appear in records:
// strings quoted, positions as coordinates, everything else plain.
func formatArgs(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch x := a.(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%q", x))
		case game.Position:
			parts = append(parts, fmt.Sprintf("(%d, %d)", x.X, x.Y))
		default:
			parts = append(parts, fmt.Sprintf("%v", x))
		}
	}
	return strings.Join(parts, ", ")
}
