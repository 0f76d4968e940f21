package game

// The capability catalog. Action methods consume a game turn and are
// individually recorded by the sandbox proxy; query methods only read
// state and pass through untracked. The validator and the proxy both
// consume this catalog so the two can never drift.

// ActionMethods is the fixed set of state-mutating capability methods,
// keyed by the name fragments call on the handle.
var ActionMethods = map[string]struct{}{
	// Movement
	"move": {}, "move_to": {}, "go_up": {}, "go_down": {},
	// Combat
	"attack": {}, "kick": {}, "fire": {}, "throw": {},
	// Items
	"pickup": {}, "drop": {}, "eat": {}, "quaff": {}, "read": {},
	"zap": {}, "wear": {}, "wield": {}, "take_off": {}, "apply": {},
	// Doors
	"open_door": {}, "close_door": {},
	// Utility
	"wait": {}, "search": {}, "rest": {}, "pay": {}, "pray": {}, "look": {},
	// Special
	"cast_spell": {}, "engrave": {},
	// Raw input
	"send_keys": {}, "escape": {}, "confirm": {}, "deny": {}, "space": {},
	// Multi-step subroutines
	"travel_to": {}, "autoexplore": {},
}

// QueryMethods is the read-only capability surface. Unlike actions this
// set may grow freely; queries are never intercepted.
var QueryMethods = map[string]struct{}{
	"stats":            {},
	"position":         {},
	"inventory":        {},
	"monsters":         {},
	"items_here":       {},
	"message":          {},
	"messages":         {},
	"explored_percent": {},
	"hostiles_visible": {},
}

// IsAction reports whether name is a recorded, turn-consuming method.
func IsAction(name string) bool {
	_, ok := ActionMethods[name]
	return ok
}

// IsKnownMethod reports whether name is anywhere on the capability surface.
func IsKnownMethod(name string) bool {
	if _, ok := ActionMethods[name]; ok {
		return true
	}
	_, ok := QueryMethods[name]
	return ok
}
