package game

import "fmt"

// Direction is a compass direction for movement and targeted actions.
type Direction string

const (
	North     Direction = "n"
	South     Direction = "s"
	East      Direction = "e"
	West      Direction = "w"
	NorthEast Direction = "ne"
	NorthWest Direction = "nw"
	SouthEast Direction = "se"
	SouthWest Direction = "sw"
	Up        Direction = "up"
	Down      Direction = "down"
	Self      Direction = "self"
)

// Directions lists every direction accepted by the capability surface,
// in the order they are exposed to fragments.
var Directions = []Direction{
	North, South, East, West,
	NorthEast, NorthWest, SouthEast, SouthWest,
	Up, Down, Self,
}

var directionDeltas = map[Direction][2]int{
	North:     {0, -1},
	South:     {0, 1},
	East:      {1, 0},
	West:      {-1, 0},
	NorthEast: {1, -1},
	NorthWest: {-1, -1},
	SouthEast: {1, 1},
	SouthWest: {-1, 1},
	Up:        {0, 0},
	Down:      {0, 0},
	Self:      {0, 0},
}

// Valid reports whether d is a recognized direction.
func (d Direction) Valid() bool {
	_, ok := directionDeltas[d]
	return ok
}

// Delta returns the (dx, dy) offset for one step in this direction.
func (d Direction) Delta() (int, int) {
	dd := directionDeltas[d]
	return dd[0], dd[1]
}

// ParseDirection converts a fragment-supplied string into a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown direction %q (use n/s/e/w/ne/nw/se/sw/up/down/self)", s)
	}
	return d, nil
}

// Position is a map coordinate. The origin is the top-left corner;
// y grows downward, matching the terminal layout of the game screen.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DistanceTo returns the Chebyshev distance: the number of moves with
// 8-directional movement.
func (p Position) DistanceTo(o Position) int {
	dx := abs(p.X - o.X)
	dy := abs(p.Y - o.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// DirectionTo returns the compass direction from p toward o.
func (p Position) DirectionTo(o Position) Direction {
	dx := sign(o.X - p.X)
	dy := sign(o.Y - p.Y)
	for d, delta := range directionDeltas {
		if d == Up || d == Down || d == Self {
			continue
		}
		if delta[0] == dx && delta[1] == dy {
			return d
		}
	}
	return Self
}

// Move returns the position one step away in the given direction.
func (p Position) Move(d Direction) Position {
	dx, dy := d.Delta()
	return Position{X: p.X + dx, Y: p.Y + dy}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

// Hunger levels, from best to worst.
const (
	Satiated  = "Satiated"
	NotHungry = "Not Hungry"
	Hungry    = "Hungry"
	Weak      = "Weak"
	Fainting  = "Fainting"
)

// Stats is the player state snapshot exposed to fragments.
type Stats struct {
	HP           int      `json:"hp"`
	MaxHP        int      `json:"max_hp"`
	Power        int      `json:"power"`
	MaxPower     int      `json:"max_power"`
	ArmorClass   int      `json:"armor_class"`
	Level        int      `json:"level"`
	Gold         int      `json:"gold"`
	Hunger       string   `json:"hunger"`
	DungeonDepth int      `json:"dungeon_depth"`
	Turn         int      `json:"turn"`
	Position     Position `json:"position"`
}

// HPFraction returns HP as a fraction of max, 0 when max is unknown.
func (s Stats) HPFraction() float64 {
	if s.MaxHP <= 0 {
		return 0
	}
	return float64(s.HP) / float64(s.MaxHP)
}

// Monster is a creature visible on the current level.
type Monster struct {
	Name     string   `json:"name"`
	Char     string   `json:"char"`
	Position Position `json:"position"`
	Peaceful bool     `json:"peaceful"`
	Tame     bool     `json:"tame"`
}

// Hostile reports whether the monster will attack when adjacent.
func (m Monster) Hostile() bool {
	return !m.Peaceful && !m.Tame
}

// Item is an object in the inventory or on the floor.
type Item struct {
	Slot     string    `json:"slot,omitempty"` // inventory letter, empty if on the floor
	Name     string    `json:"name"`
	Class    string    `json:"class"` // weapon, armor, food, potion, scroll, wand, ...
	Quantity int       `json:"quantity"`
	Position *Position `json:"position,omitempty"` // nil if in inventory
}

// ActionResult is the outcome of a single state-mutating operation.
// Success is the explicit indicator the capability proxy records from.
type ActionResult struct {
	Success      bool     `json:"success"`
	Messages     []string `json:"messages,omitempty"`
	Error        string   `json:"error,omitempty"`
	TurnElapsed  bool     `json:"turn_elapsed"`
	StateChanged bool     `json:"state_changed"`
}

// Failed builds a failed result that consumed no turn.
func Failed(format string, args ...any) ActionResult {
	return ActionResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// OK builds a successful result carrying the given game messages.
func OK(messages ...string) ActionResult {
	return ActionResult{Success: true, Messages: messages, TurnElapsed: true, StateChanged: true}
}

// ExploreResult is the structured outcome of the multi-step exploration
// subroutine. It is reported separately from plain call records because
// the agent needs the stop reason and the follow-up hints, not just a
// success flag.
type ExploreResult struct {
	StopReason      string   `json:"stop_reason"` // fully_explored, hostile, low_hp, step_limit, blocked, ...
	StepsTaken      int      `json:"steps_taken"`
	TurnsElapsed    int      `json:"turns_elapsed"`
	Position        Position `json:"position"`
	Message         string   `json:"message,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	ClosedDoors     int      `json:"closed_doors,omitempty"`
	SearchableWalls int      `json:"searchable_walls,omitempty"`
}

// Success reports whether the subroutine itself ran; every stop reason is
// a valid outcome, only a missing observation is a failure.
func (r ExploreResult) Success() bool {
	return r.StopReason != "no_observation"
}
