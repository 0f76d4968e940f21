package game

import (
	"fmt"
	"strings"
	"sync"
)

// Sim is a small in-memory dungeon implementing Handle. It exists so the
// server, the CLI and the tests can run fragments without the real game
// process. It models just enough: a rectangular room, a turn counter,
// inventory slots, visible monsters and the message stream.
type Sim struct {
	mu sync.Mutex

	width, height int
	player        Position
	stats         Stats
	inventory     []Item
	floor         []Item
	monsters      []Monster
	messages      []string
	explored      float64
	prayed        bool
}

// NewSim creates a simulator with a 20x10 room, the player near the
// center, one hostile and a couple of starter items.
func NewSim() *Sim {
	s := &Sim{
		width:  20,
		height: 10,
		player: Position{X: 5, Y: 4},
		stats: Stats{
			HP: 14, MaxHP: 14,
			Power: 4, MaxPower: 4,
			ArmorClass: 7, Level: 1,
			Gold: 12, Hunger: NotHungry,
			DungeonDepth: 1,
		},
		inventory: []Item{
			{Slot: "a", Name: "a blessed +1 short sword", Class: "weapon", Quantity: 1},
			{Slot: "b", Name: "2 food rations", Class: "food", Quantity: 2},
			{Slot: "c", Name: "a scroll labeled KIRJE", Class: "scroll", Quantity: 1},
		},
		monsters: []Monster{
			{Name: "newt", Char: ":", Position: Position{X: 12, Y: 6}},
		},
		explored: 0.35,
	}
	s.say("Hello Agent, welcome to the dungeon!")
	return s
}

func (s *Sim) say(format string, args ...any) {
	s.messages = append(s.messages, fmt.Sprintf(format, args...))
}

func (s *Sim) tick() {
	s.stats.Turn++
}

func (s *Sim) walkable(p Position) bool {
	return p.X > 0 && p.Y > 0 && p.X < s.width-1 && p.Y < s.height-1
}

func (s *Sim) slotItem(slot string) (*Item, ActionResult) {
	if len(slot) != 1 {
		return nil, Failed("item_letter must be a single character, got %q", slot)
	}
	for i := range s.inventory {
		if s.inventory[i].Slot == slot {
			return &s.inventory[i], ActionResult{}
		}
	}
	return nil, Failed("You don't have item '%s'.", slot)
}

func (s *Sim) Move(dir Direction) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !dir.Valid() {
		return Failed("unknown direction %q", dir)
	}
	dst := s.player.Move(dir)
	if !s.walkable(dst) {
		s.say("You can't move there.")
		return Failed("position (%d, %d) is not walkable", dst.X, dst.Y)
	}
	s.player = dst
	s.stats.Position = dst
	s.tick()
	return OK()
}

func (s *Sim) MoveTo(pos Position) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.walkable(pos) {
		return Failed("position (%d, %d) is not walkable", pos.X, pos.Y)
	}
	steps := s.player.DistanceTo(pos)
	s.player = pos
	s.stats.Position = pos
	for i := 0; i < steps; i++ {
		s.tick()
	}
	return OK()
}

func (s *Sim) GoUp() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.say("You can't go up here.")
	return Failed("there are no stairs up here")
}

func (s *Sim) GoDown() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.DungeonDepth++
	s.explored = 0
	s.monsters = nil
	s.tick()
	s.say("You descend the stairs to level %d.", s.stats.DungeonDepth)
	return OK()
}

func (s *Sim) Attack(dir Direction) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.player.Move(dir)
	for i, m := range s.monsters {
		if m.Position == target {
			s.monsters = append(s.monsters[:i], s.monsters[i+1:]...)
			s.tick()
			s.say("You kill the %s!", m.Name)
			return OK(fmt.Sprintf("You kill the %s!", m.Name))
		}
	}
	s.tick()
	s.say("You attack thin air.")
	return ActionResult{Success: true, Messages: []string{"You attack thin air."}, TurnElapsed: true}
}

func (s *Sim) Kick(dir Direction) ActionResult { return s.Attack(dir) }

func (s *Sim) Fire(dir Direction) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick()
	s.say("You have nothing readied to fire.")
	return Failed("you have no launcher wielded")
}

func (s *Sim) Throw(slot string, dir Direction) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, fail := s.slotItem(slot)
	if item == nil {
		return fail
	}
	s.tick()
	s.say("You throw %s.", item.Name)
	return OK()
}

func (s *Sim) Pickup() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.floor {
		if it.Position != nil && *it.Position == s.player {
			it.Position = nil
			it.Slot = string(rune('a' + len(s.inventory)))
			s.inventory = append(s.inventory, it)
			s.floor = append(s.floor[:i], s.floor[i+1:]...)
			s.tick()
			s.say("%s - %s.", it.Slot, it.Name)
			return OK()
		}
	}
	s.say("There is nothing here to pick up.")
	return Failed("there is nothing here to pick up")
}

func (s *Sim) Drop(slot string) ActionResult  { return s.consume(slot, "You drop %s.") }
func (s *Sim) Eat(slot string) ActionResult {
	s.mu.Lock()
	if slot == "" {
		// Eating from the floor with no argument.
		s.tick()
		s.say("You don't find anything to eat here.")
		s.mu.Unlock()
		return Failed("there is nothing here to eat")
	}
	s.mu.Unlock()
	res := s.consume(slot, "You eat %s. Delicious!")
	if res.Success {
		s.mu.Lock()
		s.stats.Hunger = NotHungry
		s.mu.Unlock()
	}
	return res
}
func (s *Sim) Quaff(slot string) ActionResult { return s.consume(slot, "You drink %s.") }
func (s *Sim) Read(slot string) ActionResult  { return s.consume(slot, "You read %s.") }

func (s *Sim) Zap(slot string, dir Direction) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, fail := s.slotItem(slot)
	if item == nil {
		return fail
	}
	if item.Class != "wand" {
		return Failed("You can't zap that!")
	}
	s.tick()
	s.say("You zap %s.", item.Name)
	return OK()
}

func (s *Sim) Wear(slot string) ActionResult    { return s.equip(slot, "armor", "You are now wearing %s.") }
func (s *Sim) Wield(slot string) ActionResult   { return s.equip(slot, "weapon", "%s - wielded.") }
func (s *Sim) TakeOff(slot string) ActionResult { return s.consumeKeep(slot, "You take off %s.") }
func (s *Sim) Apply(slot string) ActionResult   { return s.consumeKeep(slot, "You apply %s.") }

func (s *Sim) OpenDoor(dir Direction) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick()
	s.say("You see no door there.")
	return Failed("no door in that direction")
}

func (s *Sim) CloseDoor(dir Direction) ActionResult { return s.OpenDoor(dir) }

func (s *Sim) Wait() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick()
	return ActionResult{Success: true, TurnElapsed: true}
}

func (s *Sim) Search(times int) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if times < 1 {
		times = 1
	}
	for i := 0; i < times; i++ {
		s.tick()
	}
	s.say("You find nothing.")
	return OK("You find nothing.")
}

func (s *Sim) Rest(turns int) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turns < 1 {
		turns = 1
	}
	for i := 0; i < turns; i++ {
		s.tick()
		if s.stats.HP < s.stats.MaxHP {
			s.stats.HP++
		}
	}
	return OK()
}

func (s *Sim) Pay() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.say("You do not owe anything.")
	return Failed("you do not owe anything")
}

func (s *Sim) Pray() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick()
	if s.prayed {
		s.say("You feel that your god is angry.")
		return ActionResult{Success: true, Messages: []string{"You feel that your god is angry."}, TurnElapsed: true}
	}
	s.prayed = true
	s.stats.HP = s.stats.MaxHP
	s.say("You feel much better.")
	return OK("You feel much better.")
}

func (s *Sim) Look() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.say("You see nothing special here.")
	return ActionResult{Success: true, Messages: []string{"You see nothing special here."}}
}

func (s *Sim) CastSpell(slot string, dir Direction) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.say("You don't know any spells.")
	return Failed("you don't know any spells")
}

func (s *Sim) Engrave(text string) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick()
	s.say("You write \"%s\" in the dust.", text)
	return OK()
}

func (s *Sim) SendKeys(keys string) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range keys {
		s.tick()
	}
	return OK()
}

func (s *Sim) Escape() ActionResult  { return s.rawKey() }
func (s *Sim) Confirm() ActionResult { return s.rawKey() }
func (s *Sim) Deny() ActionResult    { return s.rawKey() }
func (s *Sim) Space() ActionResult   { return s.rawKey() }

func (s *Sim) TravelTo(feature string) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hostilesVisibleLocked() {
		return Failed("Hostile monsters in view: cannot travel")
	}
	switch feature {
	case "stairs_down", ">":
		dst := Position{X: s.width - 2, Y: s.height - 2}
		for i := 0; i < s.player.DistanceTo(dst); i++ {
			s.tick()
		}
		s.player = dst
		s.stats.Position = dst
		s.say("You arrive at the staircase.")
		return OK()
	default:
		return Failed("No path through explored territory to %q", feature)
	}
}

func (s *Sim) Autoexplore(maxSteps int) ExploreResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxSteps <= 0 {
		maxSteps = 500
	}
	if s.hostilesVisibleLocked() {
		return ExploreResult{
			StopReason:  "hostile",
			Position:    s.player,
			Message:     "a hostile monster is in view",
			Suggestions: []string{"attack the monster or move away before exploring"},
		}
	}
	steps := maxSteps
	if steps > 40 {
		steps = 40
	}
	for i := 0; i < steps; i++ {
		s.tick()
	}
	s.explored = 1.0
	s.say("You have explored this level.")
	return ExploreResult{
		StopReason:   "fully_explored",
		StepsTaken:   steps,
		TurnsElapsed: steps,
		Position:     s.player,
		Message:      "the level is fully explored",
	}
}

func (s *Sim) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Position = s.player
	return st
}

func (s *Sim) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Sim) Inventory() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.inventory))
	copy(out, s.inventory)
	return out
}

func (s *Sim) Monsters() []Monster {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Monster, len(s.monsters))
	copy(out, s.monsters)
	return out
}

func (s *Sim) ItemsHere() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, it := range s.floor {
		if it.Position != nil && *it.Position == s.player {
			out = append(out, it)
		}
	}
	return out
}

func (s *Sim) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

func (s *Sim) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Sim) ExploredPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.explored
}

func (s *Sim) HostilesVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostilesVisibleLocked()
}

// PlaceItem drops an item on the floor; test and scenario setup helper.
func (s *Sim) PlaceItem(it Item, at Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.Position = &at
	s.floor = append(s.floor, it)
}

// PlaceMonster adds a monster to the level; test and scenario setup helper.
func (s *Sim) PlaceMonster(m Monster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monsters = append(s.monsters, m)
}

// Announce injects a raw game message, e.g. a transient prompt.
func (s *Sim) Announce(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.say("%s", msg)
}

func (s *Sim) hostilesVisibleLocked() bool {
	for _, m := range s.monsters {
		if m.Hostile() {
			return true
		}
	}
	return false
}

func (s *Sim) rawKey() ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ActionResult{Success: true}
}

func (s *Sim) consume(slot, doneMsg string) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, fail := s.slotItem(slot)
	if item == nil {
		return fail
	}
	name := item.Name
	if item.Quantity > 1 {
		item.Quantity--
	} else {
		for i := range s.inventory {
			if s.inventory[i].Slot == slot {
				s.inventory = append(s.inventory[:i], s.inventory[i+1:]...)
				break
			}
		}
	}
	s.tick()
	s.say(doneMsg, name)
	return OK()
}

func (s *Sim) consumeKeep(slot, doneMsg string) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, fail := s.slotItem(slot)
	if item == nil {
		return fail
	}
	s.tick()
	s.say(doneMsg, item.Name)
	return OK()
}

func (s *Sim) equip(slot, wantClass, doneMsg string) ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, fail := s.slotItem(slot)
	if item == nil {
		return fail
	}
	if item.Class != wantClass && wantClass != "" {
		return Failed("You can't use %s that way.", item.Name)
	}
	s.tick()
	s.say(doneMsg, item.Name)
	return OK()
}

var _ Handle = (*Sim)(nil)

// Describe renders a short human-readable state summary for the CLI.
func (s *Sim) Describe() string {
	st := s.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "Dlvl %d  HP %d/%d  AC %d  $%d  T%d  @(%d,%d)",
		st.DungeonDepth, st.HP, st.MaxHP, st.ArmorClass, st.Gold, st.Turn,
		st.Position.X, st.Position.Y)
	return b.String()
}
