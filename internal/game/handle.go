package game

// Handle is the capability surface handed to sandboxed fragments. The
// live game owns the implementation; the sandbox only wraps it. Every
// method here maps 1:1 to a catalog name (snake_case on the Lua side).
//
// Action methods return an ActionResult whose Success field is the
// explicit indicator the proxy records. Autoexplore returns its own
// richer result. Query methods return plain values and are never
// recorded.
type Handle interface {
	// Actions — movement.
	Move(dir Direction) ActionResult
	MoveTo(pos Position) ActionResult
	GoUp() ActionResult
	GoDown() ActionResult

	// Actions — combat.
	Attack(dir Direction) ActionResult
	Kick(dir Direction) ActionResult
	Fire(dir Direction) ActionResult
	Throw(slot string, dir Direction) ActionResult

	// Actions — items. Slot is a single inventory letter; Eat accepts an
	// empty slot to eat from the floor.
	Pickup() ActionResult
	Drop(slot string) ActionResult
	Eat(slot string) ActionResult
	Quaff(slot string) ActionResult
	Read(slot string) ActionResult
	Zap(slot string, dir Direction) ActionResult
	Wear(slot string) ActionResult
	Wield(slot string) ActionResult
	TakeOff(slot string) ActionResult
	Apply(slot string) ActionResult

	// Actions — doors.
	OpenDoor(dir Direction) ActionResult
	CloseDoor(dir Direction) ActionResult

	// Actions — utility.
	Wait() ActionResult
	Search(times int) ActionResult
	Rest(turns int) ActionResult
	Pay() ActionResult
	Pray() ActionResult
	Look() ActionResult

	// Actions — special.
	CastSpell(slot string, dir Direction) ActionResult
	Engrave(text string) ActionResult

	// Actions — raw input injection.
	SendKeys(keys string) ActionResult
	Escape() ActionResult
	Confirm() ActionResult
	Deny() ActionResult
	Space() ActionResult

	// Actions — multi-step subroutines.
	TravelTo(feature string) ActionResult
	Autoexplore(maxSteps int) ExploreResult

	// Queries.
	Stats() Stats
	Position() Position
	Inventory() []Item
	Monsters() []Monster
	ItemsHere() []Item
	Message() string
	Messages() []string
	ExploredPercent() float64
	HostilesVisible() bool
}
