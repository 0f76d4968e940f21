package sandbox

import (
	"fmt"
	"strings"
)

// errorHints maps known low-level failure messages to actionable hints.
// The raw message is kept and the hint appended, so nothing is hidden
// from the agent. Matching is first-hit substring.
var errorHints = []struct {
	match string
	hint  string
}{
	{"item_letter must be a single character",
		`pass one inventory letter, e.g. game:eat("b")`},
	{"don't have item",
		"that inventory slot is empty; call game:inventory() to list letters"},
	{"not walkable",
		"the destination is blocked; pick an adjacent open tile or use game:travel_to"},
	{"Hostile monsters in view",
		"deal with visible hostiles first; try game:attack(dir) or move away"},
	{"No path through explored territory",
		"the target is not reachable through known tiles; run game:autoexplore() first"},
	{"unknown direction",
		"directions are n, s, e, w, ne, nw, se, sw, up, down, self"},
	{"argument 1 is required",
		"this method needs an argument; check the capability reference"},
	{"there are no stairs up here",
		"find a < staircase before calling game:go_up()"},
	{"nothing here to pick up",
		"stand on an item first; game:items_here() shows what is underfoot"},
	{"You can't zap that",
		"only wands can be zapped; check the item class in game:inventory()"},
}

// translateActionError appends a hint to failure messages the pattern
// table recognizes.
func translateActionError(raw string) string {
	for _, h := range errorHints {
		if strings.Contains(raw, h.match) {
			return fmt.Sprintf("%s (%s)", raw, h.hint)
		}
	}
	return raw
}
