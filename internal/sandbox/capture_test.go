package sandbox

import (
	"fmt"
	"reflect"
	"testing"
)

func TestCollectMessages(t *testing.T) {
	tests := []struct {
		name    string
		before  []string
		after   []string
		current string
		want    []string
	}{
		{
			name:   "only new messages",
			before: []string{"Hello Agent, welcome to the dungeon!"},
			after:  []string{"Hello Agent, welcome to the dungeon!", "You see a door.", "The door opens."},
			want:   []string{"You see a door.", "The door opens."},
		},
		{
			name:   "duplicates removed preserving order",
			before: nil,
			after:  []string{"You hit the newt.", "You hit the newt.", "The newt bites!", "You hit the newt."},
			want:   []string{"You hit the newt.", "The newt bites!"},
		},
		{
			name:   "transient prompts filtered",
			before: nil,
			after:  []string{"What do you want to zap?", "In what direction?", "You zap a wand of light."},
			want:   []string{"You zap a wand of light."},
		},
		{
			name:    "current message prepended when absent",
			before:  nil,
			after:   []string{"You hit the newt."},
			current: "The newt is killed!",
			want:    []string{"The newt is killed!", "You hit the newt."},
		},
		{
			name:    "current message not duplicated",
			before:  nil,
			after:   []string{"You kill the newt!"},
			current: "You kill the newt!",
			want:    []string{"You kill the newt!"},
		},
		{
			name:   "no new messages",
			before: []string{"a", "b"},
			after:  []string{"a", "b"},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectMessages(tt.before, tt.after, tt.current)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("collectMessages = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectMessagesKeepsKillsBeyondCap(t *testing.T) {
	var after []string
	after = append(after, "You kill the jackal!")
	for i := 0; i < maxCapturedMessages+50; i++ {
		after = append(after, fmt.Sprintf("You hear a sound. (%d)", i))
	}

	got := collectMessages(nil, after, "")

	foundKill := false
	for _, m := range got {
		if m == "You kill the jackal!" {
			foundKill = true
		}
	}
	if !foundKill {
		t.Error("kill message beyond the cap should be kept")
	}
	if got[len(got)-1] != fmt.Sprintf("You hear a sound. (%d)", maxCapturedMessages+49) {
		t.Error("the most recent message should be last")
	}
	// The earliest non-kill messages fell out of the window.
	for _, m := range got {
		if m == "You hear a sound. (0)" {
			t.Error("overflowed ordinary messages should be dropped")
		}
	}
}

func TestTruncateOutput(t *testing.T) {
	if got := truncateOutput("short", 100); got != "short" {
		t.Errorf("got %q", got)
	}
	got := truncateOutput("0123456789", 4)
	if got != "0123\n... [output truncated]" {
		t.Errorf("got %q", got)
	}
	if got := truncateOutput("anything", 0); got != "anything" {
		t.Errorf("zero limit should disable truncation, got %q", got)
	}
}
