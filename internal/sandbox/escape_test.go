package sandbox

import (
	"context"
	"testing"

	"dungeon-skill-sandbox/internal/game"
)

// Escape attempts an adversarial fragment might try. Each must be caught
// statically or fail harmlessly at runtime; none may reach anything
// outside the capability surface.
func TestEscapeAttempts(t *testing.T) {
	tests := []struct {
		name   string
		source string
		// caughtStatically: the validator must reject it outright.
		// Otherwise the fragment must run without Success or return a
		// harmless nil-ish payload.
		caughtStatically bool
	}{
		{
			name:             "require os",
			source:           `require("os").execute("id")`,
			caughtStatically: true,
		},
		{
			name:             "require io",
			source:           `local f = require("io").open("/etc/passwd")`,
			caughtStatically: true,
		},
		{
			name:             "load string bomb",
			source:           `load("while true do end")()`,
			caughtStatically: true,
		},
		{
			name:             "swap handle metatable",
			source:           `setmetatable(game, { __index = function() end })`,
			caughtStatically: true,
		},
		{
			name:             "read handle metatable",
			source:           `return getmetatable(game)`,
			caughtStatically: true,
		},
		{
			name:             "raw access to __index",
			source:           `return rawget(game, "__index")`,
			caughtStatically: true,
		},
		{
			name:             "reach globals table",
			source:           `return game._G`,
			caughtStatically: true,
		},
		{
			name:             "shell through method call",
			source:           `game:execute("rm -rf /")`,
			caughtStatically: true,
		},
		{
			name:   "aliased require",
			source: `local f = require return f("os")`,
		},
		{
			name:   "stripped global is nil",
			source: `return load`,
		},
		{
			name:   "os library never opened",
			source: `return os`,
		},
		{
			name:   "coroutine library never opened",
			source: `return coroutine`,
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vres := v.Validate(Submission{Source: tt.source, Mode: ModeAdhoc})
			if tt.caughtStatically {
				if vres.Valid {
					t.Fatal("validator accepted a fragment it must reject")
				}
				return
			}
			if !vres.Valid {
				// Caught statically anyway; stricter is fine.
				return
			}

			e := NewEngine(game.NewSim(), DefaultConfig())
			res, err := e.Execute(context.Background(), Submission{Source: tt.source, Mode: ModeAdhoc})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Success && res.Payload != nil {
				t.Errorf("escape attempt yielded a value: %v", res.Payload)
			}
		})
	}
}
