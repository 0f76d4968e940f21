package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"dungeon-skill-sandbox/internal/game"
)

func newTestEngine(t *testing.T) (*Engine, *game.Sim) {
	t.Helper()
	sim := game.NewSim()
	return NewEngine(sim, DefaultConfig()), sim
}

func TestExecuteAdhocRecordsActions(t *testing.T) {
	e, sim := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `
game:move("e")
game:move("e")
return game:stats().turn`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("execution failed: %s", res.Error)
	}
	if res.ActionsTaken != 2 {
		t.Errorf("actions taken = %d, want 2", res.ActionsTaken)
	}
	if res.TurnsElapsed != 2 {
		t.Errorf("turns elapsed = %d, want 2", res.TurnsElapsed)
	}
	if got, ok := res.Payload.(int64); !ok || got != 2 {
		t.Errorf("payload = %v (%T), want int64(2)", res.Payload, res.Payload)
	}
	if len(res.Calls) != 2 || res.Calls[0].Method != "move" || res.Calls[0].Args != `"e"` {
		t.Errorf("call records = %+v", res.Calls)
	}
	if sim.Position() != (game.Position{X: 7, Y: 4}) {
		t.Errorf("sim position = %+v, want (7,4)", sim.Position())
	}
	if res.SourceHash == "" || res.ID == "" {
		t.Error("result should carry an id and a source hash")
	}
}

func TestExecuteCapturesPrint(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `print("hp check", 14) print("done")`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "hp check\t14\ndone\n" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestExecuteRejectsInvalidFragment(t *testing.T) {
	e, sim := newTestEngine(t)
	turnsBefore := sim.Stats().Turn

	_, err := e.Execute(context.Background(), Submission{Source: `require("os")`})
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if !IsValidation(err) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
	if sim.Stats().Turn != turnsBefore {
		t.Error("rejected fragment must not touch the game")
	}
}

func TestExecuteTimeoutOnTightLoop(t *testing.T) {
	e, _ := newTestEngine(t)

	start := time.Now()
	res, err := e.Execute(context.Background(), Submission{
		Source:  `while true do end`,
		Timeout: 100 * time.Millisecond,
	})
	if !IsTimeout(err) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if res == nil {
		t.Fatal("timeout should still return a result")
	}
	if res.Success {
		t.Error("timed-out execution should not be successful")
	}
	if !strings.Contains(res.Error, "timeout") {
		t.Errorf("result error = %q", res.Error)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("tight loop ran %s, preemption did not kick in", elapsed)
	}
}

func TestExecuteTimeoutKeepsPartialRecords(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `
game:move("e")
while true do end`,
		Timeout: 100 * time.Millisecond,
	})
	if !IsTimeout(err) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if res.ActionsTaken != 1 {
		t.Errorf("actions taken = %d, want the pre-timeout move recorded", res.ActionsTaken)
	}
}

func TestExecuteRuntimeError(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `game:move("e") error("boom")`,
	})
	if err != nil {
		t.Fatalf("runtime errors should not surface as engine errors: %v", err)
	}
	if res.Success {
		t.Fatal("execution should have failed")
	}
	if !strings.Contains(res.Error, "boom") {
		t.Errorf("error = %q, want the fragment's message", res.Error)
	}
	if res.ActionsTaken != 1 {
		t.Errorf("actions before the error should be recorded, got %d", res.ActionsTaken)
	}
}

func TestExecuteNamedMode(t *testing.T) {
	e, sim := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `
function approach(g, args)
  g:move(args.dir)
  return { moved = true, hp = g:stats().hp }
end`,
		Mode:      ModeNamed,
		EntryName: "approach",
		Params:    []Param{{Name: "dir", Value: "e"}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("execution failed: %s", res.Error)
	}
	payload, ok := res.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T, want a table", res.Payload)
	}
	if payload["moved"] != true {
		t.Errorf("payload.moved = %v", payload["moved"])
	}
	if sim.Position() != (game.Position{X: 6, Y: 4}) {
		t.Errorf("sim position = %+v, want (6,4)", sim.Position())
	}
}

func TestExecuteNamedModeMissingEntryAtRuntime(t *testing.T) {
	e, _ := newTestEngine(t)

	// The chunk defines the entry, then removes it before the call.
	res, err := e.Execute(context.Background(), Submission{
		Source:    `go = function(g) return 1 end go = nil`,
		Mode:      ModeNamed,
		EntryName: "go",
	})
	if !IsMissingEntry(err) {
		t.Fatalf("error = %v, want ErrMissingEntry", err)
	}
	if res == nil || res.Success {
		t.Error("missing entry should return a failed result")
	}
}

func TestExecuteBusySession(t *testing.T) {
	e, _ := newTestEngine(t)

	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.Execute(context.Background(), Submission{Source: `return 1`})
	if err == nil || !strings.Contains(err.Error(), ErrBusy.Error()) {
		t.Fatalf("error = %v, want ErrBusy", err)
	}
}

func TestExecuteRequestValidation(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		name string
		sub  Submission
	}{
		{"empty source", Submission{Source: "   "}},
		{"unknown mode", Submission{Source: "return 1", Mode: "batch"}},
		{"named without entry", Submission{Source: "return 1", Mode: ModeNamed}},
		{"excessive timeout", Submission{Source: "return 1", Timeout: time.Hour}},
		{"oversized source", Submission{Source: "-- " + strings.Repeat("x", 65*1024)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), tt.sub)
			if err == nil || !strings.Contains(err.Error(), ErrInvalidRequest.Error()) {
				t.Fatalf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestExecuteUnknownRequireFailsAtRuntime(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{Source: `local j = require("json")`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("unknown module should fail at runtime")
	}
	if !strings.Contains(res.Error, "not available") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecuteAllowedRequireReturnsInjectedModule(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `local m = require("math") return m.max(3, 7)`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("execution failed: %s", res.Error)
	}
	if got, ok := res.Payload.(int64); !ok || got != 7 {
		t.Errorf("payload = %v (%T), want int64(7)", res.Payload, res.Payload)
	}
}

func TestExecuteCapturesMessages(t *testing.T) {
	e, sim := newTestEngine(t)
	sim.PlaceMonster(game.Monster{Name: "jackal", Char: "d", Position: game.Position{X: 6, Y: 4}})

	res, err := e.Execute(context.Background(), Submission{Source: `game:attack("e")`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	found := false
	for _, m := range res.Messages {
		if strings.Contains(m, "kill the jackal") {
			found = true
		}
	}
	if !found {
		t.Errorf("messages = %v, want the kill message", res.Messages)
	}
}

func TestExecuteAutoexploreSubResult(t *testing.T) {
	e, sim := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `local r = game:autoexplore() return r.stop_reason`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("execution failed: %s", res.Error)
	}
	if res.Explore == nil {
		t.Fatal("explore sub-result missing")
	}
	// NewSim starts with a hostile newt in view.
	if res.Explore.StopReason != "hostile" {
		t.Errorf("stop reason = %q, want hostile", res.Explore.StopReason)
	}
	if res.Payload != "hostile" {
		t.Errorf("payload = %v, want the stop reason string", res.Payload)
	}
	_ = sim
}

func TestExecuteFailedActionReturnsHint(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Execute(context.Background(), Submission{
		Source: `local r = game:eat("zz") return r.error`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("fragment itself should succeed: %s", res.Error)
	}
	msg, ok := res.Payload.(string)
	if !ok {
		t.Fatalf("payload = %T, want the error string", res.Payload)
	}
	if !strings.Contains(msg, "single character") || !strings.Contains(msg, "inventory letter") {
		t.Errorf("error = %q, want the raw message plus the hint", msg)
	}
	if len(res.Calls) != 1 || res.Calls[0].Success {
		t.Errorf("call records = %+v, want one failed eat", res.Calls)
	}
}

func TestExecuteRepeatedFastFragments(t *testing.T) {
	e, _ := newTestEngine(t)

	// A fragment that finishes almost instantly races its own cleanup
	// against the completion signal; every iteration must still report
	// the real outcome.
	for i := 0; i < 200; i++ {
		res, err := e.Execute(context.Background(), Submission{Source: `return 1 + 1`})
		if err != nil {
			t.Fatalf("iteration %d: Execute: %v", i, err)
		}
		if !res.Success {
			t.Fatalf("iteration %d: execution failed: %s", i, res.Error)
		}
		if got, ok := res.Payload.(int64); !ok || got != 2 {
			t.Fatalf("iteration %d: payload = %v (%T), want int64(2)", i, res.Payload, res.Payload)
		}
	}
}

func TestExecuteRecoversAfterTimeout(t *testing.T) {
	e, _ := newTestEngine(t)

	// An abandoned worker must not leave timeout state behind that
	// blocks or corrupts the next invocation.
	for i := 0; i < 20; i++ {
		_, err := e.Execute(context.Background(), Submission{
			Source:  `while true do end`,
			Timeout: 50 * time.Millisecond,
		})
		if !IsTimeout(err) {
			t.Fatalf("iteration %d: error = %v, want ErrTimeout", i, err)
		}

		res, err := e.Execute(context.Background(), Submission{
			Source: `
local s = game:stats()
local hp = s.hp
return hp > 0`,
		})
		if err != nil {
			t.Fatalf("iteration %d: Execute after timeout: %v", i, err)
		}
		if !res.Success {
			t.Fatalf("iteration %d: execution after timeout failed: %s", i, res.Error)
		}
		if res.Payload != true {
			t.Fatalf("iteration %d: payload = %v, want true", i, res.Payload)
		}
	}
}

func TestExecuteFreshStatePerInvocation(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.Execute(context.Background(), Submission{Source: `leak = 42`}); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	res, err := e.Execute(context.Background(), Submission{Source: `return leak`})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if res.Payload != nil {
		t.Errorf("payload = %v, want nil; globals must not survive invocations", res.Payload)
	}
}
