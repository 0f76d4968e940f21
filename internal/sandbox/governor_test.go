package sandbox

import (
	"context"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func TestGovernorArmAndRelease(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	var g governor
	ctx, release, err := g.arm(context.Background(), L, time.Minute)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	if L.Context() == nil {
		t.Fatal("arming should install a context on the state")
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("armed context should carry a deadline")
	}

	release()
	if L.Context() != nil {
		t.Error("release should remove the installed context")
	}
	if ctx.Err() == nil {
		t.Error("release should cancel the deadline context")
	}
}

func TestGovernorDoubleArm(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	var g governor
	_, release, err := g.arm(context.Background(), L, time.Minute)
	if err != nil {
		t.Fatalf("first arm: %v", err)
	}
	defer release()

	if _, _, err := g.arm(context.Background(), L, time.Minute); err != ErrGovernorArmed {
		t.Fatalf("second arm error = %v, want ErrGovernorArmed", err)
	}
}

func TestGovernorReleaseIdempotent(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	var g governor
	_, release, err := g.arm(context.Background(), L, time.Minute)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	release()
	release() // must be safe to call again

	// Disarmed: a new invocation can arm.
	_, release2, err := g.arm(context.Background(), L, time.Minute)
	if err != nil {
		t.Fatalf("re-arm after release: %v", err)
	}
	release2()
}

func TestGovernorRestoresPriorContext(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	type key struct{}
	prior := context.WithValue(context.Background(), key{}, "outer")
	L.SetContext(prior)

	var g governor
	_, release, err := g.arm(context.Background(), L, time.Minute)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	release()

	got := L.Context()
	if got == nil || got.Value(key{}) != "outer" {
		t.Error("release should restore the prior context")
	}
}
