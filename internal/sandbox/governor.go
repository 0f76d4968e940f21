package sandbox

import (
	"context"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// governor owns one invocation's execution deadline. Arming installs a
// deadline context on the interpreter state so the VM aborts tight loops
// at its instruction check; the engine watches the same context to
// abandon a worker stuck in a Go-side capability call. The engine creates
// a fresh governor per invocation, so a release running late (an
// abandoned worker draining) can never touch a later invocation's
// deadline; arming the same governor twice without releasing is a bug
// that ErrGovernorArmed surfaces.
type governor struct {
	mu    sync.Mutex
	armed bool
}

// arm installs a deadline context derived from parent onto L and returns
// it together with a release func. Release cancels the timer, restores
// whatever context the state carried before, and disarms; it is safe to
// call more than once and runs deferred on every exit path.
func (g *governor) arm(parent context.Context, L *lua.LState, timeout time.Duration) (context.Context, func(), error) {
	g.mu.Lock()
	if g.armed {
		g.mu.Unlock()
		return nil, nil, ErrGovernorArmed
	}
	g.armed = true
	g.mu.Unlock()

	if parent == nil {
		parent = context.Background()
	}
	prior := L.Context()
	ctx, cancel := context.WithTimeout(parent, timeout)
	L.SetContext(ctx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			if prior != nil {
				L.SetContext(prior)
			} else {
				L.RemoveContext()
			}
			g.mu.Lock()
			g.armed = false
			g.mu.Unlock()
		})
	}
	return ctx, release, nil
}
