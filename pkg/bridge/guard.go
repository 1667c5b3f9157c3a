package bridge

// Scheduler queues fn to run after the current turn's call stack unwinds
// and before the next turn starts. *loop.Loop implements it.
type Scheduler interface {
	Defer(fn func())
}

// Guard is the reentrancy counter of one bridge. While it is active the
// bridge ignores changes on both sides: they are effects of a propagation
// already in flight.
//
// Exits are deferred to the scheduler, so observers that run synchronously
// inside the guarded write, however deeply nested, still see the guard
// active.
type Guard struct {
	depth int
	sched Scheduler
}

// NewGuard returns an inactive guard that defers exits to sched.
func NewGuard(sched Scheduler) *Guard {
	return &Guard{sched: sched}
}

// Enter increments the depth.
func (g *Guard) Enter() { g.depth++ }

// IsActive reports whether any enter is still pending its exit.
func (g *Guard) IsActive() bool { return g.depth > 0 }

// Depth returns the current depth.
func (g *Guard) Depth() int { return g.depth }

// ExitAsync schedules one decrement. The depth never drops below zero.
func (g *Guard) ExitAsync() {
	g.sched.Defer(func() {
		if g.depth > 0 {
			g.depth--
		}
	})
}
