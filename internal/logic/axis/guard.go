package axis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/LensGo/internal/debug"
)

// Guard lets at most one axis pulse and sample at a time. Both rings
// share one current shunt, so interleaved motion would make a stall
// reading impossible to attribute.
type Guard struct {
	sem  chan struct{}
	wait time.Duration

	mu     sync.Mutex
	holder string
}

// NewGuard returns a guard. A zero wait makes Acquire fail immediately
// with ErrAxisBusy when the guard is held.
func NewGuard(wait time.Duration) *Guard {
	return &Guard{
		sem:  make(chan struct{}, 1),
		wait: wait,
	}
}

// TryAcquire takes the guard for owner without waiting.
func (g *Guard) TryAcquire(owner string) bool {
	select {
	case g.sem <- struct{}{}:
		g.setHolder(owner)
		return true
	default:
		return false
	}
}

// Acquire takes the guard for owner, waiting up to the configured wait
// or until ctx is done.
func (g *Guard) Acquire(ctx context.Context, owner string) error {
	if g.TryAcquire(owner) {
		return nil
	}
	if g.wait <= 0 {
		return g.busy(owner)
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	select {
	case g.sem <- struct{}{}:
		g.setHolder(owner)
		return nil
	case <-timer.C:
		return g.busy(owner)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s gave up waiting: %v", ErrAxisBusy, owner, ctx.Err())
	}
}

// Release frees the guard. Releasing a free guard panics, as it would
// mean two axes believed they were active.
func (g *Guard) Release() {
	g.mu.Lock()
	owner := g.holder
	g.holder = ""
	g.mu.Unlock()

	select {
	case <-g.sem:
		debug.Trace("guard released by %s", owner)
	default:
		panic("axis: release of unheld motion guard")
	}
}

// Holder returns the active axis name, or "" when idle.
func (g *Guard) Holder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder
}

func (g *Guard) setHolder(owner string) {
	g.mu.Lock()
	g.holder = owner
	g.mu.Unlock()
	debug.Trace("guard acquired by %s", owner)
}

func (g *Guard) busy(owner string) error {
	holder := g.Holder()
	debug.Live("%s refused: %s is active", owner, holder)
	return fmt.Errorf("%w: %s requested while %s is active", ErrAxisBusy, owner, holder)
}
