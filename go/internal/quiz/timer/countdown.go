// Package timer runs the per-question countdown and the reveal pause that
// follows it.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCounting
	PhaseRevealing
)

func (p Phase) String() string {
	switch p {
	case PhaseCounting:
		return "counting"
	case PhaseRevealing:
		return "revealing"
	default:
		return "idle"
	}
}

// Hooks are called from the countdown goroutine with the run's context.
// The context is cancelled as soon as the run is replaced or stopped, so a
// hook that mutates shared state should check it under the same lock the
// caller of Start and Stop holds.
type Hooks struct {
	OnTick       func(ctx context.Context, remaining int)
	OnExpire     func(ctx context.Context)
	OnRevealDone func(ctx context.Context)
}

// Countdown drives at most one run at a time.
type Countdown struct {
	clock Clock

	mu        sync.Mutex
	cancel    context.CancelFunc
	run       uint64
	phase     Phase
	remaining int
}

func New(clock Clock) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock}
}

// Start cancels any previous run and counts down from seconds, one tick per
// second, then holds the reveal phase for grace. It returns the new run's
// context.
func (c *Countdown) Start(parent context.Context, seconds int, grace time.Duration, hooks Hooks) context.Context {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.run++
	run := c.run
	c.cancel = cancel
	c.phase = PhaseCounting
	c.remaining = max(seconds, 0)
	c.mu.Unlock()

	go c.loop(ctx, run, max(seconds, 0), grace, hooks)
	return ctx
}

// Stop cancels the current run. It does not wait for a hook in progress.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.run++
	c.phase = PhaseIdle
	c.remaining = 0
}

func (c *Countdown) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) loop(ctx context.Context, run uint64, seconds int, grace time.Duration, hooks Hooks) {
	start := c.clock.Now()

	// Each tick waits for its own deadline so slow hooks do not stretch
	// the question.
	for i := 1; i <= seconds; i++ {
		deadline := start.Add(time.Duration(i) * time.Second)
		if !c.sleepUntil(ctx, deadline) {
			return
		}
		remaining := seconds - i
		if !c.set(run, PhaseCounting, remaining) {
			return
		}
		if hooks.OnTick != nil {
			hooks.OnTick(ctx, remaining)
		}
	}

	if !c.set(run, PhaseRevealing, 0) {
		return
	}
	if hooks.OnExpire != nil {
		hooks.OnExpire(ctx)
	}

	if !c.sleepUntil(ctx, c.clock.Now().Add(grace)) {
		return
	}
	if !c.set(run, PhaseIdle, 0) {
		return
	}
	if hooks.OnRevealDone != nil {
		hooks.OnRevealDone(ctx)
	}
}

// set records progress for run, reporting false if run has been replaced.
func (c *Countdown) set(run uint64, phase Phase, remaining int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != run {
		return false
	}
	c.phase = phase
	c.remaining = remaining
	return true
}

func (c *Countdown) sleepUntil(ctx context.Context, deadline time.Time) bool {
	timer := c.clock.NewTimer(deadline.Sub(c.clock.Now()))
	select {
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return false
	case <-timer.Chan():
		return ctx.Err() == nil
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
