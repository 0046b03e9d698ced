// Package rt provides the two-context scheduler the looper runs on: a
// periodic real-time task and a cooperative maintenance context that may
// suspend it for short critical sections.
//
// Usage:
//
//	clk := rt.NewClock(recorder.FastTick)
//	go clk.Run(ctx, rt.Period(128, 44100)) // or call clk.Tick() from a device callback
//	clk.CriticalSection(func() { /* multi-field update */ })
package rt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Period returns the duration of one block of samples.
func Period(blockSamples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(blockSamples) * time.Second / time.Duration(sampleRate)
}

// Stats is a snapshot of clock counters.
type Stats struct {
	Ticks    uint64 // real-time task executions
	Deferred uint64 // ticks that arrived while a critical section was held
}

// Clock runs the real-time task once per Tick. Tick never blocks: when the
// maintenance context holds a critical section the tick is deferred and run
// as soon as the section ends, the way a masked interrupt fires on unmask.
// No tick is ever lost and the task never runs concurrently with itself or
// with a critical section.
type Clock struct {
	task func()

	mu      sync.Mutex
	pending atomic.Int64

	ticks    atomic.Uint64
	deferred atomic.Uint64
}

// NewClock returns a clock driving task.
func NewClock(task func()) *Clock {
	return &Clock{task: task}
}

// Tick signals one real-time period. Safe to call from any goroutine,
// typically an audio device callback.
func (c *Clock) Tick() {
	c.pending.Add(1)
	if !c.drain() {
		c.deferred.Add(1)
	}
}

// drain runs pending ticks if the clock is free. It reports false when the
// lock was busy; whoever holds it runs the pending ticks before leaving.
func (c *Clock) drain() bool {
	for c.pending.Load() > 0 {
		if !c.mu.TryLock() {
			return false
		}
		c.runPending()
		c.mu.Unlock()
	}
	return true
}

// runPending must be called with mu held.
func (c *Clock) runPending() {
	for c.pending.Load() > 0 {
		c.pending.Add(-1)
		c.ticks.Add(1)
		c.task()
	}
}

// CriticalSection runs fn with the real-time task suspended. Keep fn short:
// every tick that arrives meanwhile is delayed. Critical sections must not
// nest.
func (c *Clock) CriticalSection(fn func()) {
	c.mu.Lock()
	fn()
	c.runPending()
	c.mu.Unlock()
	c.drain()
}

// Run ticks the clock every period until ctx is done. It is the real-time
// context when no audio device drives the clock.
func (c *Clock) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Stats returns the current counters.
func (c *Clock) Stats() Stats {
	return Stats{
		Ticks:    c.ticks.Load(),
		Deferred: c.deferred.Load(),
	}
}
