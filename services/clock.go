package services

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock provides the current time. Every time-based rule reads it.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Roller is the source of every random draw.
type Roller interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
	// IntN returns a uniform draw in [0, n).
	IntN(n int) int
}

// RandRoller draws from math/rand/v2.
type RandRoller struct{}

func (RandRoller) Float64() float64 { return rand.Float64() }
func (RandRoller) IntN(n int) int   { return rand.IntN(n) }

// ScriptedRoller replays fixed draws. When a queue runs dry it returns
// Fallback for floats and 0 for ints.
type ScriptedRoller struct {
	mu       sync.Mutex
	floats   []float64
	ints     []int
	Fallback float64
}

func NewScriptedRoller(floats ...float64) *ScriptedRoller {
	return &ScriptedRoller{floats: floats, Fallback: 0.5}
}

// PushInts queues integer draws.
func (r *ScriptedRoller) PushInts(v ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ints = append(r.ints, v...)
}

// PushFloats queues float draws.
func (r *ScriptedRoller) PushFloats(v ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.floats = append(r.floats, v...)
}

func (r *ScriptedRoller) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return r.Fallback
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *ScriptedRoller) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	if n > 0 {
		v %= n
	}
	return v
}
