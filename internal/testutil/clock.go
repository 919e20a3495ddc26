package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock returns a controllable time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// TickingClock advances by step after every call to Now, so consecutive
// ledger entries get distinct timestamps.
type TickingClock struct {
	StubClock
	step time.Duration
}

// NewTickingClock creates a TickingClock starting at FixedClock's time.
func NewTickingClock(step time.Duration) *TickingClock {
	return &TickingClock{
		StubClock: StubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		step:      step,
	}
}

func (c *TickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// StubIDGenerator returns sequential IDs: "op-1", "op-2", etc.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("op-%d", g.counter)
}
