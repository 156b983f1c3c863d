package basis

import (
	"sync/atomic"
	"time"
)

// LedgerClock is the daemon clock: wall time plus a height counter the ledger
// bumps once per committed mutating command.
type LedgerClock struct {
	height atomic.Uint64
}

func NewLedgerClock(height uint64) *LedgerClock {
	c := &LedgerClock{}
	c.height.Store(height)
	return c
}

func (c *LedgerClock) Now() time.Time { return time.Now() }
func (c *LedgerClock) Height() uint64 { return c.height.Load() }
func (c *LedgerClock) Tick() uint64 { return c.height.Add(1) }
func (c *LedgerClock) Set(h uint64) { c.height.Store(h) }

// ManualClock is the test clock - both time and height advance only when told.
type ManualClock struct {
	T time.Time
	H uint64
}

func (c *ManualClock) Now() time.Time { return c.T }
func (c *ManualClock) Height() uint64 { return c.H }

func (c *ManualClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
func (c *ManualClock) NextBlock()              { c.H++ }
