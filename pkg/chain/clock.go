// Package chain abstracts the externally-ordered event log the protocol runs
// against. The engine never waits on wall-clock time; every deadline is a
// comparison against the head supplied by a Clock.
package chain

import (
	"sync"
	"time"
)

// Head is the current tip of the external log: a monotonically increasing
// block number and its timestamp.
type Head struct {
	// Number is the block height.
	Number uint64 `json:"number"`

	// Time is the block timestamp.
	Time time.Time `json:"time"`
}

// Unix returns the head timestamp as unix seconds, the unit trigger values
// are registered in.
func (h Head) Unix() uint64 {
	if h.Time.IsZero() || h.Time.Unix() < 0 {
		return 0
	}
	return uint64(h.Time.Unix())
}

// Clock supplies the current head. Implementations are expected to be
// monotone: Head never goes backwards.
type Clock interface {
	Head() Head
}

// ManualClock is a Clock driven explicitly by the caller. The serve loop
// advances it from the chain feed; tests advance it directly.
type ManualClock struct {
	mu   sync.RWMutex
	head Head
}

// NewManualClock creates a manual clock starting at the given head.
func NewManualClock(number uint64, ts time.Time) *ManualClock {
	return &ManualClock{head: Head{Number: number, Time: ts}}
}

// Head returns the current head.
func (c *ManualClock) Head() Head {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// SetHead moves the clock to a new head. Heads that would move the clock
// backwards are ignored.
func (c *ManualClock) SetHead(h Head) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.Number < c.head.Number {
		return
	}
	c.head = h
}

// AdvanceBlocks moves the head forward by n blocks without touching the
// timestamp.
func (c *ManualClock) AdvanceBlocks(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.Number += n
}

// AdvanceTime moves the head timestamp forward by d.
func (c *ManualClock) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.Time = c.head.Time.Add(d)
}
