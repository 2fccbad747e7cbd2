package collateral

import (
	"errors"
	"sync/atomic"
)

// ErrReentrancy is returned when a nested call tries to re-enter a guarded
// operation while one is already in flight.
var ErrReentrancy = errors.New("reentrant call into guarded operation")

// Guard is a scoped, non-blocking reentrancy lock. It is acquired at the
// entry of every mutating ledger operation and released via the returned
// function on every exit path, error paths included. A nested acquisition
// fails immediately rather than blocking or queueing, so a malicious
// transfer recipient cannot recursively drain collateral before balances
// are updated.
type Guard struct {
	held atomic.Bool
}

// Enter acquires the guard. It returns the release function, or
// ErrReentrancy if the guard is already held.
func (g *Guard) Enter() (func(), error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, ErrReentrancy
	}
	return func() { g.held.Store(false) }, nil
}

// Held reports whether the guard is currently held.
func (g *Guard) Held() bool {
	return g.held.Load()
}
