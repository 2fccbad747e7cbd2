package collateral

import "math"

// SaturatingSub returns max(a-b, 0). It is the only subtraction the ledger
// performs on balances: an over-request caps at the available amount instead
// of underflowing or failing.
func SaturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// EffectiveSlash returns the amount a slash of `requested` actually removes
// from a balance of `available`: min(requested, available).
func EffectiveSlash(requested, available uint64) uint64 {
	if requested > available {
		return available
	}
	return requested
}

// CheckedAdd returns a+b and false on overflow. Stake top-ups refuse to wrap.
func CheckedAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}
