// Package collateral is the economic security ledger: executor stakes,
// per-condition escrow stakes, and the append-only slash history.
//
// All amounts are non-negative integers in the smallest native unit; there is
// no floating point anywhere in this package. Subtraction that could
// underflow is routed through the saturating primitives in amount.go, never
// through raw arithmetic. Slashing caps silently at the available balance by
// design: an arbiter is never blocked from penalizing misbehavior merely
// because the requested amount exceeds what remains.
//
// The ledger enforces monetary invariants only. Role checks (who may slash,
// who may release) belong to the engine that composes this package with
// pkg/authz.
package collateral
