// Package protocol implements the optimistic automation core: the condition
// lifecycle state machine, execution proofs, and the challenge/arbitration
// window that makes execution claims contestable.
//
// A registrant registers a condition (a trigger rule bound to a target call),
// activates it, and an authorized executor later submits proof that it carried
// the condition out. Every execution opens a fixed challenge window measured in
// blocks; any party may dispute the claim inside that window and the arbiter
// resolves the dispute, marking the proof invalid and the condition slashed
// when the claim was fraudulent.
//
// All operations are serialized by the engine and commit atomically: a failed
// precondition leaves no partial writes. Monetary consequences live in
// pkg/collateral; the engine invokes the collateral ledger but never touches
// balances directly.
package protocol
