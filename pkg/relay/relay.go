// Package relay is the thin call-dispatch collaborator: given a condition's
// target and payload it performs the external call and reports the outcome.
// The protocol core only records the outcome reference.
package relay

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/sha3"
)

// Result is the outcome of one dispatch.
type Result struct {
	// ConditionID is the condition the dispatch served.
	ConditionID uint64 `json:"condition_id"`

	// Address is the target that was called.
	Address string `json:"address"`

	// Success reports whether the call completed.
	Success bool `json:"success"`

	// Reason carries the failure reason when Success is false.
	Reason string `json:"reason,omitempty"`

	// Ref is the opaque proof-of-action reference recorded with the
	// execution proof.
	Ref string `json:"ref"`
}

// Relay performs the external call bound to a condition.
type Relay interface {
	Dispatch(ctx context.Context, conditionID uint64, address string, payload []byte) (Result, error)
}

// Recorder is a loopback relay: it performs no external call, derives a
// deterministic Keccak-256 reference over the dispatch inputs, and keeps the
// history for inspection. The CLI and tests use it as the relay collaborator.
type Recorder struct {
	mu      sync.Mutex
	history []Result
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Dispatch implements Relay.
func (r *Recorder) Dispatch(_ context.Context, conditionID uint64, address string, payload []byte) (Result, error) {
	res := Result{
		ConditionID: conditionID,
		Address:     address,
		Success:     true,
		Ref:         Ref(conditionID, address, payload),
	}

	r.mu.Lock()
	r.history = append(r.history, res)
	r.mu.Unlock()

	return res, nil
}

// History returns a snapshot of all dispatches in order.
func (r *Recorder) History() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.history))
	copy(out, r.history)
	return out
}

// Ref derives the deterministic proof reference for a dispatch: the
// Keccak-256 digest of the condition id, target address, and payload.
func Ref(conditionID uint64, address string, payload []byte) string {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], conditionID)

	h := sha3.NewLegacyKeccak256()
	h.Write(id[:])
	h.Write([]byte(address))
	h.Write(payload)
	return "keccak256:" + hex.EncodeToString(h.Sum(nil))
}
