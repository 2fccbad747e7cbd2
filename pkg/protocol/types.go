package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerType enumerates the rule kinds a condition can be registered with.
type TriggerType string

const (
	// TriggerBlockHeight fires once the chain reaches a block number.
	TriggerBlockHeight TriggerType = "block_height"

	// TriggerTimestamp fires once the chain timestamp reaches a unix time.
	TriggerTimestamp TriggerType = "timestamp"

	// TriggerPriceAbove fires when the oracle reports a pair above a threshold.
	TriggerPriceAbove TriggerType = "price_above"

	// TriggerPriceBelow fires when the oracle reports a pair below a threshold.
	TriggerPriceBelow TriggerType = "price_below"

	// TriggerBalanceThreshold fires when a principal's balance crosses a threshold.
	TriggerBalanceThreshold TriggerType = "balance_threshold"
)

// Validate checks if the trigger type is one of the enumerated kinds.
func (t TriggerType) Validate() error {
	switch t {
	case TriggerBlockHeight, TriggerTimestamp, TriggerPriceAbove,
		TriggerPriceBelow, TriggerBalanceThreshold:
		return nil
	default:
		return fmt.Errorf("invalid trigger type: %s", t)
	}
}

// ChainEvaluable reports whether the trigger can be decided from the block
// head alone. Price and balance triggers need the oracle collaborator and are
// evaluated by the calling layer, never by the condition store itself.
func (t TriggerType) ChainEvaluable() bool {
	return t == TriggerBlockHeight || t == TriggerTimestamp
}

// ConditionStatus is the lifecycle state of a condition.
type ConditionStatus string

const (
	// StatusRegistered is the initial state after registration.
	StatusRegistered ConditionStatus = "registered"

	// StatusActive means the condition is armed and executable once its
	// trigger is met.
	StatusActive ConditionStatus = "active"

	// StatusExecuted means an executor recorded a proof for the most recent
	// cycle. Repeatable conditions re-open to active immediately; this state
	// is terminal only for one-shot conditions.
	StatusExecuted ConditionStatus = "executed"

	// StatusCancelled is terminal; set by the registrant or the owner.
	StatusCancelled ConditionStatus = "cancelled"

	// StatusSlashed is terminal; set by adverse challenge resolution.
	StatusSlashed ConditionStatus = "slashed"
)

// Validate checks if the status is a known lifecycle state.
func (s ConditionStatus) Validate() error {
	switch s {
	case StatusRegistered, StatusActive, StatusExecuted, StatusCancelled, StatusSlashed:
		return nil
	default:
		return fmt.Errorf("invalid condition status: %s", s)
	}
}

// IsTerminal returns true once no further lifecycle transition may succeed.
func (s ConditionStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusSlashed
}

// CanTransitionTo is the single centralized transition validator. Every
// mutating operation routes through it; scattered status checks are not
// allowed to grow back.
func (s ConditionStatus) CanTransitionTo(next ConditionStatus) bool {
	switch s {
	case StatusRegistered:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		// Slash here covers adverse resolution of a repeatable condition
		// that already re-opened for its next cycle.
		return next == StatusExecuted || next == StatusCancelled || next == StatusSlashed
	case StatusExecuted:
		// Repeatable re-open, or slash on adverse resolution.
		return next == StatusActive || next == StatusSlashed
	default:
		return false
	}
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ConditionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ConditionStatus(str)
	return s.Validate()
}

// Target describes the action a condition is bound to: an address plus an
// opaque call payload handed to the execution relay.
type Target struct {
	// Address is the principal or contract the relay calls.
	Address string `json:"address" validate:"required"`

	// Payload is the opaque call data (function selector plus arguments).
	Payload []byte `json:"payload,omitempty"`
}

// IsZero reports whether the target is empty. Zero targets are rejected at
// registration.
func (t Target) IsZero() bool {
	return t.Address == ""
}

// Condition is one automation rule and its lifecycle bookkeeping.
type Condition struct {
	// ID is assigned exactly once at registration, strictly increasing,
	// never reused.
	ID uint64 `json:"id"`

	// Registrant is the owning principal.
	Registrant string `json:"registrant"`

	// Type is the trigger rule kind.
	Type TriggerType `json:"type"`

	// Value is the trigger threshold; semantics depend on Type
	// (block number, unix time, price, or balance in smallest units).
	Value uint64 `json:"value"`

	// Target is the bound action.
	Target Target `json:"target"`

	// Repeatable conditions cycle back to active after each execution.
	Repeatable bool `json:"repeatable"`

	// Status is the lifecycle state; transitions only via CanTransitionTo.
	Status ConditionStatus `json:"status"`

	// CreatedAt is the registration time.
	CreatedAt time.Time `json:"created_at"`

	// ActivatedAt is set on activation, zero before.
	ActivatedAt time.Time `json:"activated_at,omitzero"`

	// LastExecutedAt is the chain timestamp of the most recent execution.
	LastExecutedAt time.Time `json:"last_executed_at,omitzero"`

	// LastExecutedBlock is the block of the most recent execution.
	LastExecutedBlock uint64 `json:"last_executed_block,omitempty"`

	// LastExecutor is the principal that recorded the most recent execution.
	LastExecutor string `json:"last_executor,omitempty"`

	// LastProofRef is the external reference hash of the most recent proof.
	LastProofRef string `json:"last_proof_ref,omitempty"`

	// ChallengeDeadline is the last block (inclusive) at which the most
	// recent execution may be challenged. Zero means no window is pending.
	ChallengeDeadline uint64 `json:"challenge_deadline,omitempty"`
}

// Clone returns a snapshot copy safe to hand to callers.
func (c *Condition) Clone() *Condition {
	cp := *c
	if c.Target.Payload != nil {
		cp.Target.Payload = append([]byte(nil), c.Target.Payload...)
	}
	return &cp
}

// ExecutionProof records one proof-of-execution. There is at most one per
// condition; repeatable conditions overwrite it each cycle.
type ExecutionProof struct {
	// ConditionID ties the proof to its condition.
	ConditionID uint64 `json:"condition_id"`

	// Executor is the principal that submitted the proof.
	Executor string `json:"executor"`

	// Block is the block number the execution was recorded at.
	Block uint64 `json:"block"`

	// Timestamp is the chain time the execution was recorded at.
	Timestamp time.Time `json:"timestamp"`

	// Ref is the opaque proof-of-action reference hash.
	Ref string `json:"ref"`

	// Challenged is monotone false to true within one execution cycle.
	Challenged bool `json:"challenged"`

	// Valid is optimistically true and flips only through arbitration.
	Valid bool `json:"valid"`

	// Resolved is set once arbitration has ruled on a challenge for this
	// cycle; a second resolve fails. Cleared when a repeatable condition
	// records its next execution.
	Resolved bool `json:"resolved"`
}

// Clone returns a snapshot copy safe to hand to callers.
func (p *ExecutionProof) Clone() *ExecutionProof {
	cp := *p
	return &cp
}

// Counters are the aggregate totals exposed to observers.
type Counters struct {
	Registered uint64 `json:"registered"`
	Active     uint64 `json:"active"`
	Executed   uint64 `json:"executed"`
	Cancelled  uint64 `json:"cancelled"`
	Slashed    uint64 `json:"slashed"`
	Challenged uint64 `json:"challenged"`
}
