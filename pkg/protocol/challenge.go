package protocol

import (
	"context"
	"fmt"
)

// Challenge disputes the most recent execution of a condition. Any principal
// may challenge; there is no challenger bond. A challenge must land at or
// before the deadline block (inclusive) and only one challenge is accepted
// per execution cycle.
func (e *Engine) Challenge(ctx context.Context, id uint64, challenger string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if challenger == "" {
		return NewValidationError("challenger must not be empty").WithOperation("challenge")
	}
	c, err := e.condition(id, "challenge")
	if err != nil {
		return err
	}
	p, exists := e.proofs[id]
	if !exists || p.Block == 0 {
		return NewStateError(fmt.Sprintf("condition %d has no execution to challenge", id)).
			WithCode(ErrCodeNoProof).WithOperation("challenge").WithCondition(id)
	}
	if p.Challenged {
		return NewStateError("already challenged").
			WithCode(ErrCodeAlreadyChallenged).WithOperation("challenge").WithCondition(id)
	}

	head := e.clock.Head()
	if head.Number > c.ChallengeDeadline {
		return NewStateError(fmt.Sprintf("challenge period expired at block %d (now %d)", c.ChallengeDeadline, head.Number)).
			WithCode(ErrCodePeriodExpired).WithOperation("challenge").WithCondition(id)
	}

	p.Challenged = true
	e.counters.Challenged++

	e.persistProof(ctx, p)
	if e.tel != nil {
		e.tel.Metrics.RecordChallengeOpened()
		_ = e.tel.Events.PublishExecutionChallenged(id, challenger, head.Number)
	}

	return nil
}

// Resolve rules on a pending challenge. Slasher or owner only. The verdict
// sets the proof's validity; an invalid execution moves the condition to
// SLASHED terminally. Resolution does not apply the monetary penalty itself:
// the arbiter drives SlashExecutor separately, so the verdict is recorded
// even when collateral is already exhausted.
func (e *Engine) Resolve(ctx context.Context, id uint64, valid bool, arbiter string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.gate.IsSlasher(arbiter) {
		return NewAuthorizationError("only the slasher or the owner may resolve").
			WithOperation("resolve").WithCondition(id).WithPrincipal(arbiter)
	}
	c, err := e.condition(id, "resolve")
	if err != nil {
		return err
	}
	p, exists := e.proofs[id]
	if !exists {
		return NewStateError(fmt.Sprintf("condition %d has no execution proof", id)).
			WithCode(ErrCodeNoProof).WithOperation("resolve").WithCondition(id)
	}
	if !p.Challenged {
		return NewStateError("no pending challenge").
			WithCode(ErrCodeNotChallenged).WithOperation("resolve").WithCondition(id)
	}
	if p.Resolved {
		return NewStateError("challenge already resolved").
			WithCode(ErrCodeAlreadyChallenged).WithOperation("resolve").WithCondition(id)
	}

	p.Valid = valid
	p.Resolved = true

	if !valid {
		wasActive := c.Status == StatusActive
		if err := e.transition(c, StatusSlashed, "resolve"); err != nil {
			return err
		}
		e.counters.Slashed++
		if wasActive {
			e.counters.Active--
		}
	}

	e.persistProof(ctx, p)
	e.persistCondition(ctx, c)
	if e.tel != nil {
		e.tel.Metrics.RecordChallengeResolved(valid)
		if !valid {
			e.tel.Metrics.RecordConditionSlashed()
			e.tel.Metrics.SetActiveConditions(e.counters.Active)
		}
		_ = e.tel.Events.PublishChallengeResolved(id, arbiter, valid, e.clock.Head().Number)
	}

	return nil
}
