package protocol

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/openkeeper/openkeeper/pkg/authz"
	"github.com/openkeeper/openkeeper/pkg/chain"
	"github.com/openkeeper/openkeeper/pkg/collateral"
	"github.com/openkeeper/openkeeper/pkg/telemetry"
)

// DefaultChallengePeriod is the challenge window in blocks.
const DefaultChallengePeriod = 300

// Params are the engine's protocol constants.
type Params struct {
	// ChallengePeriod is the number of blocks after an execution during
	// which it may be challenged. The deadline block itself is inclusive.
	ChallengePeriod uint64

	// ExecutionWindow is the number of blocks after a condition becomes met
	// during which an execution claim is considered fresh. The engine
	// records the constant; the calling layer enforces it against the
	// met-block reported by IsReady.
	ExecutionWindow uint64
}

// Persister receives committed record mutations. Memory is authoritative;
// the persister is the indexer-facing copy, so persist failures are logged
// and never roll back a committed operation.
type Persister interface {
	SaveCondition(ctx context.Context, c *Condition) error
	SaveProof(ctx context.Context, p *ExecutionProof) error
}

// Engine is the protocol core: the condition registry, its lifecycle state
// machine, the proof store, and the authorized front door to the collateral
// ledger. One mutex serializes all mutating operations, standing in for the
// total order of the external log.
type Engine struct {
	mu sync.Mutex

	params Params
	clock  chain.Clock
	gate   *authz.Gate
	ledger *collateral.Ledger

	conditions   map[uint64]*Condition
	proofs       map[uint64]*ExecutionProof
	byRegistrant map[string][]uint64
	nextID       uint64

	counters Counters

	persister Persister
	tel       *telemetry.Telemetry
}

// NewEngine creates an engine. Telemetry and persistence are optional and
// attached with the With setters before first use.
func NewEngine(params Params, clock chain.Clock, gate *authz.Gate, ledger *collateral.Ledger) *Engine {
	if params.ChallengePeriod == 0 {
		params.ChallengePeriod = DefaultChallengePeriod
	}
	return &Engine{
		params:       params,
		clock:        clock,
		gate:         gate,
		ledger:       ledger,
		conditions:   make(map[uint64]*Condition),
		proofs:       make(map[uint64]*ExecutionProof),
		byRegistrant: make(map[string][]uint64),
		nextID:       1,
	}
}

// WithTelemetry attaches the telemetry stack.
func (e *Engine) WithTelemetry(tel *telemetry.Telemetry) *Engine {
	e.tel = tel
	return e
}

// WithPersister attaches the write-through persister.
func (e *Engine) WithPersister(p Persister) *Engine {
	e.persister = p
	return e
}

// Params returns the protocol constants.
func (e *Engine) Params() Params {
	return e.params
}

// Gate returns the authorization gate.
func (e *Engine) Gate() *authz.Gate {
	return e.gate
}

// Ledger returns the collateral ledger.
func (e *Engine) Ledger() *collateral.Ledger {
	return e.ledger
}

// Register creates a condition in the REGISTERED state and returns its
// snapshot. Ids are assigned exactly once, strictly increasing, never reused.
func (e *Engine) Register(ctx context.Context, registrant string, typ TriggerType, value uint64, target Target, repeatable bool) (*Condition, error) {
	if registrant == "" {
		return nil, NewValidationError("registrant must not be empty").WithOperation("register")
	}
	if err := typ.Validate(); err != nil {
		return nil, NewValidationError(err.Error()).WithOperation("register")
	}
	if value == 0 {
		return nil, NewValidationError("trigger value must be positive").WithOperation("register")
	}
	if target.IsZero() {
		return nil, NewValidationError("target must not be empty").WithOperation("register")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	head := e.clock.Head()
	c := &Condition{
		ID:         e.nextID,
		Registrant: registrant,
		Type:       typ,
		Value:      value,
		Target:     target,
		Repeatable: repeatable,
		Status:     StatusRegistered,
		CreatedAt:  head.Time,
	}
	e.nextID++
	e.conditions[c.ID] = c
	e.byRegistrant[registrant] = append(e.byRegistrant[registrant], c.ID)
	e.counters.Registered++

	e.persistCondition(ctx, c)
	if e.tel != nil {
		e.tel.Metrics.RecordConditionRegistered(string(typ))
		_ = e.tel.Events.PublishConditionRegistered(c.ID, registrant, string(typ), head.Number)
	}

	return c.Clone(), nil
}

// Activate arms a REGISTERED condition. Registrant only; re-activating an
// already-ACTIVE condition fails explicitly rather than succeeding silently.
func (e *Engine) Activate(ctx context.Context, id uint64, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.condition(id, "activate")
	if err != nil {
		return err
	}
	if caller != c.Registrant {
		return NewAuthorizationError("only the registrant may activate").
			WithOperation("activate").WithCondition(id).WithPrincipal(caller)
	}
	if err := e.transition(c, StatusActive, "activate"); err != nil {
		return err
	}

	head := e.clock.Head()
	c.ActivatedAt = head.Time
	e.counters.Active++

	e.persistCondition(ctx, c)
	if e.tel != nil {
		e.tel.Metrics.SetActiveConditions(e.counters.Active)
		_ = e.tel.Events.PublishConditionActivated(id, c.Registrant, head.Number)
	}

	return nil
}

// Cancel terminates a condition. Registrant or owner; only REGISTERED and
// ACTIVE conditions can be cancelled.
func (e *Engine) Cancel(ctx context.Context, id uint64, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.condition(id, "cancel")
	if err != nil {
		return err
	}
	if caller != c.Registrant && !e.gate.IsOwner(caller) {
		return NewAuthorizationError("only the registrant or the owner may cancel").
			WithOperation("cancel").WithCondition(id).WithPrincipal(caller)
	}
	wasActive := c.Status == StatusActive
	if err := e.transition(c, StatusCancelled, "cancel"); err != nil {
		return err
	}

	e.counters.Cancelled++
	if wasActive {
		e.counters.Active--
	}

	e.persistCondition(ctx, c)
	if e.tel != nil {
		e.tel.Metrics.RecordConditionCancelled()
		e.tel.Metrics.SetActiveConditions(e.counters.Active)
		_ = e.tel.Events.PublishConditionCancelled(id, caller, e.clock.Head().Number)
	}

	return nil
}

// RecordExecution stamps an execution onto an ACTIVE condition: the proof is
// created (or overwritten for a repeatable cycle) with valid=true, and the
// challenge deadline opens at head + ChallengePeriod, inclusive. Repeatable
// conditions re-open to ACTIVE immediately; the proof and deadline remain
// recorded for the cycle that just completed.
func (e *Engine) RecordExecution(ctx context.Context, id uint64, executor, proofRef string) (*Condition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.condition(id, "record_execution")
	if err != nil {
		return nil, err
	}
	if !e.gate.IsExecutor(executor) {
		return nil, NewAuthorizationError("caller is not an authorized executor").
			WithOperation("record_execution").WithCondition(id).WithPrincipal(executor)
	}
	if err := e.transition(c, StatusExecuted, "record_execution"); err != nil {
		return nil, err
	}

	head := e.clock.Head()
	c.LastExecutedAt = head.Time
	c.LastExecutedBlock = head.Number
	c.LastExecutor = executor
	c.LastProofRef = proofRef
	c.ChallengeDeadline = head.Number + e.params.ChallengePeriod

	e.proofs[id] = &ExecutionProof{
		ConditionID: id,
		Executor:    executor,
		Block:       head.Number,
		Timestamp:   head.Time,
		Ref:         proofRef,
		Challenged:  false,
		Valid:       true,
		Resolved:    false,
	}

	if c.Repeatable {
		if err := e.transition(c, StatusActive, "record_execution"); err != nil {
			return nil, err
		}
	} else {
		e.counters.Active--
	}
	e.counters.Executed++

	// Reputation side effect, best-effort: executors without a collateral
	// account are simply not counted, and a bookkeeping failure never
	// unwinds the committed execution.
	if err := e.ledger.RecordExecution(executor); err != nil && !errors.Is(err, collateral.ErrNoStake) && e.tel != nil {
		e.tel.Logger.WithError(err).WithPrincipal(executor).Warn("failed to record executor reputation")
	}

	e.persistCondition(ctx, c)
	e.persistProof(ctx, e.proofs[id])
	if e.tel != nil {
		e.tel.Metrics.RecordConditionExecuted(string(c.Type))
		e.tel.Metrics.SetActiveConditions(e.counters.Active)
		_ = e.tel.Events.PublishConditionExecuted(id, executor, proofRef, head.Number, c.ChallengeDeadline)
	}

	return c.Clone(), nil
}

// IsReady reports whether an ACTIVE condition's trigger is met against the
// current block head. Price and balance triggers always report false here:
// they need the oracle collaborator and are evaluated by the calling layer.
func (e *Engine) IsReady(id uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.condition(id, "is_ready")
	if err != nil {
		return false, err
	}
	if c.Status != StatusActive {
		return false, nil
	}
	if !c.Type.ChainEvaluable() {
		return false, nil
	}

	head := e.clock.Head()
	switch c.Type {
	case TriggerBlockHeight:
		return head.Number >= c.Value, nil
	case TriggerTimestamp:
		return head.Unix() >= c.Value, nil
	default:
		return false, nil
	}
}

// ValidateTriggerFuture rejects chain-evaluable trigger values that are
// strictly in the past at registration time. A value equal to the current
// block or time is accepted. Interface-layer validation; the store itself
// accepts past values.
func ValidateTriggerFuture(typ TriggerType, value uint64, head chain.Head) error {
	switch typ {
	case TriggerBlockHeight:
		if value < head.Number {
			return NewValidationError(fmt.Sprintf("block trigger %d is in the past (head %d)", value, head.Number))
		}
	case TriggerTimestamp:
		if value < head.Unix() {
			return NewValidationError(fmt.Sprintf("timestamp trigger %d is in the past (now %d)", value, head.Unix()))
		}
	}
	return nil
}

// Condition returns a snapshot of one condition.
func (e *Engine) Condition(id uint64) (*Condition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.condition(id, "get")
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// Proof returns a snapshot of the execution proof for a condition, if one
// exists.
func (e *Engine) Proof(id uint64) (*ExecutionProof, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, exists := e.proofs[id]
	if !exists {
		return nil, NewStateError(fmt.Sprintf("no execution proof for condition %d", id)).
			WithCode(ErrCodeNoProof).WithCondition(id)
	}
	return p.Clone(), nil
}

// ConditionsByRegistrant returns snapshots of the registrant's conditions in
// registration order.
func (e *Engine) ConditionsByRegistrant(registrant string) []*Condition {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.byRegistrant[registrant]
	out := make([]*Condition, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.conditions[id].Clone())
	}
	return out
}

// Conditions returns snapshots of every condition, ordered by id.
func (e *Engine) Conditions() []*Condition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Condition, 0, len(e.conditions))
	for _, c := range e.conditions {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counters returns the aggregate totals.
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// StakeExecutor deposits executor collateral through the ledger.
func (e *Engine) StakeExecutor(ctx context.Context, principal string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ledger.StakeExecutor(principal, amount); err != nil {
		return e.mapLedgerError("stake_executor", principal, err)
	}

	if e.tel != nil {
		stake, _ := e.ledger.ExecutorStakeOf(principal)
		e.tel.Metrics.SetTotalStaked(e.ledger.TotalStaked())
		e.tel.Metrics.SetExecutorCount(e.ledger.ExecutorCount())
		_ = e.tel.Events.PublishExecutorStaked(principal, amount, stake.Amount)
	}
	return nil
}

// UnstakeExecutor exits the caller's executor stake in full.
func (e *Engine) UnstakeExecutor(ctx context.Context, principal string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	amount, err := e.ledger.UnstakeExecutor(ctx, principal)
	if err != nil {
		return 0, e.mapLedgerError("unstake_executor", principal, err)
	}

	if e.tel != nil {
		e.tel.Metrics.SetTotalStaked(e.ledger.TotalStaked())
		_ = e.tel.Events.PublishExecutorUnstaked(principal, amount)
	}
	return amount, nil
}

// SlashExecutor forfeits executor collateral. Slasher or owner only. The
// effective amount is capped at the balance and returned; an over-request
// never fails.
func (e *Engine) SlashExecutor(ctx context.Context, caller, principal string, amount uint64, reason string, conditionID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.gate.IsSlasher(caller) {
		return 0, NewAuthorizationError("only the slasher or the owner may slash").
			WithOperation("slash_executor").WithPrincipal(caller)
	}

	effective, err := e.ledger.SlashExecutor(ctx, principal, amount, reason, conditionID)
	if err != nil {
		return 0, e.mapLedgerError("slash_executor", principal, err)
	}

	if e.tel != nil {
		e.tel.Metrics.RecordSlash("executor", effective)
		e.tel.Metrics.SetTotalStaked(e.ledger.TotalStaked())
		_ = e.tel.Events.PublishExecutorSlashed(principal, amount, effective, reason, conditionID)
	}
	return effective, nil
}

// RecordExecutorSuccess bumps an executor's reputation counter. Slasher or
// owner only; no monetary effect.
func (e *Engine) RecordExecutorSuccess(caller, principal string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.gate.IsSlasher(caller) {
		return NewAuthorizationError("only the slasher or the owner may record executions").
			WithOperation("record_executor_success").WithPrincipal(caller)
	}
	if err := e.ledger.RecordExecution(principal); err != nil {
		return e.mapLedgerError("record_executor_success", principal, err)
	}
	return nil
}

// StakeCondition escrows collateral for a condition id. One-shot.
func (e *Engine) StakeCondition(ctx context.Context, owner string, conditionID uint64, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ledger.StakeCondition(owner, conditionID, amount); err != nil {
		return e.mapLedgerError("stake_condition", owner, err)
	}

	if e.tel != nil {
		e.tel.Metrics.SetTotalEscrow(e.ledger.TotalEscrow())
		_ = e.tel.Events.PublishStakeEscrowed(owner, conditionID, amount)
	}
	return nil
}

// ReleaseConditionStake refunds a condition escrow in full. Stake owner or
// protocol owner only; terminal.
func (e *Engine) ReleaseConditionStake(ctx context.Context, conditionID uint64, caller string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stake, exists := e.ledger.ConditionStakeOf(conditionID)
	if !exists {
		return 0, NewStateError(fmt.Sprintf("no stake for condition %d", conditionID)).
			WithCode(ErrCodeNotStaked).WithOperation("release_condition_stake").WithCondition(conditionID)
	}
	if caller != stake.Owner && !e.gate.IsOwner(caller) {
		return 0, NewAuthorizationError("only the stake owner or the protocol owner may release").
			WithOperation("release_condition_stake").WithCondition(conditionID).WithPrincipal(caller)
	}

	owner, amount, err := e.ledger.ReleaseConditionStake(ctx, conditionID)
	if err != nil {
		return 0, e.mapLedgerError("release_condition_stake", caller, err)
	}

	if e.tel != nil {
		e.tel.Metrics.SetTotalEscrow(e.ledger.TotalEscrow())
		_ = e.tel.Events.PublishStakeReleased(owner, conditionID, amount)
	}
	return amount, nil
}

// SlashConditionStake forfeits a condition escrow to the treasury in full.
// Slasher or owner only; terminal.
func (e *Engine) SlashConditionStake(ctx context.Context, conditionID uint64, reason, caller string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.gate.IsSlasher(caller) {
		return 0, NewAuthorizationError("only the slasher or the owner may forfeit stakes").
			WithOperation("slash_condition_stake").WithCondition(conditionID).WithPrincipal(caller)
	}

	stake, exists := e.ledger.ConditionStakeOf(conditionID)
	if !exists {
		return 0, NewStateError(fmt.Sprintf("no stake for condition %d", conditionID)).
			WithCode(ErrCodeNotStaked).WithOperation("slash_condition_stake").WithCondition(conditionID)
	}

	amount, err := e.ledger.SlashConditionStake(ctx, conditionID, reason)
	if err != nil {
		return 0, e.mapLedgerError("slash_condition_stake", caller, err)
	}

	if e.tel != nil {
		e.tel.Metrics.RecordSlash("condition", amount)
		e.tel.Metrics.SetTotalEscrow(e.ledger.TotalEscrow())
		_ = e.tel.Events.PublishStakeForfeited(stake.Owner, conditionID, amount, reason)
	}
	return amount, nil
}

// RestoreCondition loads a persisted condition during boot. It refuses to
// overwrite a live record and keeps the id sequence ahead of everything
// loaded. Counters are rebuilt from the restored statuses; the executed
// counter recovers one count per condition that has executed at least once,
// which undercounts repeatable cycles (the event history keeps the full
// count).
func (e *Engine) RestoreCondition(c *Condition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.conditions[c.ID]; exists {
		return fmt.Errorf("condition %d already loaded", c.ID)
	}

	cp := c.Clone()
	e.conditions[cp.ID] = cp
	e.byRegistrant[cp.Registrant] = append(e.byRegistrant[cp.Registrant], cp.ID)
	if cp.ID >= e.nextID {
		e.nextID = cp.ID + 1
	}

	e.counters.Registered++
	switch cp.Status {
	case StatusActive:
		e.counters.Active++
	case StatusCancelled:
		e.counters.Cancelled++
	case StatusSlashed:
		e.counters.Slashed++
	}
	if cp.LastExecutedBlock > 0 {
		e.counters.Executed++
	}

	return nil
}

// RestoreProof loads a persisted execution proof during boot.
func (e *Engine) RestoreProof(p *ExecutionProof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.proofs[p.ConditionID]; exists {
		return fmt.Errorf("proof for condition %d already loaded", p.ConditionID)
	}
	if _, exists := e.conditions[p.ConditionID]; !exists {
		return fmt.Errorf("proof references unknown condition %d", p.ConditionID)
	}

	e.proofs[p.ConditionID] = p.Clone()
	if p.Challenged {
		e.counters.Challenged++
	}

	return nil
}

// condition looks up a record or fails with a NOT_FOUND state error. Caller
// holds the mutex.
func (e *Engine) condition(id uint64, op string) (*Condition, error) {
	c, exists := e.conditions[id]
	if !exists {
		return nil, NewStateError(fmt.Sprintf("condition %d not found", id)).
			WithCode(ErrCodeNotFound).WithOperation(op).WithCondition(id)
	}
	return c, nil
}

// transition applies a status change through the centralized validator.
// Caller holds the mutex.
func (e *Engine) transition(c *Condition, next ConditionStatus, op string) error {
	if !c.Status.CanTransitionTo(next) {
		err := NewStateError(fmt.Sprintf("cannot transition from %s to %s", c.Status, next)).
			WithOperation(op).WithCondition(c.ID)
		if c.Status.IsTerminal() {
			err = err.WithCode(ErrCodeTerminalStatus)
		}
		return err
	}
	c.Status = next
	return nil
}

// mapLedgerError translates ledger sentinels into the classified taxonomy.
func (e *Engine) mapLedgerError(op, principal string, err error) error {
	var mapped *Error
	switch {
	case errors.Is(err, collateral.ErrReentrancy):
		mapped = NewReentrancyError("nested call into a guarded operation")
	case errors.Is(err, collateral.ErrBelowMinimum):
		mapped = NewInsufficientValueError(err.Error()).WithCode(ErrCodeBelowMinimum)
	case errors.Is(err, collateral.ErrNotStaked):
		mapped = NewStateError(err.Error()).WithCode(ErrCodeNotStaked)
	case errors.Is(err, collateral.ErrAlreadyStaked):
		mapped = NewStateError("already staked").WithCode(ErrCodeAlreadyStaked)
	case errors.Is(err, collateral.ErrAlreadyReleased):
		mapped = NewStateError("already released").WithCode(ErrCodeAlreadyReleased)
	case errors.Is(err, collateral.ErrNoStake):
		mapped = NewStateError(err.Error()).WithCode(ErrCodeNotStaked)
	case errors.Is(err, collateral.ErrTransferFailed):
		mapped = NewTransferError("outbound transfer rejected", err)
	default:
		mapped = NewValidationError(err.Error())
	}
	mapped = mapped.WithOperation(op).WithPrincipal(principal)

	if e.tel != nil {
		e.tel.Metrics.RecordError(string(mapped.Kind), mapped.Code)
	}
	return mapped
}

// persistCondition write-throughs a committed record. Failures are logged,
// never propagated: memory is authoritative.
func (e *Engine) persistCondition(ctx context.Context, c *Condition) {
	if e.persister == nil {
		return
	}
	if err := e.persister.SaveCondition(ctx, c); err != nil && e.tel != nil {
		e.tel.Logger.WithError(err).WithConditionID(c.ID).Error("failed to persist condition")
	}
}

// persistProof write-throughs a committed proof.
func (e *Engine) persistProof(ctx context.Context, p *ExecutionProof) {
	if e.persister == nil {
		return
	}
	if err := e.persister.SaveProof(ctx, p); err != nil && e.tel != nil {
		e.tel.Logger.WithError(err).WithConditionID(p.ConditionID).Error("failed to persist proof")
	}
}
