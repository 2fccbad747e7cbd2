package collateral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors. The engine maps these onto its classified error taxonomy;
// inside this package they stay plain so the ledger has no upward dependency.
var (
	// ErrNotStaked means the principal has no active stake to operate on.
	ErrNotStaked = errors.New("not staked")

	// ErrAlreadyStaked means a condition stake already exists for the id.
	ErrAlreadyStaked = errors.New("already staked")

	// ErrAlreadyReleased means the condition stake was already released or
	// forfeited.
	ErrAlreadyReleased = errors.New("already released")

	// ErrBelowMinimum means the stake would not meet the minimum threshold.
	ErrBelowMinimum = errors.New("stake below minimum")

	// ErrNoStake means no stake record exists for the key.
	ErrNoStake = errors.New("stake not found")

	// ErrOverflow means a balance addition would wrap.
	ErrOverflow = errors.New("balance overflow")

	// ErrTransferFailed means the outbound value transfer was rejected; the
	// enclosing operation rolled back in full.
	ErrTransferFailed = errors.New("transfer failed")
)

// ExecutorStake is the collateral account of one executor principal.
type ExecutorStake struct {
	Principal  string    `json:"principal"`
	Amount     uint64    `json:"amount"`
	StakedAt   time.Time `json:"staked_at"`
	Slashed    uint64    `json:"slashed"`
	Active     bool      `json:"active"`
	Executions uint64    `json:"executions"`
	Misses     uint64    `json:"misses"`
}

// ConditionStake is a one-shot escrow tied to a condition id.
type ConditionStake struct {
	Owner       string    `json:"owner"`
	ConditionID uint64    `json:"condition_id"`
	Amount      uint64    `json:"amount"`
	StakedAt    time.Time `json:"staked_at"`
	Released    bool      `json:"released"`
}

// Params are the ledger's economic thresholds.
type Params struct {
	// MinExecutorStake is the balance an executor account must hold to be
	// active.
	MinExecutorStake uint64

	// MinConditionStake is the minimum one-shot escrow per condition.
	MinConditionStake uint64

	// Treasury receives forfeited collateral.
	Treasury string
}

// TransferFunc delivers value to an external principal. A non-nil error
// aborts the enclosing ledger operation with no state change.
type TransferFunc func(ctx context.Context, to string, amount uint64) error

// Ledger holds executor stakes and per-condition escrow. Every mutating
// operation acquires the reentrancy guard first and the mutex second, so a
// transfer recipient calling back into the ledger fails fast instead of
// deadlocking or draining balances mid-operation.
type Ledger struct {
	mu    sync.RWMutex
	guard Guard

	params   Params
	transfer TransferFunc
	log      *SlashLog
	logger   zerolog.Logger
	clock    func() time.Time

	executors     map[string]*ExecutorStake
	executorIndex []string
	conditions    map[uint64]*ConditionStake

	totalStaked uint64
	totalEscrow uint64
}

// NewLedger creates a ledger. A nil transfer func makes outbound transfers
// no-ops, which is what tests and the local CLI use.
func NewLedger(params Params, transfer TransferFunc, logger zerolog.Logger) *Ledger {
	if transfer == nil {
		transfer = func(context.Context, string, uint64) error { return nil }
	}
	return &Ledger{
		params:     params,
		transfer:   transfer,
		log:        NewSlashLog(),
		logger:     logger.With().Str("component", "collateral-ledger").Logger(),
		clock:      time.Now,
		executors:  make(map[string]*ExecutorStake),
		conditions: make(map[uint64]*ConditionStake),
	}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Params returns the ledger thresholds.
func (l *Ledger) Params() Params {
	return l.params
}

// SlashHistory returns the append-only slash log.
func (l *Ledger) SlashHistory() *SlashLog {
	return l.log
}

// StakeExecutor deposits collateral for an executor. Deposits accumulate;
// the resulting balance must meet the minimum stake, but a top-up on an
// already-funded account does not need to meet it alone. The principal is
// registered in the executor index on first deposit.
func (l *Ledger) StakeExecutor(principal string, amount uint64) error {
	release, err := l.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	if principal == "" {
		return fmt.Errorf("principal must not be empty")
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero deposit", ErrBelowMinimum)
	}

	stake, exists := l.executors[principal]
	var balance uint64
	if exists {
		balance = stake.Amount
	}

	// All checks run before anything is written: a rejected first deposit
	// must not leave a phantom account or index entry behind.
	next, ok := CheckedAdd(balance, amount)
	if !ok {
		return ErrOverflow
	}
	if next < l.params.MinExecutorStake {
		return fmt.Errorf("%w: balance %d below minimum %d", ErrBelowMinimum, next, l.params.MinExecutorStake)
	}
	total, ok := CheckedAdd(l.totalStaked, amount)
	if !ok {
		return ErrOverflow
	}

	if !exists {
		stake = &ExecutorStake{Principal: principal}
		l.executors[principal] = stake
		l.executorIndex = append(l.executorIndex, principal)
	}
	stake.Amount = next
	stake.Active = true
	stake.StakedAt = l.clock()
	l.totalStaked = total

	l.logger.Info().
		Str("principal", principal).
		Uint64("amount", amount).
		Uint64("balance", stake.Amount).
		Msg("Executor stake deposited")

	return nil
}

// UnstakeExecutor exits an executor in full: the whole balance is zeroed,
// the account deactivated, and the balance transferred back atomically.
// There is no partial withdrawal.
func (l *Ledger) UnstakeExecutor(ctx context.Context, principal string) (uint64, error) {
	release, err := l.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	stake, exists := l.executors[principal]
	if !exists || !stake.Active || stake.Amount == 0 {
		return 0, ErrNotStaked
	}

	amount := stake.Amount
	if err := l.transfer(ctx, principal, amount); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	stake.Amount = 0
	stake.Active = false
	l.totalStaked = SaturatingSub(l.totalStaked, amount)

	l.logger.Info().
		Str("principal", principal).
		Uint64("amount", amount).
		Msg("Executor unstaked")

	return amount, nil
}

// SlashExecutor forfeits executor collateral. The effective slash is
// min(requested, balance): an over-request caps silently and records the
// capped amount, it never fails. The capped amount moves to the treasury,
// the miss counter increments, and the account deactivates when the
// remaining balance drops below the minimum stake. Returns the effective
// amount.
func (l *Ledger) SlashExecutor(ctx context.Context, principal string, requested uint64, reason string, conditionID uint64) (uint64, error) {
	release, err := l.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	stake, exists := l.executors[principal]
	if !exists || !stake.Active {
		return 0, ErrNotStaked
	}

	effective := EffectiveSlash(requested, stake.Amount)
	if effective > 0 {
		if err := l.transfer(ctx, l.params.Treasury, effective); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	stake.Amount = SaturatingSub(stake.Amount, effective)
	stake.Slashed += effective
	stake.Misses++
	if stake.Amount < l.params.MinExecutorStake {
		stake.Active = false
	}
	l.totalStaked = SaturatingSub(l.totalStaked, effective)

	if _, err := l.log.Append(principal, effective, reason, conditionID); err != nil {
		// The monetary mutation is already committed under the lock; a
		// hash failure here is unreachable with well-formed records.
		return effective, err
	}

	l.logger.Warn().
		Str("principal", principal).
		Uint64("requested", requested).
		Uint64("effective", effective).
		Uint64("remaining", stake.Amount).
		Str("reason", reason).
		Msg("Executor slashed")

	return effective, nil
}

// RecordExecution increments an executor's success counter. Reputation only,
// no monetary effect.
func (l *Ledger) RecordExecution(principal string) error {
	release, err := l.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	stake, exists := l.executors[principal]
	if !exists {
		return ErrNoStake
	}
	stake.Executions++
	return nil
}

// StakeCondition escrows collateral for a condition. One-shot: a second
// stake for the same id fails regardless of the caller.
func (l *Ledger) StakeCondition(owner string, conditionID uint64, amount uint64) error {
	release, err := l.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	if owner == "" {
		return fmt.Errorf("owner must not be empty")
	}
	if amount < l.params.MinConditionStake {
		return fmt.Errorf("%w: amount %d below minimum %d", ErrBelowMinimum, amount, l.params.MinConditionStake)
	}
	if _, exists := l.conditions[conditionID]; exists {
		return ErrAlreadyStaked
	}
	total, ok := CheckedAdd(l.totalEscrow, amount)
	if !ok {
		return ErrOverflow
	}

	l.conditions[conditionID] = &ConditionStake{
		Owner:       owner,
		ConditionID: conditionID,
		Amount:      amount,
		StakedAt:    l.clock(),
	}
	l.totalEscrow = total

	l.logger.Info().
		Str("owner", owner).
		Uint64("condition_id", conditionID).
		Uint64("amount", amount).
		Msg("Condition stake escrowed")

	return nil
}

// ReleaseConditionStake refunds the escrow to its owner in full. Terminal:
// a released stake can never be paid out again. Returns the owner and the
// refunded amount.
func (l *Ledger) ReleaseConditionStake(ctx context.Context, conditionID uint64) (string, uint64, error) {
	release, err := l.guard.Enter()
	if err != nil {
		return "", 0, err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	stake, exists := l.conditions[conditionID]
	if !exists {
		return "", 0, ErrNoStake
	}
	if stake.Released || stake.Amount == 0 {
		return "", 0, ErrAlreadyReleased
	}

	if err := l.transfer(ctx, stake.Owner, stake.Amount); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	stake.Released = true
	l.totalEscrow = SaturatingSub(l.totalEscrow, stake.Amount)

	l.logger.Info().
		Str("owner", stake.Owner).
		Uint64("condition_id", conditionID).
		Uint64("amount", stake.Amount).
		Msg("Condition stake released")

	return stake.Owner, stake.Amount, nil
}

// SlashConditionStake forfeits the full escrow to the treasury. No cap is
// needed: the escrow is always taken whole. Terminal like release.
func (l *Ledger) SlashConditionStake(ctx context.Context, conditionID uint64, reason string) (uint64, error) {
	release, err := l.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	l.mu.Lock()
	defer l.mu.Unlock()

	stake, exists := l.conditions[conditionID]
	if !exists {
		return 0, ErrNoStake
	}
	if stake.Released || stake.Amount == 0 {
		return 0, ErrAlreadyReleased
	}

	if err := l.transfer(ctx, l.params.Treasury, stake.Amount); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	stake.Released = true
	l.totalEscrow = SaturatingSub(l.totalEscrow, stake.Amount)

	l.logger.Warn().
		Str("owner", stake.Owner).
		Uint64("condition_id", conditionID).
		Uint64("amount", stake.Amount).
		Str("reason", reason).
		Msg("Condition stake forfeited")

	return stake.Amount, nil
}

// ExecutorStakeOf returns a snapshot of one executor account.
func (l *Ledger) ExecutorStakeOf(principal string) (ExecutorStake, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stake, exists := l.executors[principal]
	if !exists {
		return ExecutorStake{}, false
	}
	return *stake, true
}

// ConditionStakeOf returns a snapshot of one condition escrow.
func (l *Ledger) ConditionStakeOf(conditionID uint64) (ConditionStake, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stake, exists := l.conditions[conditionID]
	if !exists {
		return ConditionStake{}, false
	}
	return *stake, true
}

// ExecutorIndex returns every principal that has ever staked, in first-deposit
// order. The index is append-only.
func (l *Ledger) ExecutorIndex() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.executorIndex))
	copy(out, l.executorIndex)
	return out
}

// TotalStaked returns the executor pool total.
func (l *Ledger) TotalStaked() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalStaked
}

// TotalEscrow returns the condition escrow total.
func (l *Ledger) TotalEscrow() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalEscrow
}

// ExecutorCount returns the number of principals in the index.
func (l *Ledger) ExecutorCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.executorIndex)
}

// RestoreExecutorStake loads a persisted account during boot. It refuses to
// overwrite a live account.
func (l *Ledger) RestoreExecutorStake(stake ExecutorStake) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.executors[stake.Principal]; exists {
		return fmt.Errorf("executor %s already loaded", stake.Principal)
	}
	cp := stake
	l.executors[stake.Principal] = &cp
	l.executorIndex = append(l.executorIndex, stake.Principal)
	l.totalStaked += stake.Amount
	return nil
}

// RestoreConditionStake loads a persisted escrow during boot.
func (l *Ledger) RestoreConditionStake(stake ConditionStake) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.conditions[stake.ConditionID]; exists {
		return fmt.Errorf("condition stake %d already loaded", stake.ConditionID)
	}
	cp := stake
	l.conditions[stake.ConditionID] = &cp
	if !stake.Released {
		l.totalEscrow += stake.Amount
	}
	return nil
}
