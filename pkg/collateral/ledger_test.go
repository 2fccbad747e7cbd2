package collateral

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func newTestLedger(transfer TransferFunc) *Ledger {
	return NewLedger(Params{
		MinExecutorStake:  100,
		MinConditionStake: 10,
		Treasury:          "treasury",
	}, transfer, zerolog.Nop())
}

func TestStakeExecutorAccumulates(t *testing.T) {
	l := newTestLedger(nil)

	if err := l.StakeExecutor("bob", 100); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}
	// A top-up below the minimum is fine once the account is funded.
	if err := l.StakeExecutor("bob", 25); err != nil {
		t.Fatalf("top-up: %v", err)
	}

	stake, ok := l.ExecutorStakeOf("bob")
	if !ok {
		t.Fatal("stake record missing")
	}
	if stake.Amount != 125 || !stake.Active {
		t.Fatalf("unexpected stake: %+v", stake)
	}
	if l.TotalStaked() != 125 {
		t.Fatalf("expected total 125, got %d", l.TotalStaked())
	}
}

func TestStakeExecutorValidation(t *testing.T) {
	l := newTestLedger(nil)

	if err := l.StakeExecutor("", 100); err == nil {
		t.Fatal("expected error for empty principal")
	}
	if err := l.StakeExecutor("bob", 0); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum for zero deposit, got %v", err)
	}
	if err := l.StakeExecutor("bob", 99); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
	if l.TotalStaked() != 0 {
		t.Fatalf("failed deposits moved the total: %d", l.TotalStaked())
	}
}

func TestRejectedFirstDepositLeavesNoAccount(t *testing.T) {
	l := newTestLedger(nil)

	if err := l.StakeExecutor("bob", 10); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}

	// All-or-nothing: the rejection must not leave a phantom account.
	if _, ok := l.ExecutorStakeOf("bob"); ok {
		t.Fatal("rejected deposit created an account record")
	}
	if l.ExecutorCount() != 0 {
		t.Fatalf("rejected deposit left %d entries in the executor index", l.ExecutorCount())
	}
	if len(l.ExecutorIndex()) != 0 {
		t.Fatalf("rejected deposit appears in the index: %v", l.ExecutorIndex())
	}
	if err := l.RecordExecution("bob"); !errors.Is(err, ErrNoStake) {
		t.Fatalf("phantom principal accrued reputation: %v", err)
	}

	// The principal can still stake correctly afterwards.
	if err := l.StakeExecutor("bob", 100); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}
	if l.ExecutorCount() != 1 {
		t.Fatalf("expected 1 indexed executor, got %d", l.ExecutorCount())
	}
}

func TestUnstakeExecutorFullExit(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	if err := l.StakeExecutor("bob", 200); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}

	amount, err := l.UnstakeExecutor(ctx, "bob")
	if err != nil {
		t.Fatalf("UnstakeExecutor: %v", err)
	}
	if amount != 200 {
		t.Fatalf("expected full exit of 200, got %d", amount)
	}

	stake, _ := l.ExecutorStakeOf("bob")
	if stake.Amount != 0 || stake.Active {
		t.Fatalf("account not zeroed: %+v", stake)
	}
	if l.TotalStaked() != 0 {
		t.Fatalf("total not reduced: %d", l.TotalStaked())
	}

	if _, err := l.UnstakeExecutor(ctx, "bob"); !errors.Is(err, ErrNotStaked) {
		t.Fatalf("expected ErrNotStaked, got %v", err)
	}
	if _, err := l.UnstakeExecutor(ctx, "nobody"); !errors.Is(err, ErrNotStaked) {
		t.Fatalf("expected ErrNotStaked for unknown principal, got %v", err)
	}
}

func TestUnstakeTransferFailureRollsBack(t *testing.T) {
	l := newTestLedger(func(ctx context.Context, to string, amount uint64) error {
		return fmt.Errorf("recipient rejected")
	})
	ctx := context.Background()

	if err := l.StakeExecutor("bob", 200); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}
	if _, err := l.UnstakeExecutor(ctx, "bob"); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	stake, _ := l.ExecutorStakeOf("bob")
	if stake.Amount != 200 || !stake.Active {
		t.Fatalf("failed transfer mutated the account: %+v", stake)
	}
	if l.TotalStaked() != 200 {
		t.Fatalf("failed transfer moved the total: %d", l.TotalStaked())
	}
}

func TestSlashExecutorCapsAtBalance(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	if err := l.StakeExecutor("bob", 100); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}

	effective, err := l.SlashExecutor(ctx, "bob", 250, "fraud", 1)
	if err != nil {
		t.Fatalf("SlashExecutor: %v", err)
	}
	if effective != 100 {
		t.Fatalf("expected capped slash of 100, got %d", effective)
	}

	stake, _ := l.ExecutorStakeOf("bob")
	if stake.Amount != 0 {
		t.Fatalf("balance must never go negative, got %d", stake.Amount)
	}
	if stake.Slashed != 100 {
		t.Fatalf("slashed total should record the effective amount, got %d", stake.Slashed)
	}
	if stake.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", stake.Misses)
	}
	if stake.Active {
		t.Fatal("account below minimum should deactivate")
	}
	if l.TotalStaked() != 0 {
		t.Fatalf("pool total should drop by the effective amount, got %d", l.TotalStaked())
	}

	rec := l.SlashHistory().Entries()
	if len(rec) != 1 || rec[0].Amount != 100 {
		t.Fatalf("slash history should hold the capped amount: %+v", rec)
	}
}

func TestSlashExecutorDeactivatesBelowMinimum(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	if err := l.StakeExecutor("bob", 150); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}

	// 150 - 60 = 90, below the 100 minimum.
	if _, err := l.SlashExecutor(ctx, "bob", 60, "missed window", 0); err != nil {
		t.Fatalf("SlashExecutor: %v", err)
	}
	stake, _ := l.ExecutorStakeOf("bob")
	if stake.Amount != 90 {
		t.Fatalf("expected remaining 90, got %d", stake.Amount)
	}
	if stake.Active {
		t.Fatal("account below minimum should deactivate")
	}

	// A deactivated account cannot be slashed again.
	if _, err := l.SlashExecutor(ctx, "bob", 10, "again", 0); !errors.Is(err, ErrNotStaked) {
		t.Fatalf("expected ErrNotStaked, got %v", err)
	}
}

func TestSlashExecutorUnknown(t *testing.T) {
	l := newTestLedger(nil)
	if _, err := l.SlashExecutor(context.Background(), "nobody", 10, "x", 0); !errors.Is(err, ErrNotStaked) {
		t.Fatalf("expected ErrNotStaked, got %v", err)
	}
}

func TestReentrantTransferFailsFast(t *testing.T) {
	var l *Ledger
	l = newTestLedger(func(ctx context.Context, to string, amount uint64) error {
		// A malicious recipient calling back into the ledger mid-operation.
		return l.StakeExecutor("mallory", 100)
	})
	ctx := context.Background()

	if err := l.StakeExecutor("bob", 200); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}

	_, err := l.UnstakeExecutor(ctx, "bob")
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// The nested call was refused and the outer operation rolled back.
	stake, _ := l.ExecutorStakeOf("bob")
	if stake.Amount != 200 || !stake.Active {
		t.Fatalf("reentrant attempt mutated the account: %+v", stake)
	}
	if _, ok := l.ExecutorStakeOf("mallory"); ok {
		t.Fatal("nested stake must not commit")
	}
}

func TestRecordExecution(t *testing.T) {
	l := newTestLedger(nil)

	if err := l.RecordExecution("nobody"); !errors.Is(err, ErrNoStake) {
		t.Fatalf("expected ErrNoStake, got %v", err)
	}

	if err := l.StakeExecutor("bob", 100); err != nil {
		t.Fatalf("StakeExecutor: %v", err)
	}
	if err := l.RecordExecution("bob"); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	stake, _ := l.ExecutorStakeOf("bob")
	if stake.Executions != 1 {
		t.Fatalf("expected 1 execution, got %d", stake.Executions)
	}
	if stake.Amount != 100 {
		t.Fatal("reputation must have no monetary effect")
	}
}

func TestStakeConditionOneShot(t *testing.T) {
	l := newTestLedger(nil)

	if err := l.StakeCondition("", 1, 50); err == nil {
		t.Fatal("expected error for empty owner")
	}
	if err := l.StakeCondition("alice", 1, 5); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}

	if err := l.StakeCondition("alice", 1, 50); err != nil {
		t.Fatalf("StakeCondition: %v", err)
	}
	if err := l.StakeCondition("alice", 1, 50); !errors.Is(err, ErrAlreadyStaked) {
		t.Fatalf("expected ErrAlreadyStaked, got %v", err)
	}
	if err := l.StakeCondition("carol", 1, 50); !errors.Is(err, ErrAlreadyStaked) {
		t.Fatalf("the slot is one-shot for every caller, got %v", err)
	}

	if l.TotalEscrow() != 50 {
		t.Fatalf("expected escrow total 50, got %d", l.TotalEscrow())
	}
}

func TestReleaseConditionStakeTerminal(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	if _, _, err := l.ReleaseConditionStake(ctx, 1); !errors.Is(err, ErrNoStake) {
		t.Fatalf("expected ErrNoStake, got %v", err)
	}

	if err := l.StakeCondition("alice", 1, 50); err != nil {
		t.Fatalf("StakeCondition: %v", err)
	}

	owner, amount, err := l.ReleaseConditionStake(ctx, 1)
	if err != nil {
		t.Fatalf("ReleaseConditionStake: %v", err)
	}
	if owner != "alice" || amount != 50 {
		t.Fatalf("expected alice/50, got %s/%d", owner, amount)
	}
	if l.TotalEscrow() != 0 {
		t.Fatalf("escrow total not reduced: %d", l.TotalEscrow())
	}

	if _, _, err := l.ReleaseConditionStake(ctx, 1); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
	if _, err := l.SlashConditionStake(ctx, 1, "too late"); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("released escrow cannot be forfeited, got %v", err)
	}
}

func TestSlashConditionStakeTakesWhole(t *testing.T) {
	var paidTo string
	var paid uint64
	l := newTestLedger(func(ctx context.Context, to string, amount uint64) error {
		paidTo, paid = to, amount
		return nil
	})
	ctx := context.Background()

	if err := l.StakeCondition("alice", 1, 75); err != nil {
		t.Fatalf("StakeCondition: %v", err)
	}

	amount, err := l.SlashConditionStake(ctx, 1, "abandoned dispute")
	if err != nil {
		t.Fatalf("SlashConditionStake: %v", err)
	}
	if amount != 75 {
		t.Fatalf("escrow is always taken whole, got %d", amount)
	}
	if paidTo != "treasury" || paid != 75 {
		t.Fatalf("forfeit should pay the treasury: %s/%d", paidTo, paid)
	}

	if _, _, err := l.ReleaseConditionStake(ctx, 1); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("forfeited escrow cannot be released, got %v", err)
	}
}

func TestExecutorIndexFirstDepositOrder(t *testing.T) {
	l := newTestLedger(nil)

	for _, p := range []string{"carol", "bob", "alice"} {
		if err := l.StakeExecutor(p, 100); err != nil {
			t.Fatalf("StakeExecutor(%s): %v", p, err)
		}
	}
	// A top-up does not reorder.
	if err := l.StakeExecutor("bob", 10); err != nil {
		t.Fatalf("top-up: %v", err)
	}

	want := []string{"carol", "bob", "alice"}
	got := l.ExecutorIndex()
	if len(got) != len(want) {
		t.Fatalf("expected %d principals, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if l.ExecutorCount() != 3 {
		t.Fatalf("expected count 3, got %d", l.ExecutorCount())
	}
}

func TestRestoreExecutorStake(t *testing.T) {
	l := newTestLedger(nil)

	stake := ExecutorStake{Principal: "bob", Amount: 500, Active: true, Executions: 3}
	if err := l.RestoreExecutorStake(stake); err != nil {
		t.Fatalf("RestoreExecutorStake: %v", err)
	}
	if err := l.RestoreExecutorStake(stake); err == nil {
		t.Fatal("expected error restoring a duplicate account")
	}
	if l.TotalStaked() != 500 {
		t.Fatalf("total not rebuilt: %d", l.TotalStaked())
	}
}

func TestRestoreConditionStake(t *testing.T) {
	l := newTestLedger(nil)

	live := ConditionStake{Owner: "alice", ConditionID: 1, Amount: 50}
	if err := l.RestoreConditionStake(live); err != nil {
		t.Fatalf("RestoreConditionStake: %v", err)
	}
	if err := l.RestoreConditionStake(live); err == nil {
		t.Fatal("expected error restoring a duplicate escrow")
	}

	// Released escrow loads for the record but does not count toward the total.
	done := ConditionStake{Owner: "carol", ConditionID: 2, Amount: 80, Released: true}
	if err := l.RestoreConditionStake(done); err != nil {
		t.Fatalf("RestoreConditionStake: %v", err)
	}
	if l.TotalEscrow() != 50 {
		t.Fatalf("expected escrow total 50, got %d", l.TotalEscrow())
	}
}
