package stores

import (
	"context"
	"fmt"

	"github.com/openkeeper/openkeeper/pkg/protocol"
)

// Load rebuilds a freshly constructed engine and its ledger from the store.
// Records restore in dependency order: conditions, then proofs, then the
// collateral accounts and the slash history chain.
func Load(ctx context.Context, store Store, engine *protocol.Engine) error {
	conditions, err := store.ListConditions(ctx, "", -1, 0)
	if err != nil {
		return fmt.Errorf("failed to load conditions: %w", err)
	}
	for _, c := range conditions {
		if err := engine.RestoreCondition(c); err != nil {
			return fmt.Errorf("failed to restore condition %d: %w", c.ID, err)
		}
		if p, err := store.GetProof(ctx, c.ID); err == nil {
			if err := engine.RestoreProof(p); err != nil {
				return fmt.Errorf("failed to restore proof %d: %w", c.ID, err)
			}
		}
	}

	executorStakes, err := store.ListExecutorStakes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load executor stakes: %w", err)
	}
	for _, stake := range executorStakes {
		if err := engine.Ledger().RestoreExecutorStake(stake); err != nil {
			return fmt.Errorf("failed to restore executor stake: %w", err)
		}
	}

	conditionStakes, err := store.ListConditionStakes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load condition stakes: %w", err)
	}
	for _, stake := range conditionStakes {
		if err := engine.Ledger().RestoreConditionStake(stake); err != nil {
			return fmt.Errorf("failed to restore condition stake: %w", err)
		}
	}

	slashRecords, err := store.ListSlashRecords(ctx, "", -1, 0)
	if err != nil {
		return fmt.Errorf("failed to load slash history: %w", err)
	}
	if err := engine.Ledger().SlashHistory().Restore(slashRecords); err != nil {
		return fmt.Errorf("slash history does not verify: %w", err)
	}

	return nil
}
