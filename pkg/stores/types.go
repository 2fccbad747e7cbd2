package stores

import (
	"context"

	"github.com/openkeeper/openkeeper/pkg/collateral"
	"github.com/openkeeper/openkeeper/pkg/protocol"
	"github.com/openkeeper/openkeeper/pkg/telemetry"
)

// Store is the persistence interface for the indexer-facing copy of protocol
// state. Memory is authoritative (the external ordered log is the durability
// substrate); the store lets observers and restarts rebuild state without
// replaying the engine.
type Store interface {
	// Init initializes the underlying storage.
	Init(ctx context.Context) error

	// Close releases the storage.
	Close() error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// HealthCheck verifies the storage is reachable.
	HealthCheck(ctx context.Context) error

	// SaveCondition upserts a condition record.
	SaveCondition(ctx context.Context, c *protocol.Condition) error

	// GetCondition retrieves a condition by id.
	GetCondition(ctx context.Context, id uint64) (*protocol.Condition, error)

	// ListConditions lists conditions, optionally filtered by registrant,
	// ordered by id.
	ListConditions(ctx context.Context, registrant string, limit, offset int) ([]*protocol.Condition, error)

	// SaveProof upserts the execution proof for a condition.
	SaveProof(ctx context.Context, p *protocol.ExecutionProof) error

	// GetProof retrieves the execution proof for a condition.
	GetProof(ctx context.Context, conditionID uint64) (*protocol.ExecutionProof, error)

	// SaveExecutorStake upserts an executor collateral account.
	SaveExecutorStake(ctx context.Context, stake collateral.ExecutorStake) error

	// GetExecutorStake retrieves one executor account.
	GetExecutorStake(ctx context.Context, principal string) (collateral.ExecutorStake, error)

	// ListExecutorStakes lists all executor accounts in first-deposit order.
	ListExecutorStakes(ctx context.Context) ([]collateral.ExecutorStake, error)

	// SaveConditionStake upserts a condition escrow record.
	SaveConditionStake(ctx context.Context, stake collateral.ConditionStake) error

	// ListConditionStakes lists all condition escrows ordered by condition id.
	ListConditionStakes(ctx context.Context) ([]collateral.ConditionStake, error)

	// AppendSlashRecord appends one slash history entry. The history is
	// append-only; sequences arrive in order.
	AppendSlashRecord(ctx context.Context, rec collateral.SlashRecord) error

	// ListSlashRecords lists slash history, optionally filtered by executor,
	// in sequence order.
	ListSlashRecords(ctx context.Context, executor string, limit, offset int) ([]collateral.SlashRecord, error)

	// AppendEvent appends one protocol event.
	AppendEvent(ctx context.Context, event telemetry.Event) error

	// ListEvents lists protocol events, optionally filtered by type and
	// condition id, newest first.
	ListEvents(ctx context.Context, eventType string, conditionID uint64, limit, offset int) ([]telemetry.Event, error)
}
