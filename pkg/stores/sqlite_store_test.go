package stores

import (
	"context"
	"testing"
	"time"

	"github.com/openkeeper/openkeeper/pkg/collateral"
	"github.com/openkeeper/openkeeper/pkg/protocol"
	"github.com/openkeeper/openkeeper/pkg/telemetry"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestConditionRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := time.Unix(1_700_000_000, 0)
	c := &protocol.Condition{
		ID:         1,
		Registrant: "alice",
		Type:       protocol.TriggerBlockHeight,
		Value:      5000,
		Target:     protocol.Target{Address: "0xtarget", Payload: []byte{0xde, 0xad}},
		Repeatable: true,
		Status:     protocol.StatusRegistered,
		CreatedAt:  created,
	}

	if err := store.SaveCondition(ctx, c); err != nil {
		t.Fatalf("SaveCondition() error = %v", err)
	}

	// Upsert with updated lifecycle fields.
	c.Status = protocol.StatusActive
	c.ActivatedAt = created.Add(time.Minute)
	if err := store.SaveCondition(ctx, c); err != nil {
		t.Fatalf("SaveCondition() upsert error = %v", err)
	}

	got, err := store.GetCondition(ctx, 1)
	if err != nil {
		t.Fatalf("GetCondition() error = %v", err)
	}
	if got.Status != protocol.StatusActive {
		t.Errorf("status = %s, want %s", got.Status, protocol.StatusActive)
	}
	if got.Registrant != "alice" || got.Value != 5000 {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.ActivatedAt.Equal(c.ActivatedAt) {
		t.Errorf("activated_at = %v, want %v", got.ActivatedAt, c.ActivatedAt)
	}
	if len(got.Target.Payload) != 2 {
		t.Errorf("payload = %x, want dead", got.Target.Payload)
	}

	if _, err := store.GetCondition(ctx, 99); err == nil {
		t.Error("GetCondition() on missing id did not fail")
	}
}

func TestListConditionsByRegistrant(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, registrant := range []string{"alice", "bob", "alice"} {
		c := &protocol.Condition{
			ID:         uint64(i + 1),
			Registrant: registrant,
			Type:       protocol.TriggerTimestamp,
			Value:      100,
			Target:     protocol.Target{Address: "0xt"},
			Status:     protocol.StatusRegistered,
			CreatedAt:  time.Unix(int64(i), 0),
		}
		if err := store.SaveCondition(ctx, c); err != nil {
			t.Fatalf("SaveCondition() error = %v", err)
		}
	}

	all, err := store.ListConditions(ctx, "", -1, 0)
	if err != nil {
		t.Fatalf("ListConditions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d conditions, want 3", len(all))
	}

	alices, err := store.ListConditions(ctx, "alice", -1, 0)
	if err != nil {
		t.Fatalf("ListConditions(alice) error = %v", err)
	}
	if len(alices) != 2 {
		t.Fatalf("listed %d alice conditions, want 2", len(alices))
	}
	if alices[0].ID != 1 || alices[1].ID != 3 {
		t.Errorf("ids = %d,%d, want 1,3", alices[0].ID, alices[1].ID)
	}
}

func TestProofRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := &protocol.Condition{
		ID: 1, Registrant: "alice", Type: protocol.TriggerBlockHeight,
		Value: 10, Target: protocol.Target{Address: "0xt"},
		Status: protocol.StatusExecuted, CreatedAt: time.Unix(1, 0),
	}
	if err := store.SaveCondition(ctx, c); err != nil {
		t.Fatalf("SaveCondition() error = %v", err)
	}

	p := &protocol.ExecutionProof{
		ConditionID: 1,
		Executor:    "bob",
		Block:       42,
		Timestamp:   time.Unix(1_700_000_100, 0),
		Ref:         "keccak256:abcd",
		Valid:       true,
	}
	if err := store.SaveProof(ctx, p); err != nil {
		t.Fatalf("SaveProof() error = %v", err)
	}

	// Overwrite for the next repeatable cycle.
	p.Block = 84
	p.Challenged = true
	if err := store.SaveProof(ctx, p); err != nil {
		t.Fatalf("SaveProof() upsert error = %v", err)
	}

	got, err := store.GetProof(ctx, 1)
	if err != nil {
		t.Fatalf("GetProof() error = %v", err)
	}
	if got.Block != 84 || !got.Challenged || !got.Valid || got.Resolved {
		t.Errorf("unexpected proof: %+v", got)
	}
}

func TestExecutorStakeRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	stake := collateral.ExecutorStake{
		Principal: "bob",
		Amount:    1000,
		StakedAt:  time.Unix(1_700_000_000, 0),
		Active:    true,
	}
	if err := store.SaveExecutorStake(ctx, stake); err != nil {
		t.Fatalf("SaveExecutorStake() error = %v", err)
	}

	stake.Amount = 500
	stake.Slashed = 500
	stake.Misses = 1
	if err := store.SaveExecutorStake(ctx, stake); err != nil {
		t.Fatalf("SaveExecutorStake() upsert error = %v", err)
	}

	got, err := store.GetExecutorStake(ctx, "bob")
	if err != nil {
		t.Fatalf("GetExecutorStake() error = %v", err)
	}
	if got.Amount != 500 || got.Slashed != 500 || got.Misses != 1 || !got.Active {
		t.Errorf("unexpected stake: %+v", got)
	}

	if err := store.SaveExecutorStake(ctx, collateral.ExecutorStake{Principal: "carol", Amount: 2000, Active: true}); err != nil {
		t.Fatalf("SaveExecutorStake() error = %v", err)
	}

	stakes, err := store.ListExecutorStakes(ctx)
	if err != nil {
		t.Fatalf("ListExecutorStakes() error = %v", err)
	}
	if len(stakes) != 2 {
		t.Fatalf("listed %d stakes, want 2", len(stakes))
	}
	if stakes[0].Principal != "bob" || stakes[1].Principal != "carol" {
		t.Errorf("order = %s,%s, want bob,carol", stakes[0].Principal, stakes[1].Principal)
	}
}

func TestConditionStakeRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	stake := collateral.ConditionStake{
		Owner:       "alice",
		ConditionID: 7,
		Amount:      250,
		StakedAt:    time.Unix(1_700_000_000, 0),
	}
	if err := store.SaveConditionStake(ctx, stake); err != nil {
		t.Fatalf("SaveConditionStake() error = %v", err)
	}

	stake.Released = true
	if err := store.SaveConditionStake(ctx, stake); err != nil {
		t.Fatalf("SaveConditionStake() upsert error = %v", err)
	}

	stakes, err := store.ListConditionStakes(ctx)
	if err != nil {
		t.Fatalf("ListConditionStakes() error = %v", err)
	}
	if len(stakes) != 1 {
		t.Fatalf("listed %d stakes, want 1", len(stakes))
	}
	if !stakes[0].Released || stakes[0].Amount != 250 {
		t.Errorf("unexpected stake: %+v", stakes[0])
	}
}

func TestSlashHistoryAppendOnly(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := collateral.SlashRecord{
		Sequence:    1,
		Executor:    "bob",
		Amount:      100,
		Reason:      "fraud",
		ConditionID: 1,
		Timestamp:   time.Unix(1_700_000_000, 0),
		ContentHash: "keccak256:aa",
		PrevHash:    "genesis",
	}
	if err := store.AppendSlashRecord(ctx, rec); err != nil {
		t.Fatalf("AppendSlashRecord() error = %v", err)
	}

	// Replaying the same sequence must fail, not rewrite history.
	if err := store.AppendSlashRecord(ctx, rec); err == nil {
		t.Error("AppendSlashRecord() accepted a duplicate sequence")
	}

	rec2 := rec
	rec2.Sequence = 2
	rec2.Executor = "carol"
	rec2.ContentHash = "keccak256:bb"
	rec2.PrevHash = "keccak256:aa"
	if err := store.AppendSlashRecord(ctx, rec2); err != nil {
		t.Fatalf("AppendSlashRecord() error = %v", err)
	}

	all, err := store.ListSlashRecords(ctx, "", -1, 0)
	if err != nil {
		t.Fatalf("ListSlashRecords() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("listed %d records, want 2", len(all))
	}

	bobs, err := store.ListSlashRecords(ctx, "bob", -1, 0)
	if err != nil {
		t.Fatalf("ListSlashRecords(bob) error = %v", err)
	}
	if len(bobs) != 1 || bobs[0].Sequence != 1 {
		t.Errorf("unexpected filtered records: %+v", bobs)
	}
}

func TestEventLog(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	events := []telemetry.Event{
		{ID: "e1", Type: telemetry.EventTypeConditionRegistered, ConditionID: 1, Principal: "alice", Timestamp: time.Unix(10, 0), Level: "info"},
		{ID: "e2", Type: telemetry.EventTypeConditionExecuted, ConditionID: 1, Principal: "bob", Block: 50, Timestamp: time.Unix(20, 0), Level: "info"},
		{ID: "e3", Type: telemetry.EventTypeConditionRegistered, ConditionID: 2, Principal: "alice", Timestamp: time.Unix(30, 0), Level: "info"},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}

	registered, err := store.ListEvents(ctx, telemetry.EventTypeConditionRegistered, 0, -1, 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(registered) != 2 {
		t.Fatalf("listed %d registered events, want 2", len(registered))
	}
	if registered[0].ID != "e3" {
		t.Errorf("first event = %s, want e3 (newest first)", registered[0].ID)
	}

	forCondition, err := store.ListEvents(ctx, "", 1, -1, 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(forCondition) != 2 {
		t.Fatalf("listed %d events for condition 1, want 2", len(forCondition))
	}
}
