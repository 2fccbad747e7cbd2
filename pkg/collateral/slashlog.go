package collateral

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
)

// SlashRecord is one append-only audit entry. Records are never mutated or
// deleted; each is hash-chained to its predecessor so the history can be
// verified end to end.
type SlashRecord struct {
	// Sequence is 1-based and strictly increasing.
	Sequence uint64 `json:"sequence"`

	// Executor is the penalized principal.
	Executor string `json:"executor"`

	// Amount is the effective (capped) amount removed.
	Amount uint64 `json:"amount"`

	// Reason is the arbiter-supplied reason string.
	Reason string `json:"reason"`

	// ConditionID is the related condition, zero when none.
	ConditionID uint64 `json:"condition_id,omitempty"`

	// Timestamp is when the slash was applied.
	Timestamp time.Time `json:"timestamp"`

	// ContentHash is the keccak-256 of the entry contents and PrevHash.
	ContentHash string `json:"content_hash"`

	// PrevHash chains the entry to its predecessor.
	PrevHash string `json:"prev_hash"`
}

// SlashLog is the append-only, hash-chained slash history.
type SlashLog struct {
	mu      sync.RWMutex
	entries []SlashRecord
	head    string
	clock   func() time.Time
}

// NewSlashLog creates an empty slash log.
func NewSlashLog() *SlashLog {
	return &SlashLog{head: "genesis", clock: time.Now}
}

// WithClock overrides the clock for testing.
func (l *SlashLog) WithClock(clock func() time.Time) *SlashLog {
	l.clock = clock
	return l
}

// Append records a slash. Returns the sequence number assigned.
func (l *SlashLog) Append(executor string, amount uint64, reason string, conditionID uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := SlashRecord{
		Sequence:    uint64(len(l.entries)) + 1,
		Executor:    executor,
		Amount:      amount,
		Reason:      reason,
		ConditionID: conditionID,
		Timestamp:   l.clock(),
		PrevHash:    l.head,
	}

	hash, err := hashRecord(rec)
	if err != nil {
		return 0, err
	}
	rec.ContentHash = hash

	l.entries = append(l.entries, rec)
	l.head = hash
	return rec.Sequence, nil
}

// Restore replays persisted records into an empty log, re-deriving the head.
// It fails if the chain does not verify.
func (l *SlashLog) Restore(records []SlashRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) != 0 {
		return fmt.Errorf("slash log is not empty")
	}

	prev := "genesis"
	for i, rec := range records {
		if rec.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, rec.PrevHash)
		}
		hash, err := hashRecord(rec)
		if err != nil {
			return err
		}
		if hash != rec.ContentHash {
			return fmt.Errorf("hash mismatch at entry %d", i+1)
		}
		prev = rec.ContentHash
	}

	l.entries = append(l.entries, records...)
	l.head = prev
	return nil
}

// Entries returns a snapshot of the full history.
func (l *SlashLog) Entries() []SlashRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SlashRecord, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByExecutor returns the history entries for one principal.
func (l *SlashLog) ByExecutor(executor string) []SlashRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []SlashRecord
	for _, rec := range l.entries {
		if rec.Executor == executor {
			out = append(out, rec)
		}
	}
	return out
}

// Head returns the current chain head hash.
func (l *SlashLog) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// Length returns the number of entries.
func (l *SlashLog) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify walks the whole chain and reports the first inconsistency.
func (l *SlashLog) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := "genesis"
	for i, rec := range l.entries {
		if rec.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, rec.PrevHash)
		}
		hash, err := hashRecord(rec)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
		if hash != rec.ContentHash {
			return fmt.Errorf("hash mismatch at entry %d", i+1)
		}
		prev = rec.ContentHash
	}
	return nil
}

// hashRecord computes the keccak-256 content hash over everything except the
// ContentHash field itself.
func hashRecord(rec SlashRecord) (string, error) {
	input := struct {
		Seq         uint64 `json:"seq"`
		Executor    string `json:"executor"`
		Amount      uint64 `json:"amount"`
		Reason      string `json:"reason"`
		ConditionID uint64 `json:"condition_id"`
		Timestamp   int64  `json:"timestamp"`
		PrevHash    string `json:"prev"`
	}{rec.Sequence, rec.Executor, rec.Amount, rec.Reason, rec.ConditionID, rec.Timestamp.UnixNano(), rec.PrevHash}

	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal slash record: %w", err)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(raw)
	return "keccak256:" + hex.EncodeToString(h.Sum(nil)), nil
}
