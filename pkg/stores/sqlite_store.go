package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openkeeper/openkeeper/pkg/collateral"
	"github.com/openkeeper/openkeeper/pkg/protocol"
	"github.com/openkeeper/openkeeper/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// SaveCondition upserts a condition record.
func (s *SQLiteStore) SaveCondition(ctx context.Context, c *protocol.Condition) error {
	query := `
		INSERT INTO conditions (
			id, registrant, type, value, target_address, target_payload,
			repeatable, status, created_at, activated_at, last_executed_at,
			last_executed_block, last_executor, last_proof_ref, challenge_deadline
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			activated_at = excluded.activated_at,
			last_executed_at = excluded.last_executed_at,
			last_executed_block = excluded.last_executed_block,
			last_executor = excluded.last_executor,
			last_proof_ref = excluded.last_proof_ref,
			challenge_deadline = excluded.challenge_deadline
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.Registrant,
		string(c.Type),
		c.Value,
		c.Target.Address,
		c.Target.Payload,
		boolToInt(c.Repeatable),
		string(c.Status),
		unixNanoOrZero(c.CreatedAt),
		unixNanoOrZero(c.ActivatedAt),
		unixNanoOrZero(c.LastExecutedAt),
		c.LastExecutedBlock,
		c.LastExecutor,
		c.LastProofRef,
		c.ChallengeDeadline,
	)

	if err != nil {
		return fmt.Errorf("failed to save condition: %w", err)
	}

	return nil
}

// GetCondition retrieves a condition by id.
func (s *SQLiteStore) GetCondition(ctx context.Context, id uint64) (*protocol.Condition, error) {
	query := `
		SELECT id, registrant, type, value, target_address, target_payload,
			   repeatable, status, created_at, activated_at, last_executed_at,
			   last_executed_block, last_executor, last_proof_ref, challenge_deadline
		FROM conditions
		WHERE id = ?
	`

	c, err := scanCondition(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("condition not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get condition: %w", err)
	}

	return c, nil
}

// ListConditions lists conditions ordered by id. An empty registrant lists
// all conditions.
func (s *SQLiteStore) ListConditions(ctx context.Context, registrant string, limit, offset int) ([]*protocol.Condition, error) {
	query := `
		SELECT id, registrant, type, value, target_address, target_payload,
			   repeatable, status, created_at, activated_at, last_executed_at,
			   last_executed_block, last_executor, last_proof_ref, challenge_deadline
		FROM conditions
		WHERE (? = '' OR registrant = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, registrant, registrant, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	defer rows.Close()

	conditions := []*protocol.Condition{}
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		conditions = append(conditions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conditions: %w", err)
	}

	return conditions, nil
}

// SaveProof upserts the execution proof for a condition.
func (s *SQLiteStore) SaveProof(ctx context.Context, p *protocol.ExecutionProof) error {
	query := `
		INSERT INTO execution_proofs (
			condition_id, executor, block, timestamp, ref, challenged, valid, resolved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			executor = excluded.executor,
			block = excluded.block,
			timestamp = excluded.timestamp,
			ref = excluded.ref,
			challenged = excluded.challenged,
			valid = excluded.valid,
			resolved = excluded.resolved
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ConditionID,
		p.Executor,
		p.Block,
		unixNanoOrZero(p.Timestamp),
		p.Ref,
		boolToInt(p.Challenged),
		boolToInt(p.Valid),
		boolToInt(p.Resolved),
	)

	if err != nil {
		return fmt.Errorf("failed to save proof: %w", err)
	}

	return nil
}

// GetProof retrieves the execution proof for a condition.
func (s *SQLiteStore) GetProof(ctx context.Context, conditionID uint64) (*protocol.ExecutionProof, error) {
	query := `
		SELECT condition_id, executor, block, timestamp, ref, challenged, valid, resolved
		FROM execution_proofs
		WHERE condition_id = ?
	`

	p := &protocol.ExecutionProof{}
	var ts int64
	var challenged, valid, resolved int
	err := s.db.QueryRowContext(ctx, query, conditionID).Scan(
		&p.ConditionID,
		&p.Executor,
		&p.Block,
		&ts,
		&p.Ref,
		&challenged,
		&valid,
		&resolved,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("proof not found for condition: %d", conditionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proof: %w", err)
	}

	p.Timestamp = timeOrZero(ts)
	p.Challenged = challenged != 0
	p.Valid = valid != 0
	p.Resolved = resolved != 0

	return p, nil
}

// SaveExecutorStake upserts an executor collateral account.
func (s *SQLiteStore) SaveExecutorStake(ctx context.Context, stake collateral.ExecutorStake) error {
	query := `
		INSERT INTO executor_stakes (
			principal, amount, staked_at, slashed, active, executions, misses
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(principal) DO UPDATE SET
			amount = excluded.amount,
			staked_at = excluded.staked_at,
			slashed = excluded.slashed,
			active = excluded.active,
			executions = excluded.executions,
			misses = excluded.misses
	`

	_, err := s.db.ExecContext(ctx, query,
		stake.Principal,
		stake.Amount,
		unixNanoOrZero(stake.StakedAt),
		stake.Slashed,
		boolToInt(stake.Active),
		stake.Executions,
		stake.Misses,
	)

	if err != nil {
		return fmt.Errorf("failed to save executor stake: %w", err)
	}

	return nil
}

// GetExecutorStake retrieves one executor account.
func (s *SQLiteStore) GetExecutorStake(ctx context.Context, principal string) (collateral.ExecutorStake, error) {
	query := `
		SELECT principal, amount, staked_at, slashed, active, executions, misses
		FROM executor_stakes
		WHERE principal = ?
	`

	var stake collateral.ExecutorStake
	var stakedAt int64
	var active int
	err := s.db.QueryRowContext(ctx, query, principal).Scan(
		&stake.Principal,
		&stake.Amount,
		&stakedAt,
		&stake.Slashed,
		&active,
		&stake.Executions,
		&stake.Misses,
	)

	if err == sql.ErrNoRows {
		return collateral.ExecutorStake{}, fmt.Errorf("executor stake not found: %s", principal)
	}
	if err != nil {
		return collateral.ExecutorStake{}, fmt.Errorf("failed to get executor stake: %w", err)
	}

	stake.StakedAt = timeOrZero(stakedAt)
	stake.Active = active != 0

	return stake, nil
}

// ListExecutorStakes lists all executor accounts in first-deposit order.
func (s *SQLiteStore) ListExecutorStakes(ctx context.Context) ([]collateral.ExecutorStake, error) {
	query := `
		SELECT principal, amount, staked_at, slashed, active, executions, misses
		FROM executor_stakes
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list executor stakes: %w", err)
	}
	defer rows.Close()

	stakes := []collateral.ExecutorStake{}
	for rows.Next() {
		var stake collateral.ExecutorStake
		var stakedAt int64
		var active int
		err := rows.Scan(
			&stake.Principal,
			&stake.Amount,
			&stakedAt,
			&stake.Slashed,
			&active,
			&stake.Executions,
			&stake.Misses,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan executor stake: %w", err)
		}
		stake.StakedAt = timeOrZero(stakedAt)
		stake.Active = active != 0
		stakes = append(stakes, stake)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executor stakes: %w", err)
	}

	return stakes, nil
}

// SaveConditionStake upserts a condition escrow record.
func (s *SQLiteStore) SaveConditionStake(ctx context.Context, stake collateral.ConditionStake) error {
	query := `
		INSERT INTO condition_stakes (condition_id, owner, amount, staked_at, released)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			released = excluded.released
	`

	_, err := s.db.ExecContext(ctx, query,
		stake.ConditionID,
		stake.Owner,
		stake.Amount,
		unixNanoOrZero(stake.StakedAt),
		boolToInt(stake.Released),
	)

	if err != nil {
		return fmt.Errorf("failed to save condition stake: %w", err)
	}

	return nil
}

// ListConditionStakes lists all condition escrows ordered by condition id.
func (s *SQLiteStore) ListConditionStakes(ctx context.Context) ([]collateral.ConditionStake, error) {
	query := `
		SELECT condition_id, owner, amount, staked_at, released
		FROM condition_stakes
		ORDER BY condition_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list condition stakes: %w", err)
	}
	defer rows.Close()

	stakes := []collateral.ConditionStake{}
	for rows.Next() {
		var stake collateral.ConditionStake
		var stakedAt int64
		var released int
		err := rows.Scan(
			&stake.ConditionID,
			&stake.Owner,
			&stake.Amount,
			&stakedAt,
			&released,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition stake: %w", err)
		}
		stake.StakedAt = timeOrZero(stakedAt)
		stake.Released = released != 0
		stakes = append(stakes, stake)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating condition stakes: %w", err)
	}

	return stakes, nil
}

// AppendSlashRecord appends one slash history entry. Sequences are the
// primary key, so replaying an already-persisted entry fails rather than
// silently rewriting history.
func (s *SQLiteStore) AppendSlashRecord(ctx context.Context, rec collateral.SlashRecord) error {
	query := `
		INSERT INTO slash_history (
			sequence, executor, amount, reason, condition_id, timestamp, content_hash, prev_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Sequence,
		rec.Executor,
		rec.Amount,
		rec.Reason,
		rec.ConditionID,
		unixNanoOrZero(rec.Timestamp),
		rec.ContentHash,
		rec.PrevHash,
	)

	if err != nil {
		return fmt.Errorf("failed to append slash record: %w", err)
	}

	return nil
}

// ListSlashRecords lists slash history in sequence order. An empty executor
// lists all entries.
func (s *SQLiteStore) ListSlashRecords(ctx context.Context, executor string, limit, offset int) ([]collateral.SlashRecord, error) {
	query := `
		SELECT sequence, executor, amount, reason, condition_id, timestamp, content_hash, prev_hash
		FROM slash_history
		WHERE (? = '' OR executor = ?)
		ORDER BY sequence ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, executor, executor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list slash records: %w", err)
	}
	defer rows.Close()

	records := []collateral.SlashRecord{}
	for rows.Next() {
		var rec collateral.SlashRecord
		var ts int64
		err := rows.Scan(
			&rec.Sequence,
			&rec.Executor,
			&rec.Amount,
			&rec.Reason,
			&rec.ConditionID,
			&ts,
			&rec.ContentHash,
			&rec.PrevHash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slash record: %w", err)
		}
		rec.Timestamp = timeOrZero(ts)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slash records: %w", err)
	}

	return records, nil
}

// AppendEvent appends one protocol event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event telemetry.Event) error {
	query := `
		INSERT INTO protocol_events (
			id, type, source, condition_id, principal, amount, block, level, message, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Source,
		event.ConditionID,
		event.Principal,
		event.Amount,
		event.Block,
		event.Level,
		event.Message,
		unixNanoOrZero(event.Timestamp),
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// ListEvents lists protocol events newest first. An empty type or zero
// condition id disables that filter.
func (s *SQLiteStore) ListEvents(ctx context.Context, eventType string, conditionID uint64, limit, offset int) ([]telemetry.Event, error) {
	query := `
		SELECT id, type, source, condition_id, principal, amount, block, level, message, timestamp
		FROM protocol_events
		WHERE (? = '' OR type = ?)
		  AND (? = 0 OR condition_id = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, eventType, eventType, conditionID, conditionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []telemetry.Event{}
	for rows.Next() {
		var event telemetry.Event
		var ts int64
		err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.Source,
			&event.ConditionID,
			&event.Principal,
			&event.Amount,
			&event.Block,
			&event.Level,
			&event.Message,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Timestamp = timeOrZero(ts)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCondition(row rowScanner) (*protocol.Condition, error) {
	c := &protocol.Condition{}
	var typ, status string
	var payload []byte
	var repeatable int
	var createdAt, activatedAt, executedAt int64

	err := row.Scan(
		&c.ID,
		&c.Registrant,
		&typ,
		&c.Value,
		&c.Target.Address,
		&payload,
		&repeatable,
		&status,
		&createdAt,
		&activatedAt,
		&executedAt,
		&c.LastExecutedBlock,
		&c.LastExecutor,
		&c.LastProofRef,
		&c.ChallengeDeadline,
	)
	if err != nil {
		return nil, err
	}

	c.Type = protocol.TriggerType(typ)
	c.Status = protocol.ConditionStatus(status)
	c.Target.Payload = payload
	c.Repeatable = repeatable != 0
	c.CreatedAt = timeOrZero(createdAt)
	c.ActivatedAt = timeOrZero(activatedAt)
	c.LastExecutedAt = timeOrZero(executedAt)

	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// unixNanoOrZero maps the zero time to 0 so it round-trips as zero.
func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeOrZero(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
