// Package stores provides the persistence layer for the keeper protocol.
// It includes SQLite-based storage with WAL mode, connection pooling, and
// schema migrations for conditions, execution proofs, collateral accounts,
// slash history, and protocol events.
package stores
