package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/lib/pq"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
)

const backendName = "postgres"

// Schema creates the table backing KVStore.
const Schema = `
CREATE TABLE IF NOT EXISTS session_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	getQuery    = `SELECT value FROM session_kv WHERE key = $1`
	upsertQuery = `
		INSERT INTO session_kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	removeQuery = `DELETE FROM session_kv WHERE key = ANY($1)`
)

const maxTxAttempts = 3

// KVStore is a domain.KeyValueStore on a PostgreSQL table.
type KVStore struct {
	db         *sql.DB
	tx         *TxManager
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	removeStmt *sql.Stmt
}

var _ domain.KeyValueStore = (*KVStore)(nil)

// EnsureSchema creates the session table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create session_kv table: %w", err)
	}
	return nil
}

// NewKVStore creates a KVStore with prepared statements.
// Returns an error if statement preparation fails.
func NewKVStore(db *sql.DB) (*KVStore, error) {
	s := &KVStore{db: db, tx: NewTxManager(db, maxTxAttempts)}

	var err error
	s.getStmt, err = db.Prepare(getQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.upsertStmt, err = db.Prepare(upsertQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	s.removeStmt, err = db.Prepare(removeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare remove statement: %w", err)
	}

	return s, nil
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	defer observability.ObserveKV(backendName, "get", time.Now())

	var value string
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if IsUndefinedTable(err) {
		return "", false, fmt.Errorf("session_kv table is missing, apply the schema: %w", err)
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}
	return value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	defer observability.ObserveKV(backendName, "set", time.Now())

	if _, err := s.upsertStmt.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// SetMany writes all entries in one transaction, retrying when PostgreSQL
// aborts it for a serialization conflict. Keys are written in sorted order so
// concurrent writers lock rows in the same order.
func (s *KVStore) SetMany(ctx context.Context, entries map[string]string) error {
	defer observability.ObserveKV(backendName, "set_many", time.Now())

	keys := slices.Sorted(maps.Keys(entries))

	err := s.tx.WithRetry(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, upsertQuery, k, entries[k]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set keys: %w", err)
	}
	return nil
}

func (s *KVStore) Remove(ctx context.Context, keys ...string) error {
	defer observability.ObserveKV(backendName, "remove", time.Now())

	if len(keys) == 0 {
		return nil
	}
	if _, err := s.removeStmt.ExecContext(ctx, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to remove keys: %w", err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the prepared statements. The *sql.DB is owned by the caller.
func (s *KVStore) Close() error {
	return errors.Join(s.getStmt.Close(), s.upsertStmt.Close(), s.removeStmt.Close())
}
