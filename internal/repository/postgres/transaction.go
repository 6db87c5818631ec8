package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// TxManager runs session writes in transactions and retries the ones
// PostgreSQL aborts for serialization conflicts.
type TxManager struct {
	db          *sql.DB
	maxAttempts int
}

func NewTxManager(db *sql.DB, maxAttempts int) *TxManager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TxManager{db: db, maxAttempts: maxAttempts}
}

// WithTx runs fn in a transaction, committing when fn succeeds and rolling
// back otherwise. fn's error stays matchable with errors.Is/As.
func (tm *TxManager) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WithRetry is WithTx re-run from the start while the transaction fails
// with a serialization failure or deadlock, up to the manager's attempt
// limit. fn must be safe to run more than once.
func (tm *TxManager) WithRetry(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= tm.maxAttempts; attempt++ {
		err = tm.WithTx(ctx, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
		slog.Debug("retrying conflicting transaction",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return err
}
