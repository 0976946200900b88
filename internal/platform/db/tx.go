package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes a function within a read-committed transaction. Module
// repositories build their transactional ports on top of this; GRN posting in
// particular relies on the all-or-nothing commit of header, movements and cost
// updates.
//
// Read committed, not repeatable read: every read the write paths depend on
// takes an explicit row or advisory lock, and a waiter must resume against the
// winner's committed state. Under repeatable read the waiter's snapshot
// predates the winner's commit, so its FOR UPDATE would abort with a
// serialization failure instead of observing the new status or document number.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
