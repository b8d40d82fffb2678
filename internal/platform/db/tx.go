package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/projectledger/internal/shared"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can run
// either standalone or inside a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts transactions.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
// Callers take row locks (SELECT ... FOR UPDATE) on the rows they read-modify. A
// serialization failure or deadlock, from fn or from commit, is returned wrapping
// shared.ErrConflict.
func WithTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return AsConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AsConflict(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// IsSerializationFailure reports whether err is SQLSTATE 40001 or a deadlock (40P01).
// Both abort the transaction under RepeatableRead when a concurrent writer wins.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// AsConflict wraps serialization failures with shared.ErrConflict and returns any
// other error unchanged.
func AsConflict(err error) error {
	if err == nil || errors.Is(err, shared.ErrConflict) || !IsSerializationFailure(err) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrConflict, err)
}

// IsUniqueViolation reports whether err is a unique constraint violation, optionally
// restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
