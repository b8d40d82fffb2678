package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/shared"
)

type stubTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *stubTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type stubBeginner struct {
	tx   *stubTx
	opts pgx.TxOptions
}

func (b *stubBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	return b.tx, nil
}

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(fmt.Errorf("insert: %w", serializationFailure())))
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("boom")))
	require.False(t, IsUniqueViolation(serializationFailure(), ""))
}

func TestAsConflict(t *testing.T) {
	require.NoError(t, AsConflict(nil))

	plain := errors.New("boom")
	require.Same(t, plain, AsConflict(plain))

	err := AsConflict(serializationFailure())
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, IsSerializationFailure(err))
	require.Same(t, err, AsConflict(err))
}

func TestWithTxRunsRepeatableRead(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Equal(t, pgx.RepeatableRead, b.opts.IsoLevel)
	require.True(t, b.tx.committed)
}

func TestWithTxMapsSerializationFailures(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		return fmt.Errorf("inventory: update stock: %w", serializationFailure())
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.False(t, b.tx.committed)
	require.True(t, b.tx.rolledBack)

	b = &stubBeginner{tx: &stubTx{commitErr: serializationFailure()}}
	err = WithTx(context.Background(), b, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, shared.ErrConflict)

	b = &stubBeginner{tx: &stubTx{}}
	err = WithTx(context.Background(), b, func(pgx.Tx) error { return shared.ErrInsufficientStock })
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.NotErrorIs(t, err, shared.ErrConflict)
}
