package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned by compare-and-swap writes when the stored
// version no longer matches the expected one.
var ErrVersionConflict = errors.New("repository: version conflict")

// ErrNotConfigured is returned by Postgres repositories created without a pool.
var ErrNotConfigured = errors.New("repository: postgres not configured")

// UnitOfWork runs fn in a single transaction. Repositories called with the
// context passed to fn join that transaction.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is the subset of pgx shared by the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

func withTxContext(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// querier returns the transaction bound to ctx, falling back to the pool.
func querier(ctx context.Context, pool *pgxpool.Pool) (Querier, error) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return tx, nil
	}
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return pool, nil
}

type pgUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a Postgres-backed UnitOfWork.
func NewUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &pgUnitOfWork{pool: pool}
}

func (u *pgUnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	if u.pool == nil {
		return ErrNotConfigured
	}

	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(withTxContext(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
