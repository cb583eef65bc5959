package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker provides a cluster-wide mutual exclusion for scheduled jobs.
type Locker interface {
	// TryLock returns ok=false when another holder owns key. release must be
	// called when ok is true.
	TryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

type advisoryLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLocker uses Postgres session advisory locks. The lock lives on a
// dedicated pooled connection until release.
func NewAdvisoryLocker(pool *pgxpool.Pool) Locker {
	return &advisoryLocker{pool: pool}
}

func (l *advisoryLocker) TryLock(ctx context.Context, key int64) (func(), bool, error) {
	if l.pool == nil {
		return nil, false, ErrNotConfigured
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		var unlocked bool
		err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked)
		if err != nil || !unlocked {
			// A connection that still holds the lock must not go back to the pool.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}
	return release, true, nil
}
