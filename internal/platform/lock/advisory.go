package lock

import (
	"context"
	"log/slog"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Advisory serializes across processes with Postgres session advisory locks.
// Each held lock pins one pooled connection until release.
type Advisory struct {
	DB *pgxpool.Pool
}

func NewAdvisory(db *pgxpool.Pool) *Advisory {
	return &Advisory{DB: db}
}

func (a *Advisory) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := a.DB.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire lock connection")
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtextextended($1, 0))", key); err != nil {
		conn.Release()
		return nil, errors.Wrapf(err, "advisory lock %s", key)
	}

	return func() {
		// The acquiring ctx may already be done; unlock on a fresh one.
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock(hashtextextended($1, 0))", key); err != nil {
			slog.Warn("advisory unlock failed", "key", key, "err", err)
			// A connection that still holds the lock must not go back to the pool.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

// LockTx takes key until tx commits or rolls back. It contends with session
// locks held through Advisory on the same key without pinning a second
// connection.
func LockTx(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return errors.Wrapf(err, "advisory lock %s", key)
	}
	return nil
}
