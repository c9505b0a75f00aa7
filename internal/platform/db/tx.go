package db

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// ErrConcurrentModification is returned when a transaction keeps hitting
// serialization conflicts past the configured retry budget.
var ErrConcurrentModification = errors.New("concurrent modification")

// TxFromContext retrieves the transaction placed in the context by WithinTx,
// or nil when the caller is not inside a transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// WithinTx runs fn inside a transaction. The transaction is stashed in the
// context so repositories resolve it via TxFromContext and all statements
// issued by fn share one atomic unit. Serialization conflicts (SQLSTATE
// 40001/40P01) are retried with jittered backoff up to attempts times.
func WithinTx(ctx context.Context, pool *pgxpool.Pool, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(20*(1<<uint(i-1)))*time.Millisecond +
				time.Duration(rand.Intn(20))*time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := runTx(ctx, pool, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}

	return errors.Join(ErrConcurrentModification, lastErr)
}

// Runner binds a pool and retry budget into the closure shape the domain
// services expect for their transactional units.
func Runner(pool *pgxpool.Pool, attempts int) func(ctx context.Context, fn func(ctx context.Context) error) error {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return WithinTx(ctx, pool, attempts, fn)
	}
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
