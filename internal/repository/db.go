package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	walleterrors "pixwallet/internal/errors"
)

// SQLExecutor represents both sql.DB and sql.Tx, context-aware so every
// blocking call can be cancelled or bounded by the caller.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB represents a database that can begin SERIALIZABLE transactions.
type DB interface {
	SQLExecutor
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ensure sql.DB implements DB interface
var _ DB = (*sql.DB)(nil)

// TxWrapper wraps sql.Tx to implement SQLExecutor.
type TxWrapper struct {
	*sql.Tx
}

func (t *TxWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.Tx.ExecContext(ctx, query, args...)
}

func (t *TxWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.Tx.QueryContext(ctx, query, args...)
}

func (t *TxWrapper) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.Tx.QueryRowContext(ctx, query, args...)
}

// SerializableTxOptions is used for every transaction opened by the wallet
// core: balance mutations, transfer state transitions, and idempotency
// record insertion all require SERIALIZABLE isolation.
var SerializableTxOptions = &sql.TxOptions{Isolation: sql.LevelSerializable}

// pq error codes that a SERIALIZABLE transaction can legitimately surface
// under contention; both are retryable, not a data problem.
const (
	pqCodeUniqueViolation   = "23505"
	pqCodeSerializationFail = "40001"
	pqCodeDeadlockDetected  = "40P01"
)

// classifyPQError maps a raw driver error to the wallet core's error
// vocabulary. Serialization failures and deadlocks are transient by
// definition; everything else falls through to fallback.
func classifyPQError(err error, fallback *walleterrors.WalletError) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case pqCodeSerializationFail, pqCodeDeadlockDetected:
			return walleterrors.ErrTransientConflict
		}
	}
	return fallback
}
