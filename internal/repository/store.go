package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
)

// Store provides a unified interface for all repository operations with
// transaction support; it is the unit-of-work every service composes on.
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance backed directly by the database
// (outside of any transaction).
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

// Wallets returns a WalletRepository using the current executor.
func (s *Store) Wallets() domain.WalletRepository {
	return NewWalletRepository(s.executor, s.logger)
}

// Ledger returns a LedgerRepository using the current executor.
func (s *Store) Ledger() domain.LedgerRepository {
	return NewLedgerRepository(s.executor, s.logger)
}

// PixKeys returns a PixKeyRepository using the current executor.
func (s *Store) PixKeys() domain.PixKeyRepository {
	return NewPixKeyRepository(s.executor, s.logger)
}

// Transfers returns a PixTransferRepository using the current executor.
func (s *Store) Transfers() domain.PixTransferRepository {
	return NewPixTransferRepository(s.executor, s.logger)
}

// Idempotency returns an IdempotencyRepository using the current executor.
func (s *Store) Idempotency() domain.IdempotencyRepository {
	return NewIdempotencyRepository(s.executor, s.logger)
}

// WithTransaction runs fn inside a new SERIALIZABLE transaction, committing
// on success and rolling back on error or panic.
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	db, ok := s.executor.(DB)
	if !ok {
		return walleterrors.New(walleterrors.InternalError, "store executor cannot begin a transaction")
	}

	tx, err := db.BeginTx(ctx, SerializableTxOptions)
	if err != nil {
		return err
	}

	txStore := &Store{
		executor: &TxWrapper{Tx: tx},
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to commit transaction").WithDetails(err.Error()))
	}
	return nil
}
