package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
)

type walletRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

// NewWalletRepository builds a domain.WalletRepository backed by db.
func NewWalletRepository(db SQLExecutor, logger *slog.Logger) domain.WalletRepository {
	return &walletRepository{db: db, logger: logger}
}

func (r *walletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, balance_cents, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query, w.ID, w.UserID, w.BalanceCents, w.Version, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqCodeUniqueViolation {
			r.logger.Warn("duplicate wallet creation attempt", "user_id", w.UserID)
			return walleterrors.ErrDuplicateUser
		}
		r.logger.Error("failed to create wallet", "user_id", w.UserID, "error", err)
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to create wallet").WithDetails(err.Error()))
	}

	r.logger.Info("wallet created", "wallet_id", w.ID, "user_id", w.UserID)
	return nil
}

func (r *walletRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, balance_cents, version, created_at, updated_at
		FROM wallets WHERE id = $1
	`
	return r.scan(ctx, query, id)
}

func (r *walletRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, balance_cents, version, created_at, updated_at
		FROM wallets WHERE id = $1 FOR UPDATE
	`
	return r.scan(ctx, query, id)
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, balance_cents, version, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`
	return r.scan(ctx, query, userID)
}

func (r *walletRepository) scan(ctx context.Context, query string, arg interface{}) (*domain.Wallet, error) {
	var w domain.Wallet

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&w.ID, &w.UserID, &w.BalanceCents, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, walleterrors.ErrWalletNotFound
		}
		r.logger.Error("failed to load wallet", "error", err)
		return nil, classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to load wallet").WithDetails(err.Error()))
	}

	return &w, nil
}

func (r *walletRepository) UpdateBalance(ctx context.Context, id uuid.UUID, newBalanceCents int64, expectedVersion int64, now time.Time) error {
	query := `
		UPDATE wallets
		SET balance_cents = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
	`

	result, err := r.db.ExecContext(ctx, query, newBalanceCents, now, id, expectedVersion)
	if err != nil {
		r.logger.Error("failed to update wallet balance", "wallet_id", id, "error", err)
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to update wallet balance").WithDetails(err.Error()))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return walleterrors.Newf(walleterrors.InternalError, "failed to read rows affected").WithDetails(err.Error())
	}

	if rows == 0 {
		r.logger.Warn("optimistic version conflict updating wallet", "wallet_id", id, "expected_version", expectedVersion)
		return walleterrors.ErrTransientConflict
	}

	return nil
}
