package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
)

type pixKeyRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

// NewPixKeyRepository builds a domain.PixKeyRepository backed by db.
func NewPixKeyRepository(db SQLExecutor, logger *slog.Logger) domain.PixKeyRepository {
	return &pixKeyRepository{db: db, logger: logger}
}

func (r *pixKeyRepository) Create(ctx context.Context, k *domain.PixKey) error {
	query := `
		INSERT INTO pix_keys (id, key_value, key_type, wallet_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query, k.ID, k.KeyValue, k.KeyType, k.WalletID, k.IsActive, k.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqCodeUniqueViolation {
			r.logger.Warn("duplicate pix key registration attempt", "key_value", k.KeyValue, "key_type", k.KeyType)
			return walleterrors.New(walleterrors.DuplicatePixKey, "an active pix key with this value already exists")
		}
		r.logger.Error("failed to create pix key", "wallet_id", k.WalletID, "error", err)
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to create pix key").WithDetails(err.Error()))
	}

	r.logger.Info("pix key registered", "pix_key_id", k.ID, "wallet_id", k.WalletID, "key_type", k.KeyType)
	return nil
}

func (r *pixKeyRepository) FindActiveByValue(ctx context.Context, value string, keyType domain.PixKeyType) (*domain.PixKey, error) {
	query := `
		SELECT id, key_value, key_type, wallet_id, is_active, created_at
		FROM pix_keys
		WHERE key_value = $1 AND key_type = $2 AND is_active = true
	`

	var k domain.PixKey
	err := r.db.QueryRowContext(ctx, query, value, keyType).Scan(&k.ID, &k.KeyValue, &k.KeyType, &k.WalletID, &k.IsActive, &k.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, walleterrors.ErrDestinationNotFound
		}
		r.logger.Error("failed to look up pix key", "key_value", value, "error", err)
		return nil, classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to look up pix key").WithDetails(err.Error()))
	}

	return &k, nil
}

func (r *pixKeyRepository) ExistsActive(ctx context.Context, value string, keyType domain.PixKeyType) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM pix_keys WHERE key_value = $1 AND key_type = $2 AND is_active = true)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value, keyType).Scan(&exists); err != nil {
		r.logger.Error("failed to check pix key existence", "key_value", value, "error", err)
		return false, classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to check pix key existence").WithDetails(err.Error()))
	}

	return exists, nil
}
