package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
)

type pixTransferRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

// NewPixTransferRepository builds a domain.PixTransferRepository backed by db.
func NewPixTransferRepository(db SQLExecutor, logger *slog.Logger) domain.PixTransferRepository {
	return &pixTransferRepository{db: db, logger: logger}
}

func (r *pixTransferRepository) Create(ctx context.Context, t *domain.PixTransfer) error {
	query := `
		INSERT INTO pix_transfers (id, end_to_end_id, idempotency_key, from_wallet_id, to_pix_key, to_pix_key_type, amount_cents, status, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.EndToEndID, t.IdempotencyKey, t.FromWalletID, t.ToPixKey, t.ToPixKeyType, t.AmountCents, t.Status, t.CreatedAt, t.Version,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqCodeUniqueViolation {
			r.logger.Warn("duplicate pix transfer creation attempt", "end_to_end_id", t.EndToEndID, "idempotency_key", t.IdempotencyKey)
			return walleterrors.New(walleterrors.DataIntegrityViolation, "a transfer with this end-to-end id or idempotency key already exists")
		}
		r.logger.Error("failed to create pix transfer", "end_to_end_id", t.EndToEndID, "error", err)
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to create pix transfer").WithDetails(err.Error()))
	}

	r.logger.Info("pix transfer created", "transfer_id", t.ID, "end_to_end_id", t.EndToEndID)
	return nil
}

func (r *pixTransferRepository) GetByEndToEndID(ctx context.Context, endToEndID string) (*domain.PixTransfer, error) {
	query := `
		SELECT id, end_to_end_id, idempotency_key, from_wallet_id, to_pix_key, to_pix_key_type, amount_cents, status,
		       created_at, confirmed_at, rejected_at, rejection_reason, version
		FROM pix_transfers WHERE end_to_end_id = $1
	`
	return r.scan(ctx, query, endToEndID)
}

func (r *pixTransferRepository) GetByEndToEndIDForUpdate(ctx context.Context, endToEndID string) (*domain.PixTransfer, error) {
	query := `
		SELECT id, end_to_end_id, idempotency_key, from_wallet_id, to_pix_key, to_pix_key_type, amount_cents, status,
		       created_at, confirmed_at, rejected_at, rejection_reason, version
		FROM pix_transfers WHERE end_to_end_id = $1 FOR UPDATE
	`
	return r.scan(ctx, query, endToEndID)
}

func (r *pixTransferRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.PixTransfer, error) {
	query := `
		SELECT id, end_to_end_id, idempotency_key, from_wallet_id, to_pix_key, to_pix_key_type, amount_cents, status,
		       created_at, confirmed_at, rejected_at, rejection_reason, version
		FROM pix_transfers WHERE idempotency_key = $1
	`
	return r.scan(ctx, query, idempotencyKey)
}

func (r *pixTransferRepository) scan(ctx context.Context, query string, arg interface{}) (*domain.PixTransfer, error) {
	var t domain.PixTransfer
	var reason sql.NullString
	var confirmedAt, rejectedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ID, &t.EndToEndID, &t.IdempotencyKey, &t.FromWalletID, &t.ToPixKey, &t.ToPixKeyType, &t.AmountCents, &t.Status,
		&t.CreatedAt, &confirmedAt, &rejectedAt, &reason, &t.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("failed to load pix transfer", "error", err)
		return nil, classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to load pix transfer").WithDetails(err.Error()))
	}

	if confirmedAt.Valid {
		t.ConfirmedAt = &confirmedAt.Time
	}
	if rejectedAt.Valid {
		t.RejectedAt = &rejectedAt.Time
	}
	t.RejectionReason = reason.String

	return &t, nil
}

func (r *pixTransferRepository) UpdateStatus(ctx context.Context, t *domain.PixTransfer, expectedVersion int64) error {
	query := `
		UPDATE pix_transfers
		SET status = $1, confirmed_at = $2, rejected_at = $3, rejection_reason = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query, t.Status, t.ConfirmedAt, t.RejectedAt, nullableString(t.RejectionReason), t.ID, expectedVersion)
	if err != nil {
		r.logger.Error("failed to update pix transfer status", "transfer_id", t.ID, "error", err)
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to update pix transfer status").WithDetails(err.Error()))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return walleterrors.Newf(walleterrors.InternalError, "failed to read rows affected").WithDetails(err.Error())
	}

	if rows == 0 {
		r.logger.Warn("optimistic version conflict updating pix transfer", "transfer_id", t.ID, "expected_version", expectedVersion)
		return walleterrors.ErrTransientConflict
	}

	t.Version = expectedVersion + 1
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
