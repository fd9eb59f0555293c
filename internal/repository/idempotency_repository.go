package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
)

type idempotencyRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

// NewIdempotencyRepository builds a domain.IdempotencyRepository backed by db.
func NewIdempotencyRepository(db SQLExecutor, logger *slog.Logger) domain.IdempotencyRepository {
	return &idempotencyRepository{db: db, logger: logger}
}

func (r *idempotencyRepository) FindByScopeAndKey(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT id, scope, idempotency_key, request_hash, response_body, response_status, created_at, expires_at
		FROM idempotency_records WHERE scope = $1 AND idempotency_key = $2
	`

	var rec domain.IdempotencyRecord
	err := r.db.QueryRowContext(ctx, query, scope, key).Scan(
		&rec.ID, &rec.Scope, &rec.Key, &rec.RequestHash, &rec.ResponseBody, &rec.ResponseStatus, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("failed to look up idempotency record", "scope", scope, "key", key, "error", err)
		return nil, classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to look up idempotency record").WithDetails(err.Error()))
	}

	return &rec, nil
}

func (r *idempotencyRepository) Insert(ctx context.Context, rec *domain.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (id, scope, idempotency_key, request_hash, response_body, response_status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Scope, rec.Key, rec.RequestHash, rec.ResponseBody, rec.ResponseStatus, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqCodeUniqueViolation {
			return walleterrors.New(walleterrors.DataIntegrityViolation, "idempotency record already exists for this scope and key")
		}
		r.logger.Error("failed to insert idempotency record", "scope", rec.Scope, "key", rec.Key, "error", err)
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to insert idempotency record").WithDetails(err.Error()))
	}

	return nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM idempotency_records WHERE expires_at < $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		r.logger.Error("failed to delete expired idempotency records", "error", err)
		return 0, walleterrors.Newf(walleterrors.InternalError, "failed to delete expired idempotency records").WithDetails(err.Error())
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, walleterrors.Newf(walleterrors.InternalError, "failed to read rows affected").WithDetails(err.Error())
	}

	return rows, nil
}
