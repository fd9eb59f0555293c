package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
)

type ledgerRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

// NewLedgerRepository builds a domain.LedgerRepository backed by db.
func NewLedgerRepository(db SQLExecutor, logger *slog.Logger) domain.LedgerRepository {
	return &ledgerRepository{db: db, logger: logger}
}

func (r *ledgerRepository) Append(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, wallet_id, amount_cents, entry_type, description, transaction_id, created_at, balance_after_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.WalletID, e.AmountCents, e.Type, e.Description, e.TransactionID, e.CreatedAt, e.BalanceAfterCents,
	)
	if err != nil {
		r.logger.Error("failed to append ledger entry", "wallet_id", e.WalletID, "tx_id", e.TransactionID, "error", err)
		return classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to append ledger entry").WithDetails(err.Error()))
	}

	return nil
}

func (r *ledgerRepository) SumSignedAmountAt(ctx context.Context, walletID uuid.UUID, at time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE wallet_id = $1 AND created_at <= $2
	`

	var sum int64
	if err := r.db.QueryRowContext(ctx, query, walletID, at).Scan(&sum); err != nil {
		r.logger.Error("failed to sum ledger entries", "wallet_id", walletID, "error", err)
		return 0, classifyPQError(err, walleterrors.Newf(walleterrors.InternalError, "failed to compute historical balance").WithDetails(err.Error()))
	}

	return sum, nil
}

func (r *ledgerRepository) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, wallet_id, amount_cents, entry_type, description, transaction_id, created_at, balance_after_cents
		FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, walletID)
	if err != nil {
		r.logger.Error("failed to list ledger entries", "wallet_id", walletID, "error", err)
		return nil, walleterrors.Newf(walleterrors.InternalError, "failed to list ledger entries").WithDetails(err.Error())
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.AmountCents, &e.Type, &e.Description, &e.TransactionID, &e.CreatedAt, &e.BalanceAfterCents); err != nil {
			return nil, walleterrors.Newf(walleterrors.InternalError, "failed to scan ledger entry").WithDetails(err.Error())
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
