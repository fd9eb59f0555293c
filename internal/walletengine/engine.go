// Package walletengine applies credits and debits to wallet balances under
// per-wallet exclusion and pessimistic row locking, appending exactly one
// ledger entry per mutation.
package walletengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pixwallet/internal/clock"
	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
	"pixwallet/internal/keyedlease"
	"pixwallet/internal/money"
	"pixwallet/internal/repository"
)

const (
	walletLeaseTimeout = 10 * time.Second
	maxRetries         = 3
	retryBackoff       = 100 * time.Millisecond
)

// Engine applies balance mutations. It is safe for concurrent use.
type Engine struct {
	store  *repository.Store
	leases *keyedlease.Manager
	clock  clock.Clock
	logger *slog.Logger
}

// New builds an Engine. leases is shared with any other component that must
// respect the per-wallet exclusion (none today, but the constructor takes it
// explicitly so ownership is visible at the wiring site).
func New(store *repository.Store, leases *keyedlease.Manager, clk clock.Clock, logger *slog.Logger) *Engine {
	return &Engine{store: store, leases: leases, clock: clk, logger: logger}
}

// Credit increases walletID's balance by amount and appends a CREDIT ledger
// entry with the given description and transaction id.
func (e *Engine) Credit(ctx context.Context, walletID uuid.UUID, amount money.Money, description, txID string) error {
	return e.mutate(ctx, walletID, amount, domain.LedgerCredit, description, txID)
}

// Debit decreases walletID's balance by amount and appends a DEBIT ledger
// entry. Fails with INSUFFICIENT_FUNDS if the balance would go negative.
func (e *Engine) Debit(ctx context.Context, walletID uuid.UUID, amount money.Money, description, txID string) error {
	return e.mutate(ctx, walletID, amount, domain.LedgerDebit, description, txID)
}

// Balance returns walletID's current balance.
func (e *Engine) Balance(ctx context.Context, walletID uuid.UUID) (money.Money, error) {
	w, err := e.store.Wallets().GetByID(ctx, walletID)
	if err != nil {
		return money.Zero, err
	}
	return w.Balance(), nil
}

// BalanceAt returns the deterministic replay of the ledger up to instant at:
// the sum of signed ledger amounts with createdAt <= at.
func (e *Engine) BalanceAt(ctx context.Context, walletID uuid.UUID, at time.Time) (money.Money, error) {
	if _, err := e.store.Wallets().GetByID(ctx, walletID); err != nil {
		return money.Zero, err
	}

	sum, err := e.store.Ledger().SumSignedAmountAt(ctx, walletID, at)
	if err != nil {
		return money.Zero, err
	}

	return money.FromMinorUnits(sum), nil
}

func (e *Engine) mutate(ctx context.Context, walletID uuid.UUID, amount money.Money, entryType domain.LedgerEntryType, description, txID string) error {
	if err := amount.ValidateForBalance(); err != nil {
		return err
	}

	release, err := e.leases.Acquire(walletID.String(), walletLeaseTimeout)
	if err != nil {
		return err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff * time.Duration(attempt))
		}

		lastErr = e.store.WithTransaction(ctx, func(tx *repository.Store) error {
			return e.applyOnce(ctx, tx, walletID, amount, entryType, description, txID)
		})

		if lastErr == nil {
			return nil
		}
		if !walleterrors.Is(lastErr, walleterrors.TransientConflict) {
			return lastErr
		}
	}

	e.logger.Warn("wallet mutation exhausted retries", "wallet_id", walletID, "tx_id", txID)
	return walleterrors.ErrTransientConflict
}

func (e *Engine) applyOnce(ctx context.Context, tx *repository.Store, walletID uuid.UUID, amount money.Money, entryType domain.LedgerEntryType, description, txID string) error {
	wallets := tx.Wallets()

	w, err := wallets.GetByIDForUpdate(ctx, walletID)
	if err != nil {
		return err
	}

	signedCents := amount.Cents()
	if entryType == domain.LedgerDebit {
		signedCents = -signedCents
	}

	newBalance := w.BalanceCents + signedCents
	if newBalance < 0 {
		return walleterrors.ErrInsufficientFunds
	}

	now := e.clock.Now()

	entry := domain.NewLedgerEntry(walletID, entryType, signedCents, description, txID, newBalance, now)
	if err := tx.Ledger().Append(ctx, entry); err != nil {
		return err
	}

	return wallets.UpdateBalance(ctx, walletID, newBalance, w.Version, now)
}
