package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LedgerEntryType distinguishes a credit from a debit.
type LedgerEntryType string

const (
	LedgerCredit LedgerEntryType = "CREDIT"
	LedgerDebit  LedgerEntryType = "DEBIT"
)

// LedgerEntry is an immutable record of one balance change on one wallet.
type LedgerEntry struct {
	ID                uuid.UUID       `json:"id"`
	WalletID          uuid.UUID       `json:"walletId"`
	AmountCents       int64           `json:"amountCents"`
	Type              LedgerEntryType `json:"type"`
	Description       string          `json:"description"`
	TransactionID     string          `json:"transactionId"`
	CreatedAt         time.Time       `json:"createdAt"`
	BalanceAfterCents int64           `json:"balanceAfterCents"`
}

// NewLedgerEntry builds the ledger entry for one wallet mutation. amountCents
// must already carry the correct sign (positive for CREDIT, negative for
// DEBIT) per the invariant in the data model.
func NewLedgerEntry(walletID uuid.UUID, entryType LedgerEntryType, amountCents int64, description, txID string, balanceAfterCents int64, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		ID:                uuid.New(),
		WalletID:          walletID,
		AmountCents:       amountCents,
		Type:              entryType,
		Description:       description,
		TransactionID:     txID,
		CreatedAt:         now,
		BalanceAfterCents: balanceAfterCents,
	}
}

// LedgerRepository is the persistence contract for ledger entries.
type LedgerRepository interface {
	Append(ctx context.Context, e *LedgerEntry) error
	SumSignedAmountAt(ctx context.Context, walletID uuid.UUID, at time.Time) (int64, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*LedgerEntry, error)
}
