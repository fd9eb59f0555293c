package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pixwallet/internal/money"
)

// Wallet is the identity + current balance + optimistic version for one user.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"userId"`
	BalanceCents int64     `json:"balanceCents"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Balance returns the wallet's current balance as Money.
func (w *Wallet) Balance() money.Money {
	return money.FromMinorUnits(w.BalanceCents)
}

// NewWallet constructs a fresh, zero-balance wallet for userID.
func NewWallet(userID string, now time.Time) *Wallet {
	return &Wallet{
		ID:           uuid.New(),
		UserID:       userID,
		BalanceCents: 0,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// WalletRepository is the persistence contract for wallets.
type WalletRepository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*Wallet, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, newBalanceCents int64, expectedVersion int64, now time.Time) error
}
