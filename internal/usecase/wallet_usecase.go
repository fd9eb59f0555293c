// Package usecase glues the wallet core services to the outside world: it is
// the layer HTTP handlers call into.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pixwallet/internal/clock"
	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
	"pixwallet/internal/money"
	"pixwallet/internal/pixkey"
	"pixwallet/internal/repository"
	"pixwallet/internal/walletengine"
)

// WalletUseCase covers wallet lifecycle operations: creation, Pix key
// registration, balance queries, deposits and withdrawals.
type WalletUseCase struct {
	store  *repository.Store
	engine *walletengine.Engine
	clock  clock.Clock
	logger *slog.Logger
}

// NewWalletUseCase builds a WalletUseCase.
func NewWalletUseCase(store *repository.Store, engine *walletengine.Engine, clk clock.Clock, logger *slog.Logger) *WalletUseCase {
	return &WalletUseCase{store: store, engine: engine, clock: clk, logger: logger}
}

// CreateWallet creates a fresh, zero-balance wallet for userID. Fails with
// DUPLICATE_USER if one already exists.
func (u *WalletUseCase) CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w := domain.NewWallet(userID, u.clock.Now())

	if err := u.store.Wallets().Create(ctx, w); err != nil {
		return nil, err
	}

	return w, nil
}

// RegisterPixKey validates and persists a new active Pix key for walletID.
func (u *WalletUseCase) RegisterPixKey(ctx context.Context, walletID uuid.UUID, keyValue string, keyType domain.PixKeyType) (*domain.PixKey, error) {
	if err := pixkey.Validate(keyValue, keyType); err != nil {
		return nil, err
	}

	if _, err := u.store.Wallets().GetByID(ctx, walletID); err != nil {
		return nil, err
	}

	exists, err := u.store.PixKeys().ExistsActive(ctx, keyValue, keyType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, walleterrors.New(walleterrors.DuplicatePixKey, "an active pix key with this value already exists")
	}

	key := domain.NewPixKey(walletID, keyValue, keyType, u.clock.Now())
	if err := u.store.PixKeys().Create(ctx, key); err != nil {
		return nil, err
	}

	return key, nil
}

// GetBalance returns walletID's current balance.
func (u *WalletUseCase) GetBalance(ctx context.Context, walletID uuid.UUID) (money.Money, error) {
	return u.engine.Balance(ctx, walletID)
}

// GetHistoricalBalance returns walletID's balance as of instant at.
func (u *WalletUseCase) GetHistoricalBalance(ctx context.Context, walletID uuid.UUID, at time.Time) (money.Money, error) {
	return u.engine.BalanceAt(ctx, walletID, at)
}

// Deposit credits walletID by amount, generating a DEP-prefixed transaction id.
func (u *WalletUseCase) Deposit(ctx context.Context, walletID uuid.UUID, amount money.Money, description string) error {
	txID := fmt.Sprintf("DEP-%s", uuid.NewString())
	return u.engine.Credit(ctx, walletID, amount, description, txID)
}

// Withdraw debits walletID by amount, generating a WDR-prefixed transaction id.
func (u *WalletUseCase) Withdraw(ctx context.Context, walletID uuid.UUID, amount money.Money, description string) error {
	txID := fmt.Sprintf("WDR-%s", uuid.NewString())
	return u.engine.Debit(ctx, walletID, amount, description, txID)
}
