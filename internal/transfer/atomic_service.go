// Package transfer implements the Pix transfer state machine and the atomic
// service that applies its financial effects exactly once.
package transfer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"pixwallet/internal/clock"
	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
	"pixwallet/internal/money"
	"pixwallet/internal/repository"
	"pixwallet/internal/walletengine"
)

// AtomicService orchestrates transfer initiation and state transitions with
// their full financial effect.
type AtomicService struct {
	store  *repository.Store
	engine *walletengine.Engine
	states *stateMap
	clock  clock.Clock
	logger *slog.Logger
}

// New builds an AtomicService. It calls into engine for every financial
// effect; engine already serializes per-wallet access, so AtomicService
// never takes a wallet lease of its own.
func New(store *repository.Store, engine *walletengine.Engine, clk clock.Clock, logger *slog.Logger) *AtomicService {
	return &AtomicService{
		store:  store,
		engine: engine,
		states: newStateMap(),
		clock:  clk,
		logger: logger,
	}
}

// CreateTransferAtomically initiates a Pix transfer: it debits fromWalletID
// and persists a new PENDING PixTransfer, or returns an existing transfer if
// this idempotencyKey or endToEndID has already been processed.
func (s *AtomicService) CreateTransferAtomically(ctx context.Context, endToEndID, idempotencyKey string, fromWalletID uuid.UUID, toPixKey string, toPixKeyType domain.PixKeyType, amount money.Money) (*domain.PixTransfer, error) {
	if err := amount.ValidateForPix(); err != nil {
		return nil, err
	}

	if existing, err := s.store.Transfers().GetByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	_, existed := s.states.loadOrStore(endToEndID, domain.TransferPending, now)
	if existed {
		if existing, err := s.store.Transfers().GetByEndToEndID(ctx, endToEndID); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	debitTxID := "PIX-OUT-" + endToEndID
	if err := s.engine.Debit(ctx, fromWalletID, amount, "pix transfer debit", debitTxID); err != nil {
		s.states.remove(endToEndID)
		return nil, err
	}

	t := domain.NewPixTransfer(endToEndID, idempotencyKey, fromWalletID, toPixKey, toPixKeyType, amount.Cents(), now)

	createErr := s.store.Transfers().Create(ctx, t)
	if createErr == nil {
		return t, nil
	}

	if !walleterrors.Is(createErr, walleterrors.DataIntegrityViolation) {
		return nil, createErr
	}

	s.logger.Warn("transfer initiation lost the unique-constraint race, compensating", "end_to_end_id", endToEndID)
	refundTxID := debitTxID + "-COMPENSATION"
	if refundErr := s.engine.Credit(ctx, fromWalletID, amount, "compensating refund for lost initiation race", refundTxID); refundErr != nil {
		s.logger.Error("failed to compensate lost initiation race", "end_to_end_id", endToEndID, "error", refundErr)
		return nil, refundErr
	}

	winner, findErr := s.store.Transfers().GetByIdempotencyKey(ctx, idempotencyKey)
	if findErr != nil {
		return nil, findErr
	}
	if winner == nil {
		winner, findErr = s.store.Transfers().GetByEndToEndID(ctx, endToEndID)
		if findErr != nil {
			return nil, findErr
		}
	}
	if winner == nil {
		return nil, createErr
	}

	return winner, nil
}

// UpdateTransferStateAtomically transitions the transfer identified by
// endToEndID to targetStatus and applies the corresponding financial effect.
// It returns false (without error) if the transfer is already terminal,
// unknown, or if targetStatus is invalid for a PENDING transfer.
func (s *AtomicService) UpdateTransferStateAtomically(ctx context.Context, endToEndID string, targetStatus domain.TransferStatus, reason string) (bool, error) {
	if targetStatus != domain.TransferConfirmed && targetStatus != domain.TransferRejected {
		return false, walleterrors.Newf(walleterrors.InvalidInput, "invalid target status %q", targetStatus)
	}

	now := s.clock.Now()

	entry, ok := s.states.get(endToEndID)
	if !ok {
		dbTransfer, err := s.store.Transfers().GetByEndToEndID(ctx, endToEndID)
		if err != nil {
			return false, err
		}
		if dbTransfer == nil {
			return false, nil
		}
		entry, _ = s.states.loadOrStore(endToEndID, dbTransfer.Status, now)
	}

	if !entry.casStatus(targetStatus, now) {
		return false, nil
	}

	var appliedTransfer *domain.PixTransfer

	err := s.store.WithTransaction(ctx, func(tx *repository.Store) error {
		t, err := tx.Transfers().GetByEndToEndIDForUpdate(ctx, endToEndID)
		if err != nil {
			return err
		}
		if t == nil {
			return walleterrors.ErrWalletNotFound
		}

		expectedVersion := t.Version

		var transitionErr error
		if targetStatus == domain.TransferConfirmed {
			transitionErr = t.Confirm(now)
		} else {
			transitionErr = t.Reject(reason, now)
		}
		if transitionErr != nil {
			return transitionErr
		}

		if err := tx.Transfers().UpdateStatus(ctx, t, expectedVersion); err != nil {
			return err
		}

		appliedTransfer = t
		return nil
	})

	if err != nil {
		if walleterrors.Is(err, walleterrors.IllegalState) {
			return false, nil
		}
		return false, err
	}

	return true, s.applyFinancialEffect(ctx, appliedTransfer, targetStatus)
}

func (s *AtomicService) applyFinancialEffect(ctx context.Context, t *domain.PixTransfer, targetStatus domain.TransferStatus) error {
	amount := money.FromMinorUnits(t.AmountCents)

	if targetStatus == domain.TransferConfirmed {
		key, err := s.store.PixKeys().FindActiveByValue(ctx, t.ToPixKey, t.ToPixKeyType)
		if err != nil {
			return err
		}
		return s.engine.Credit(ctx, key.WalletID, amount, "pix transfer credit", "PIX-IN-"+t.EndToEndID)
	}

	return s.engine.Credit(ctx, t.FromWalletID, amount, "pix transfer refund", t.EndToEndID+"-REFUND")
}

// CleanupExpiredStates sweeps the in-memory transfer-state map. Advisory
// housekeeping driven by the scheduler; a missed run only affects memory
// footprint.
func (s *AtomicService) CleanupExpiredStates() int {
	return s.states.sweepExpired(s.clock.Now())
}
