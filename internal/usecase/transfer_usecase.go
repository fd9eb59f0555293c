package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixwallet/internal/clock"
	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
	"pixwallet/internal/idempotency"
	"pixwallet/internal/money"
	"pixwallet/internal/repository"
	"pixwallet/internal/transfer"
)

const initiateRetries = 3
const initiateBackoff = 100 * time.Millisecond

// TransferOrchestrator translates external requests and webhook events into
// core operations: it is the front-end use case for Pix transfers.
type TransferOrchestrator struct {
	store       *repository.Store
	atomic      *transfer.AtomicService
	idempotency *idempotency.Service
	clock       clock.Clock
	logger      *slog.Logger
}

// NewTransferOrchestrator builds a TransferOrchestrator.
func NewTransferOrchestrator(store *repository.Store, atomic *transfer.AtomicService, idem *idempotency.Service, clk clock.Clock, logger *slog.Logger) *TransferOrchestrator {
	return &TransferOrchestrator{store: store, atomic: atomic, idempotency: idem, clock: clk, logger: logger}
}

// Initiate resolves toPixKey and delegates to the Atomic Transfer Service,
// short-circuiting on a previously seen idempotencyKey.
func (o *TransferOrchestrator) Initiate(ctx context.Context, idempotencyKey string, fromWalletID uuid.UUID, toPixKey string, amount money.Money) (*domain.PixTransfer, error) {
	if existing, err := o.store.Transfers().GetByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	destKey, err := o.resolveDestination(ctx, toPixKey)
	if err != nil {
		return nil, err
	}

	endToEndID := generateEndToEndID(o.clock.Now())

	var (
		result   *domain.PixTransfer
		lastErr  error
	)

	for attempt := 0; attempt < initiateRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(initiateBackoff * time.Duration(attempt))
		}

		result, lastErr = o.atomic.CreateTransferAtomically(ctx, endToEndID, idempotencyKey, fromWalletID, destKey.KeyValue, destKey.KeyType, amount)
		if lastErr == nil {
			return result, nil
		}
		if !walleterrors.Is(lastErr, walleterrors.DataIntegrityViolation) && !walleterrors.Is(lastErr, walleterrors.TransientConflict) {
			return nil, lastErr
		}
	}

	o.logger.Warn("transfer initiation exhausted retries", "end_to_end_id", endToEndID)
	return nil, lastErr
}

// HandleWebhook applies a CONFIRMED/REJECTED event to the transfer
// identified by endToEndID, absorbing duplicates and unknown event types.
func (o *TransferOrchestrator) HandleWebhook(ctx context.Context, endToEndID, eventID, eventType string) error {
	requestBody := []byte(endToEndID + "|" + eventID + "|" + eventType)

	if _, found, err := o.idempotency.Find(ctx, idempotency.ScopeWebhook, eventID); err != nil {
		return err
	} else if found {
		return nil
	}

	status := domain.TransferStatus(eventType)
	if status != domain.TransferConfirmed && status != domain.TransferRejected {
		o.logger.Info("dropping webhook with unrecognized event type", "end_to_end_id", endToEndID, "event_type", eventType)
		_, err := o.idempotency.SaveFirst(ctx, idempotency.ScopeWebhook, eventID, requestBody, "", 200)
		return err
	}

	reason := ""
	if status == domain.TransferRejected {
		reason = "rejected by webhook event " + eventID
	}

	if _, err := o.atomic.UpdateTransferStateAtomically(ctx, endToEndID, status, reason); err != nil {
		return err
	}

	_, err := o.idempotency.SaveFirst(ctx, idempotency.ScopeWebhook, eventID, requestBody, "", 200)
	return err
}

func (o *TransferOrchestrator) resolveDestination(ctx context.Context, toPixKey string) (*domain.PixKey, error) {
	for _, kt := range []domain.PixKeyType{domain.PixKeyEmail, domain.PixKeyPhone, domain.PixKeyCPF, domain.PixKeyCNPJ, domain.PixKeyEVP} {
		key, err := o.store.PixKeys().FindActiveByValue(ctx, toPixKey, kt)
		if err == nil {
			return key, nil
		}
		if !walleterrors.Is(err, walleterrors.DestinationNotFound) {
			return nil, err
		}
	}
	return nil, walleterrors.ErrDestinationNotFound
}

// generateEndToEndID builds "E" + 13-digit millis + 18 hex chars from a
// fresh random UUID.
func generateEndToEndID(now time.Time) string {
	millis := now.UnixMilli()
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("E%013d%s", millis, hex[:18])
}
