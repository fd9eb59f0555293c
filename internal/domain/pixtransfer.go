package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	walleterrors "pixwallet/internal/errors"
)

// TransferStatus is the state of one PixTransfer's lifecycle.
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferConfirmed TransferStatus = "CONFIRMED"
	TransferRejected  TransferStatus = "REJECTED"
)

// PixTransfer is the state-machine record of one end-to-end transfer attempt.
type PixTransfer struct {
	ID              uuid.UUID      `json:"id"`
	EndToEndID      string         `json:"endToEndId"`
	IdempotencyKey  string         `json:"idempotencyKey"`
	FromWalletID    uuid.UUID      `json:"fromWalletId"`
	ToPixKey        string         `json:"toPixKey"`
	ToPixKeyType    PixKeyType     `json:"toPixKeyType"`
	AmountCents     int64          `json:"amountCents"`
	Status          TransferStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	ConfirmedAt     *time.Time     `json:"confirmedAt,omitempty"`
	RejectedAt      *time.Time     `json:"rejectedAt,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	Version         int64          `json:"version"`
}

// NewPixTransfer constructs a new PENDING transfer.
func NewPixTransfer(endToEndID, idempotencyKey string, fromWalletID uuid.UUID, toPixKey string, toPixKeyType PixKeyType, amountCents int64, now time.Time) *PixTransfer {
	return &PixTransfer{
		ID:             uuid.New(),
		EndToEndID:     endToEndID,
		IdempotencyKey: idempotencyKey,
		FromWalletID:   fromWalletID,
		ToPixKey:       toPixKey,
		ToPixKeyType:   toPixKeyType,
		AmountCents:    amountCents,
		Status:         TransferPending,
		CreatedAt:      now,
		Version:        0,
	}
}

// Confirm transitions a PENDING transfer to CONFIRMED. It fails with
// ILLEGAL_STATE if the transfer is not currently PENDING.
func (t *PixTransfer) Confirm(now time.Time) error {
	if t.Status != TransferPending {
		return walleterrors.ErrIllegalState
	}
	t.Status = TransferConfirmed
	t.ConfirmedAt = &now
	return nil
}

// Reject transitions a PENDING transfer to REJECTED. It fails with
// ILLEGAL_STATE if the transfer is not currently PENDING.
func (t *PixTransfer) Reject(reason string, now time.Time) error {
	if t.Status != TransferPending {
		return walleterrors.ErrIllegalState
	}
	t.Status = TransferRejected
	t.RejectedAt = &now
	t.RejectionReason = reason
	return nil
}

// IsTerminal reports whether the transfer has reached CONFIRMED or REJECTED.
func (t *PixTransfer) IsTerminal() bool {
	return t.Status == TransferConfirmed || t.Status == TransferRejected
}

// PixTransferRepository is the persistence contract for Pix transfers.
type PixTransferRepository interface {
	Create(ctx context.Context, t *PixTransfer) error
	GetByEndToEndID(ctx context.Context, endToEndID string) (*PixTransfer, error)
	GetByEndToEndIDForUpdate(ctx context.Context, endToEndID string) (*PixTransfer, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*PixTransfer, error)
	UpdateStatus(ctx context.Context, t *PixTransfer, expectedVersion int64) error
}
