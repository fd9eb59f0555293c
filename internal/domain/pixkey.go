package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PixKeyType enumerates the supported Pix key formats.
type PixKeyType string

const (
	PixKeyEmail PixKeyType = "EMAIL"
	PixKeyPhone PixKeyType = "PHONE"
	PixKeyCPF   PixKeyType = "CPF"
	PixKeyCNPJ  PixKeyType = "CNPJ"
	PixKeyEVP   PixKeyType = "EVP"
)

// PixKey is a routing alias pointing at exactly one active wallet.
type PixKey struct {
	ID        uuid.UUID  `json:"id"`
	KeyValue  string     `json:"keyValue"`
	KeyType   PixKeyType `json:"keyType"`
	WalletID  uuid.UUID  `json:"walletId"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewPixKey constructs a freshly registered, active Pix key.
func NewPixKey(walletID uuid.UUID, value string, keyType PixKeyType, now time.Time) *PixKey {
	return &PixKey{
		ID:        uuid.New(),
		KeyValue:  value,
		KeyType:   keyType,
		WalletID:  walletID,
		IsActive:  true,
		CreatedAt: now,
	}
}

// PixKeyRepository is the persistence contract for Pix keys.
type PixKeyRepository interface {
	Create(ctx context.Context, k *PixKey) error
	FindActiveByValue(ctx context.Context, value string, keyType PixKeyType) (*PixKey, error)
	ExistsActive(ctx context.Context, value string, keyType PixKeyType) (bool, error)
}
