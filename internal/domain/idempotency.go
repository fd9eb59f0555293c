package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord is a persistent memo keyed by (scope, key) guarding
// against duplicate processing of retried requests or redelivered webhooks.
type IdempotencyRecord struct {
	ID             uuid.UUID `json:"id"`
	Scope          string    `json:"scope"`
	Key            string    `json:"key"`
	RequestHash    string    `json:"requestHash"`
	ResponseBody   string    `json:"responseBody,omitempty"`
	ResponseStatus int       `json:"responseStatus"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// IdempotencyTTL is the lifetime of one record after creation.
const IdempotencyTTL = 24 * time.Hour

// NewIdempotencyRecord builds a record expiring IdempotencyTTL after now.
func NewIdempotencyRecord(scope, key, requestHash, responseBody string, responseStatus int, now time.Time) *IdempotencyRecord {
	return &IdempotencyRecord{
		ID:             uuid.New(),
		Scope:          scope,
		Key:            key,
		RequestHash:    requestHash,
		ResponseBody:   responseBody,
		ResponseStatus: responseStatus,
		CreatedAt:      now,
		ExpiresAt:      now.Add(IdempotencyTTL),
	}
}

// IsExpired reports whether the record is no longer valid at instant at.
func (r *IdempotencyRecord) IsExpired(at time.Time) bool {
	return at.After(r.ExpiresAt)
}

// IdempotencyRepository is the persistence contract for idempotency records.
type IdempotencyRepository interface {
	FindByScopeAndKey(ctx context.Context, scope, key string) (*IdempotencyRecord, error)
	Insert(ctx context.Context, r *IdempotencyRecord) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
