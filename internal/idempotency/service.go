// Package idempotency guarantees that at most one "first processing" occurs
// per (scope, key), and that retries observe the same recorded outcome.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"pixwallet/internal/clock"
	"pixwallet/internal/domain"
	walleterrors "pixwallet/internal/errors"
	"pixwallet/internal/keyedlease"
	"pixwallet/internal/repository"
)

const (
	leaseTimeout  = 5 * time.Second
	maxLeaseKeys  = 1000
	cacheTTL      = 30 * time.Minute
	maxCacheSize  = 5000
)

// Scopes used by the wallet core.
const (
	ScopeTransfer = "transfer"
	ScopeWebhook  = "webhook"
)

type cacheEntry struct {
	record   *domain.IdempotencyRecord
	cachedAt time.Time
}

// Service implements the double-checked idempotency lookup/insert algorithm.
type Service struct {
	store  *repository.Store
	leases *keyedlease.Manager
	clock  clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds an idempotency Service with its own bounded per-key lease
// manager and in-process cache.
func New(store *repository.Store, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		leases: keyedlease.New(maxLeaseKeys),
		clock:  clk,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Fingerprint returns the hex SHA-256 of a request body, used as the
// requestHash stored alongside a record.
func Fingerprint(requestBody []byte) string {
	sum := sha256.Sum256(requestBody)
	return hex.EncodeToString(sum[:])
}

func cacheKey(scope, key string) string {
	return scope + ":" + key
}

// Find returns a non-expired record for (scope, key) if one exists.
func (s *Service) Find(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, bool, error) {
	now := s.clock.Now()
	ck := cacheKey(scope, key)

	if rec, ok := s.readCache(ck, now); ok {
		return rec, true, nil
	}

	rec, err := s.store.Idempotency().FindByScopeAndKey(ctx, scope, key)
	if err != nil {
		return nil, false, err
	}
	if rec == nil || rec.IsExpired(now) {
		return nil, false, nil
	}

	s.writeCache(ck, rec, now)
	return rec, true, nil
}

// SaveFirst performs the double-checked write: it returns the record that
// wins the race for (scope, key), which may be a concurrent caller's record
// rather than this call's own.
func (s *Service) SaveFirst(ctx context.Context, scope, key string, requestBody []byte, responseBody string, responseStatus int) (*domain.IdempotencyRecord, error) {
	ck := cacheKey(scope, key)

	release, err := s.leases.Acquire(ck, leaseTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()

	if rec, ok := s.readCache(ck, now); ok {
		return rec, nil
	}

	existing, err := s.store.Idempotency().FindByScopeAndKey(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.IsExpired(now) {
		s.writeCache(ck, existing, now)
		return existing, nil
	}

	rec := domain.NewIdempotencyRecord(scope, key, Fingerprint(requestBody), responseBody, responseStatus, now)

	insertErr := s.store.WithTransaction(ctx, func(tx *repository.Store) error {
		return tx.Idempotency().Insert(ctx, rec)
	})

	if insertErr != nil {
		if walleterrors.Is(insertErr, walleterrors.DataIntegrityViolation) {
			winner, findErr := s.store.Idempotency().FindByScopeAndKey(ctx, scope, key)
			if findErr != nil {
				return nil, findErr
			}
			if winner == nil {
				return nil, insertErr
			}
			s.writeCache(ck, winner, now)
			return winner, nil
		}
		return nil, insertErr
	}

	s.writeCache(ck, rec, now)
	return rec, nil
}

// ValidateMatches reports whether requestBody's fingerprint matches the
// stored requestHash.
func ValidateMatches(record *domain.IdempotencyRecord, requestBody []byte) bool {
	return record.RequestHash == Fingerprint(requestBody)
}

// CleanupExpired deletes persisted records past their expiry and sweeps the
// in-process cache of stale entries. Advisory only; a missed run never
// affects correctness.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()

	deleted, err := s.store.Idempotency().DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	for k, entry := range s.cache {
		if now.Sub(entry.cachedAt) > cacheTTL || entry.record.IsExpired(now) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if deleted > 0 {
		s.logger.Info("cleaned up expired idempotency records", "count", deleted)
	}

	return deleted, nil
}

func (s *Service) readCache(ck string, now time.Time) (*domain.IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[ck]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.cachedAt) > cacheTTL || entry.record.IsExpired(now) {
		delete(s.cache, ck)
		return nil, false
	}

	return entry.record, true
}

func (s *Service) writeCache(ck string, rec *domain.IdempotencyRecord, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cache) >= maxCacheSize {
		s.evictOldestLocked()
	}

	s.cache[ck] = cacheEntry{record: rec, cachedAt: now}
}

func (s *Service) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	found := false

	for k, entry := range s.cache {
		if !found || entry.cachedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = entry.cachedAt
			found = true
		}
	}

	if found {
		delete(s.cache, oldestKey)
	}
}
